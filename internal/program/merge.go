package program

// Merge fills every empty field of dst from src. dst wins on conflicts, so
// callers merge in priority order.
func Merge(dst, src *Program) {
	if dst == nil || src == nil {
		return
	}

	fillString(&dst.Name, src.Name)
	fillString(&dst.Organizer, src.Organizer)
	fillString(&dst.SupportType, src.SupportType)
	fillString(&dst.Description, src.Description)
	fillString(&dst.ExpectedGrant, src.ExpectedGrant)
	fillString(&dst.EndDate, src.EndDate)
	fillStrings(&dst.EligibilityCriteria, src.EligibilityCriteria)
	fillStrings(&dst.ExclusionCriteria, src.ExclusionCriteria)
	fillString(&dst.TargetAudience, src.TargetAudience)
	fillStrings(&dst.EvaluationCriteria, src.EvaluationCriteria)
	fillStrings(&dst.RequiredDocuments, src.RequiredDocuments)
	fillString(&dst.SupportDetails, src.SupportDetails)
	fillStrings(&dst.SelectionProcess, src.SelectionProcess)
	fillString(&dst.TotalBudget, src.TotalBudget)
	fillString(&dst.ProjectPeriod, src.ProjectPeriod)
	fillString(&dst.Objectives, src.Objectives)
	fillStrings(&dst.Categories, src.Categories)
	fillStrings(&dst.Keywords, src.Keywords)
	fillString(&dst.Department, src.Department)
	fillStrings(&dst.Regions, src.Regions)
	fillString(&dst.URL, src.URL)

	for _, s := range src.Sources {
		if !contains(dst.Sources, s) {
			dst.Sources = append(dst.Sources, s)
		}
	}
}

// Dedup merges batches given in priority order into one list. Records sharing
// a Key collapse into the first one seen; output keeps first-seen order.
// Normalization runs once on each merged record. Inputs are not modified.
func Dedup(batches ...[]*Program) *Programs {
	index := make(map[Key]*Program)
	out := &Programs{}

	for _, batch := range batches {
		for _, p := range batch {
			if p == nil || p.Name == "" {
				continue
			}
			key := p.Key()
			if existing, ok := index[key]; ok {
				Merge(existing, p)
				continue
			}
			merged := &Program{}
			Merge(merged, p)
			index[key] = merged
			out.Items = append(out.Items, merged)
		}
	}

	for _, p := range out.Items {
		Normalize(p)
	}
	return out
}

func fillString(dst *string, src string) {
	if *dst == "" && src != "" {
		*dst = src
	}
}

func fillStrings(dst *[]string, src []string) {
	if len(*dst) == 0 && len(src) > 0 {
		*dst = append([]string(nil), src...)
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
