package program

import (
	"encoding/json"
	"os"
	"time"
)

// ExcludedPrograms is the exclude file: programs the user does not want to
// see in later scans.
type ExcludedPrograms struct {
	Items []*ExcludedProgram
}

type ExcludedProgram struct {
	Key        string
	Name       string
	Organizer  string
	URL        string
	ExcludedAt time.Time
}

func (p *Programs) ToExcluded() *ExcludedPrograms {
	excluded := &ExcludedPrograms{}
	for _, item := range p.Items {
		excluded.Items = append(excluded.Items, &ExcludedProgram{
			Key:        item.Key().String(),
			Name:       item.Name,
			Organizer:  item.Organizer,
			URL:        item.URL,
			ExcludedAt: time.Now().UTC(),
		})
	}
	return excluded
}

// LoadExcluded reads an exclude file. An empty file holds no programs.
func LoadExcluded(path string) (*ExcludedPrograms, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &ExcludedPrograms{}, nil
	}

	var excluded ExcludedPrograms
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, err
	}
	return &excluded, nil
}

func (e *ExcludedPrograms) Append(s *ExcludedPrograms) {
	e.Items = append(e.Items, s.Items...)
}

// Keys returns the dedup keys of the excluded programs.
func (e *ExcludedPrograms) Keys() map[string]bool {
	keys := make(map[string]bool, len(e.Items))
	for _, item := range e.Items {
		keys[item.Key] = true
	}
	return keys
}

func (e *ExcludedPrograms) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}
