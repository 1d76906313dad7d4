package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/spigell/grantfit/internal/jobs"
)

const (
	strongFit = 70
	weakFit   = 40
)

// writeReport prints one block per item, best fit first as given.
func writeReport(w io.Writer, items []jobs.Item) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "\n%s\n\n", cyan(fmt.Sprintf("=== %d programs ===", len(items))))

	for _, item := range items {
		p := item.Program

		switch {
		case item.Analysis != nil:
			scoreColor := red
			if item.Analysis.FitScore >= strongFit {
				scoreColor = green
			} else if item.Analysis.FitScore >= weakFit {
				scoreColor = yellow
			}
			fmt.Fprintf(w, "%s %s\n", scoreColor(fmt.Sprintf("[%3d]", item.Analysis.FitScore)), p.Name)
			fmt.Fprintf(w, "    Eligibility: %s\n", item.Analysis.Eligibility)
			if item.Analysis.RegionMismatch {
				fmt.Fprintf(w, "    %s\n", yellow("Region does not match the company address"))
			}
		case item.Error != nil:
			fmt.Fprintf(w, "%s %s\n", gray("[ - ]"), p.Name)
			fmt.Fprintf(w, "    %s\n", red(item.Error.Message))
		default:
			fmt.Fprintf(w, "%s %s\n", gray("[ - ]"), p.Name)
		}

		if p.Organizer != "" {
			fmt.Fprintf(w, "    Organizer:   %s\n", p.Organizer)
		}
		if p.EndDate != "" {
			fmt.Fprintf(w, "    Ends:        %s\n", p.EndDate)
		}
		if p.URL != "" {
			fmt.Fprintf(w, "    URL:         %s\n", gray(p.URL))
		}
		fmt.Fprintln(w)
	}
}
