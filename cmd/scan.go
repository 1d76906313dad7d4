package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/grantfit/internal/aggregator"
	"github.com/spigell/grantfit/internal/config"
	"github.com/spigell/grantfit/internal/filtering"
	"github.com/spigell/grantfit/internal/jobs"
	"github.com/spigell/grantfit/internal/logger"
	"github.com/spigell/grantfit/internal/program"
	"github.com/spigell/grantfit/internal/progress"
)

const (
	PromptReport              = "Report by fit score"
	PromptProgramsToFile      = "Dump programs to file"
	PromptAppendToExcludeFile = "Append all programs to exclude file"
	PromptExit                = "Exit"
	PromptAllSources          = "All configured sources"
)

var errExit = errors.New("exit requested")

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the program sources and score every program for the configured company",
	Run: func(cmd *cobra.Command, _ []string) {
		scan(cmd)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringSlice("sources", nil, "sources to scan, comma separated (default is scan.sources from the config)")
	scanCmd.Flags().BoolP("no-prompt", "y", false, "print the report and exit without asking")
	scanCmd.Flags().Bool("keep-expired", false, "do not drop programs whose end date has passed")
	scanCmd.Flags().StringP("exclude-file", "e", "", "special file with programs to exclude. Default is unset.")
	scanCmd.Flags().Float64("minimum-fit-score", 0, "drop scored programs below this fit score")

	viper.BindPFlag("exclude-file", scanCmd.Flags().Lookup("exclude-file"))
	viper.BindPFlag("ai.minimum-fit-score", scanCmd.Flags().Lookup("minimum-fit-score"))
}

func scan(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := newPipeline(ctx)
	defer p.Close()

	cfg := p.store.Get()
	if cfg.Company == nil || cfg.Company.Name == "" {
		p.logger.Fatal("company profile is required under company to score programs")
	}

	noPrompt, _ := cmd.Flags().GetBool("no-prompt")

	req := aggregator.Request{Sources: cfg.Scan.Sources}
	if requested, _ := cmd.Flags().GetStringSlice("sources"); len(requested) > 0 {
		req.Sources = requested
	} else if !noPrompt {
		selected, err := selectSources(req.Sources)
		if err != nil {
			p.logger.Fatal("exiting", zap.Error(err))
		}
		req.Sources = selected
	}

	if err := p.aggregator.Validate(req); err != nil {
		p.logger.Fatal("invalid scan request", zap.Error(err))
	}

	job := jobs.NewScanJob()
	log := logger.WithJob(p.logger, job.ID())
	log.Info("starting the scan", zap.Strings("sources", req.Sources), zap.String("company", cfg.Company.Name))

	result := p.runner.Scan(ctx, job, cfg.Company, req, progress.NewLog(ctx, log))

	for _, f := range result.SourceFailures {
		log.Warn("source failed", zap.String("source", f.Source), zap.String("kind", string(f.Kind)), zap.String("message", f.Message))
	}

	switch result.Status {
	case jobs.StatusCancelled:
		log.Info("exiting", zap.String("reason", "scan interrupted"))
		return
	case jobs.StatusFailed:
		log.Fatal("scan failed", zap.String("reason", result.Message))
	}

	steps := filtering.Default()
	if keep, _ := cmd.Flags().GetBool("keep-expired"); keep {
		filtering.DisableByName(steps, "expired", "keep-expired flag is set")
	}
	log.Debug("filters", zap.Any("steps", filtering.Describe(steps)))

	items, err := filtering.Run(ctx,
		&filtering.Config{ExcludeFile: cfg.ExcludeFile, MinimumFitScore: cfg.AI.MinimumFitScore},
		filtering.Deps{Logger: log, Now: time.Now},
		steps, result.Items,
	)
	if err != nil {
		log.Fatal("filtering failed", zap.Error(err))
	}

	if len(items) == 0 {
		log.Info("exiting", zap.String("reason", "no programs left after filters"))
		return
	}

	sortByFitScore(items)

	if noPrompt {
		writeReport(os.Stdout, items)
		return
	}

	prompt := promptui.Select{
		Label: "What next?",
		Items: actions(cfg.ExcludeFile),
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			log.Fatal("exiting", zap.Error(err))
		}

		log.Info("current list of programs", zap.Int("count", len(items)))

		if err := handleAction(action, items, cfg.ExcludeFile, log); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			log.Fatal("exiting", zap.Error(err))
		}
	}
}

func selectSources(configured []string) ([]string, error) {
	if len(configured) == 0 {
		configured = config.SourceNames
	}

	items := append([]string{PromptAllSources}, configured...)
	sourcePrompt := promptui.Select{
		Label: fmt.Sprintf("Sources to scan (%s)", strings.Join(configured, ", ")),
		Items: items,
	}

	_, selected, err := sourcePrompt.Run()
	if err != nil {
		return nil, err
	}
	if selected == PromptAllSources {
		return configured, nil
	}
	return []string{selected}, nil
}

func actions(excludeFile string) []string {
	items := []string{PromptReport, PromptProgramsToFile}
	if excludeFile != "" {
		items = append(items, PromptAppendToExcludeFile)
	}
	return append(items, PromptExit)
}

func handleAction(action string, items []jobs.Item, excludeFile string, logger *zap.Logger) error {
	switch action {
	case PromptReport:
		writeReport(os.Stdout, items)
		return nil
	case PromptProgramsToFile:
		filename, err := programsOf(items).DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptAppendToExcludeFile:
		excluded, err := program.LoadExcluded(excludeFile)
		if err != nil {
			return err
		}

		excluded.Append(programsOf(items).ToExcluded())

		if err := excluded.ToFile(excludeFile); err != nil {
			return err
		}

		logger.Info("appended to exclude file", zap.String("filename", excludeFile), zap.Int("count", len(items)))
		return errExit
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

// sortByFitScore orders scored items by descending fit score. Items without
// an analysis go last in their original order.
func sortByFitScore(items []jobs.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Analysis, items[j].Analysis
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.FitScore > b.FitScore
		}
	})
}

func programsOf(items []jobs.Item) *program.Programs {
	programs := &program.Programs{Items: make([]*program.Program, 0, len(items))}
	for _, item := range items {
		programs.Items = append(programs.Items, item.Program)
	}
	return programs
}
