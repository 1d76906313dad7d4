package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/grantfit/internal/jobs"
	"github.com/spigell/grantfit/internal/logger"
	"github.com/spigell/grantfit/internal/program"
	"github.com/spigell/grantfit/internal/progress"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Score a single program read from a JSON file for the configured company",
	Run: func(cmd *cobra.Command, _ []string) {
		analyze(cmd)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringP("program", "p", "", "a JSON file with the program to analyze")
	analyzeCmd.Flags().String("profile", "", "a JSON file with the company profile (default is company from the config)")
	analyzeCmd.MarkFlagRequired("program")
}

func analyze(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := newPipeline(ctx)
	defer p.Close()

	validate := validator.New()

	programFile, _ := cmd.Flags().GetString("program")
	var target *program.Program
	if err := readJSON(programFile, &target); err != nil {
		p.logger.Fatal("reading the program", zap.Error(err))
	}
	if err := validate.Struct(target); err != nil {
		p.logger.Fatal("invalid program", zap.String("file", programFile), zap.Error(err))
	}

	profile := p.store.Get().Company
	if profileFile, _ := cmd.Flags().GetString("profile"); profileFile != "" {
		var fromFile *program.CompanyProfile
		if err := readJSON(profileFile, &fromFile); err != nil {
			p.logger.Fatal("reading the company profile", zap.Error(err))
		}
		profile = fromFile
	}
	if profile == nil {
		p.logger.Fatal("company profile is required under company or via --profile")
	}
	if err := validate.Struct(profile); err != nil {
		p.logger.Fatal("invalid company profile", zap.Error(err))
	}

	program.Normalize(target)

	job := jobs.NewScanJob()
	log := logger.WithJob(p.logger, job.ID())
	ch := progress.NewLog(ctx, log)

	result, err := p.runner.AnalyzeStream(ctx, job, profile, target, ch)
	if job.Status() == jobs.StatusCancelled {
		log.Info("exiting", zap.String("reason", "analysis interrupted"))
		return
	}
	if err != nil {
		log.Fatal("analysis failed", zap.String("reason", ch.Failure()), zap.Error(err))
	}

	pretty, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(pretty))
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
