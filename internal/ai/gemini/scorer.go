package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/grantfit/internal/ai"
	"github.com/spigell/grantfit/internal/config"
	"github.com/spigell/grantfit/internal/logger"
	"github.com/spigell/grantfit/internal/program"
	"github.com/spigell/grantfit/internal/resilience"
	"github.com/spigell/grantfit/internal/utils"
)

const (
	provider                = "gemini"
	defaultMaxLogLength     = 200
	maxUserInstructionRunes = 500
)

//go:embed system.md
var systemPrompt string

//go:embed prompt.md
var promptTemplate string

type contentGenerator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	Model() string
}

// PromptOverrides are caller-supplied additions to the prompt.
type PromptOverrides struct {
	UserInstructions string
}

// ScoringSettings hands out the current scoring configuration.
type ScoringSettings interface {
	AI() *config.AIConfig
}

// Scorer implements ai.Scorer on top of a Gemini generator. Weights, user
// instructions and the log preview length are read from settings on every
// call.
type Scorer struct {
	generator contentGenerator
	settings  ScoringSettings
	logger    *zap.Logger
}

func NewScorer(generator contentGenerator, settings ScoringSettings, logger *zap.Logger) *Scorer {
	return &Scorer{
		generator: generator,
		settings:  settings,
		logger:    logger,
	}
}

// current resolves the settings for one call, falling back to defaults for
// unset values.
func (s *Scorer) current() (ai.Weights, PromptOverrides, int) {
	weights := ai.DefaultWeights()
	maxLogLen := defaultMaxLogLength
	var overrides PromptOverrides

	cfg := s.settings.AI()
	if cfg == nil {
		return weights, overrides, maxLogLen
	}
	if !cfg.Weights.IsZero() {
		weights = cfg.Weights
	}
	overrides.UserInstructions = cfg.UserInstructions
	if cfg.Gemini != nil && cfg.Gemini.MaxLogLength > 0 {
		maxLogLen = cfg.Gemini.MaxLogLength
	}
	return weights, overrides, maxLogLen
}

// Score asks the backend for a fit analysis. Backend errors are classified;
// responses that miss required fields or leave the allowed ranges are
// UpstreamError.
func (s *Scorer) Score(ctx context.Context, profile *program.CompanyProfile, p *program.Program) (*ai.FitAnalysisResult, error) {
	const op = "gemini.score"

	if profile == nil || p == nil {
		return nil, resilience.Errorf(resilience.KindValidation, op, "company profile and program are required")
	}

	weights, overrides, maxLogLen := s.current()

	prompt, err := BuildPrompt(profile, p, overrides)
	if err != nil {
		return nil, resilience.New(resilience.KindValidation, op, err)
	}

	log := logger.WithCommonFields(s.logger, provider, s.generator.Model()).With(zap.String(logger.FieldProgram, p.Name))
	log.Debug("gemini generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, maxLogLen)),
	)

	raw, err := s.generator.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, resilience.Classify(err)
	}

	log.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, maxLogLen)),
	)

	result, err := ai.ParseResult(raw)
	if err != nil {
		return nil, resilience.New(resilience.KindUpstream, op, err)
	}

	result.Finalize(weights, program.RegionMismatch(p, profile))
	return result, nil
}

// BuildPrompt renders the prompt for one pair. The output depends only on its
// inputs.
func BuildPrompt(profile *program.CompanyProfile, p *program.Program, overrides PromptOverrides) (string, error) {
	profileJSON, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal company profile: %w", err)
	}

	programPayload := *p
	programPayload.Sources = nil
	programJSON, err := json.MarshalIndent(programPayload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal program: %w", err)
	}

	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Company profile:\n{{PROFILE_JSON}}\n\nSupport program:\n{{PROGRAM_JSON}}\n\nJSON Response:"
	}
	prompt := strings.ReplaceAll(template, "{{USER_INSTRUCTIONS}}", sanitizeUserInstructions(overrides.UserInstructions))
	prompt = strings.ReplaceAll(prompt, "{{PROFILE_JSON}}", string(profileJSON))
	prompt = strings.ReplaceAll(prompt, "{{PROGRAM_JSON}}", string(programJSON))
	return prompt, nil
}

// sanitizeUserInstructions renders caller instructions as a bullet list.
// Square brackets become parentheses so the text cannot open a prompt section,
// whitespace is collapsed per line and the total is capped.
func sanitizeUserInstructions(raw string) string {
	replacer := strings.NewReplacer("[", "(", "]", ")")

	var lines []string
	budget := maxUserInstructionRunes
	for _, line := range strings.Split(raw, "\n") {
		line = strings.Join(strings.Fields(replacer.Replace(line)), " ")
		if line == "" || budget <= 0 {
			continue
		}
		if runes := []rune(line); len(runes) > budget {
			line = string(runes[:budget])
		}
		budget -= utf8.RuneCountInString(line)
		lines = append(lines, "  - "+line)
	}
	if len(lines) == 0 {
		return "  - none"
	}
	return strings.Join(lines, "\n")
}
