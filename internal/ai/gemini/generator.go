package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/grantfit/internal/config"
	"github.com/spigell/grantfit/internal/resilience"
	"github.com/spigell/grantfit/internal/secrets"
)

const (
	defaultModel = "gemini-2.5-flash"
	apiKeyEnv    = "GEMINI_API_KEY"
)

// Markers of a 400 caused by generation config keys the backend does not know.
var configRejectionMarkers = []string{
	"unknown name",
	"invalid json payload",
	"cannot find field",
	"response_schema",
	"responseschema",
	"response_mime_type",
	"responsemimetype",
}

// blockedFinishReasons are candidate finish reasons that mean the content
// filter stopped generation.
var blockedFinishReasons = map[string]bool{
	"SAFETY":             true,
	"PROHIBITED_CONTENT": true,
	"BLOCKLIST":          true,
	"SPII":               true,
	"IMAGE_SAFETY":       true,
}

type modelClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Settings hands out the current backend configuration.
type Settings interface {
	Gemini() *config.GeminiConfig
}

// Generator calls the Gemini API. The API key and model are read from
// settings on every call; a changed key gets a new client.
type Generator struct {
	settings  Settings
	logger    *zap.Logger
	newModels func(ctx context.Context, apiKey string) (modelClient, error)

	mu     sync.Mutex
	apiKey string
	models modelClient
}

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(settings Settings, logger *zap.Logger) *Generator {
	return &Generator{
		settings:  settings,
		logger:    logger,
		newModels: newGenAIModels,
	}
}

func newGenAIModels(ctx context.Context, apiKey string) (modelClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client.Models, nil
}

// Model returns the model the next call will use.
func (g *Generator) Model() string {
	if g == nil || g.settings == nil {
		return defaultModel
	}
	if model := strings.TrimSpace(g.settings.Gemini().Model); model != "" {
		return model
	}
	return defaultModel
}

// Generate sends prompt with the system instruction and returns the response
// text. The request asks for schema-constrained JSON at temperature 0; if the
// backend rejects those config keys the call is repeated once with a minimal
// config.
func (g *Generator) Generate(ctx context.Context, system, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", resilience.Errorf(resilience.KindValidation, "gemini.generate", "prompt must not be empty")
	}

	models, err := g.client(ctx)
	if err != nil {
		return "", err
	}
	model := g.Model()

	resp, err := models.GenerateContent(ctx, model, genai.Text(prompt), structuredConfig(system))
	if err != nil && rejectsConfig(err) {
		g.logger.Warn("backend rejected generation config, retrying with a minimal one",
			zap.String("model", model), zap.Error(err))
		resp, err = models.GenerateContent(ctx, model, genai.Text(joinPrompt(system, prompt)), minimalConfig())
	}
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	return responseText(resp)
}

func (g *Generator) client(ctx context.Context) (modelClient, error) {
	cfg := g.settings.Gemini()
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
		Env:   apiKeyEnv,
	})
	if err != nil {
		return nil, resilience.New(resilience.KindAuth, "gemini.credential", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.models != nil && g.apiKey == apiKey {
		return g.models, nil
	}
	models, err := g.newModels(ctx, apiKey)
	if err != nil {
		return nil, resilience.New(resilience.KindUpstream, "gemini.client", err)
	}
	g.apiKey, g.models = apiKey, models
	return models, nil
}

func structuredConfig(system string) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema,
	}
	if system = strings.TrimSpace(system); system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return cfg
}

func minimalConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0)}
}

func joinPrompt(system, prompt string) string {
	if system = strings.TrimSpace(system); system == "" {
		return prompt
	}
	return system + "\n\n" + prompt
}

func rejectsConfig(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 && apiErr.Code != 400 {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, marker := range configRejectionMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// responseText joins the text parts of the first usable candidate. Only the
// candidates list and part text are relied upon.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("gemini api returned empty response")
	}

	var builder strings.Builder
	var finish string
	for _, candidate := range resp.Candidates {
		if candidate == nil {
			continue
		}
		if finish == "" {
			finish = string(candidate.FinishReason)
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
		if builder.Len() > 0 {
			break
		}
	}

	output := strings.TrimSpace(builder.String())
	if output != "" {
		return output, nil
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", resilience.Errorf(resilience.KindContentRejected, "gemini.generate", "prompt blocked by the backend: %s", resp.PromptFeedback.BlockReason)
	}
	if blockedFinishReasons[finish] {
		return "", resilience.Errorf(resilience.KindContentRejected, "gemini.generate", "response blocked by the backend: finish reason %s", finish)
	}
	return "", errors.New("gemini api returned empty response")
}
