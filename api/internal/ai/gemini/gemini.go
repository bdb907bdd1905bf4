package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"errbook/api/internal/ai"
	"errbook/api/internal/ai/prompt"
	"errbook/api/internal/question"
)

// generateFunc sends one JSON-mode request and returns the first text candidate.
type generateFunc func(ctx context.Context, parts ...genai.Part) (string, error)

// Engine talks to Gemini in JSON mode and runs every answer through the
// extraction fallback chain.
type Engine struct {
	APIKey  string
	Model   string
	BaseURL string

	prompts   *prompt.Builder
	validator *question.Validator
	generate  generateFunc
}

func New(apiKey, model, baseURL string, prompts *prompt.Builder, v *question.Validator) *Engine {
	e := &Engine{
		APIKey:    strings.TrimSpace(apiKey),
		Model:     strings.TrimSpace(model),
		BaseURL:   strings.TrimSpace(baseURL),
		prompts:   prompts,
		validator: v,
	}
	e.generate = e.generateContent
	return e
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) AnalyzeImage(ctx context.Context, in ai.AnalyzeRequest) (question.Record, error) {
	text, err := e.prompts.Analyze(in.Language, prompt.Options{
		Format:        prompt.FormatJSON,
		Grade:         in.Grade,
		SubjectHint:   in.SubjectHint,
		ProviderHints: in.ProviderHints,
	})
	if err != nil {
		return question.Record{}, &ai.Error{Kind: ai.KindUnknown, Err: err}
	}
	zap.L().Debug("gemini analyze",
		zap.String("model", e.Model),
		zap.String("mime", in.MIMEType),
		zap.Int("image_bytes", len(in.Image)),
		zap.String("language", string(in.Language)),
	)
	return e.call(ctx, genai.Text(text), &genai.Blob{MIMEType: in.MIMEType, Data: in.Image})
}

func (e *Engine) GenerateSimilarQuestion(ctx context.Context, in ai.SimilarRequest) (question.Record, error) {
	text, err := e.prompts.Similar(in.Language, in.OriginalQuestion, in.KnowledgePoints, in.Difficulty, prompt.Options{
		Format:        prompt.FormatJSON,
		ProviderHints: in.ProviderHints,
	})
	if err != nil {
		return question.Record{}, &ai.Error{Kind: ai.KindUnknown, Err: err}
	}
	return e.call(ctx, genai.Text(text))
}

func (e *Engine) call(ctx context.Context, parts ...genai.Part) (question.Record, error) {
	if e.APIKey == "" {
		return question.Record{}, ai.Errorf(ai.KindAuth, "GEMINI_API_KEY is empty")
	}
	txt, err := e.generate(ctx, parts...)
	if err != nil {
		return question.Record{}, ai.Wrap(fmt.Errorf("gemini: %w", err))
	}
	txt = strings.TrimSpace(txt)
	if txt == "" {
		return question.Record{}, ai.Errorf(ai.KindResponse, "gemini: empty response from AI")
	}
	zap.L().Debug("gemini response", zap.Int("len", len(txt)))
	return ai.ParseJSONRecord(txt, e.validator)
}

func (e *Engine) generateContent(ctx context.Context, parts ...genai.Part) (string, error) {
	opts := []option.ClientOption{option.WithAPIKey(e.APIKey)}
	if e.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(e.BaseURL))
	}
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	if m == nil {
		return "", errors.New("model is nil")
	}
	// JSON mode
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", err
	}
	return firstText(resp), nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

func ptrFloat32(v float32) *float32 { return &v }
