package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"errbook/api/internal/ai"
	"errbook/api/internal/ai/prompt"
	"errbook/api/internal/question"
	"errbook/api/internal/util"
)

const maxTokens = 4096

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// Engine talks to any OpenAI-compatible chat endpoint and asks for XML-tagged
// answers, which survive third-party gateways better than JSON mode.
type Engine struct {
	APIKey string
	Model  string

	prompts   *prompt.Builder
	validator *question.Validator
	client    chatCompleter
}

func New(apiKey, model, baseURL string, prompts *prompt.Builder, v *question.Validator) *Engine {
	e := &Engine{
		APIKey:    strings.TrimSpace(apiKey),
		Model:     strings.TrimSpace(model),
		prompts:   prompts,
		validator: v,
	}
	cfg := goopenai.DefaultConfig(e.APIKey)
	if u := strings.TrimSpace(baseURL); u != "" {
		cfg.BaseURL = u
	}
	e.client = goopenai.NewClientWithConfig(cfg)
	return e
}

func (e *Engine) Name() string     { return "gpt" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) AnalyzeImage(ctx context.Context, in ai.AnalyzeRequest) (question.Record, error) {
	system, err := e.prompts.Analyze(in.Language, prompt.Options{
		Format:        prompt.FormatTags,
		Grade:         in.Grade,
		SubjectHint:   in.SubjectHint,
		ProviderHints: in.ProviderHints,
	})
	if err != nil {
		return question.Record{}, &ai.Error{Kind: ai.KindUnknown, Err: err}
	}
	mime := in.MIMEType
	if !util.IsImageMIME(mime) {
		mime = util.PickMIME("", "", in.Image)
	}
	zap.L().Debug("openai analyze",
		zap.String("model", e.Model),
		zap.String("mime", mime),
		zap.Int("image_bytes", len(in.Image)),
		zap.String("language", string(in.Language)),
	)
	return e.call(ctx, []goopenai.ChatCompletionMessage{
		{Role: goopenai.ChatMessageRoleSystem, Content: system},
		{
			Role: goopenai.ChatMessageRoleUser,
			MultiContent: []goopenai.ChatMessagePart{
				{
					Type:     goopenai.ChatMessagePartTypeImageURL,
					ImageURL: &goopenai.ChatMessageImageURL{URL: util.DataURL(mime, in.Image)},
				},
			},
		},
	})
}

func (e *Engine) GenerateSimilarQuestion(ctx context.Context, in ai.SimilarRequest) (question.Record, error) {
	system, err := e.prompts.Similar(in.Language, in.OriginalQuestion, in.KnowledgePoints, in.Difficulty, prompt.Options{
		Format:        prompt.FormatTags,
		ProviderHints: in.ProviderHints,
	})
	if err != nil {
		return question.Record{}, &ai.Error{Kind: ai.KindUnknown, Err: err}
	}
	return e.call(ctx, []goopenai.ChatCompletionMessage{
		{Role: goopenai.ChatMessageRoleSystem, Content: system},
		{Role: goopenai.ChatMessageRoleUser, Content: "Generate the new question now."},
	})
}

func (e *Engine) call(ctx context.Context, msgs []goopenai.ChatCompletionMessage) (question.Record, error) {
	if e.APIKey == "" {
		return question.Record{}, ai.Errorf(ai.KindAuth, "OPENAI_API_KEY is empty")
	}
	resp, err := e.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:     e.Model,
		Messages:  msgs,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return question.Record{}, classify(err)
	}
	var text string
	if len(resp.Choices) > 0 {
		text = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if text == "" {
		return question.Record{}, ai.Errorf(ai.KindResponse, "openai: empty response from AI")
	}
	zap.L().Debug("openai response", zap.Int("len", len(text)))
	return ai.ParseTaggedRecord(text, e.validator)
}

// classify trusts the HTTP status for credential failures and the message table otherwise.
func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &ai.Error{Kind: ai.KindAuth, Err: fmt.Errorf("openai: %w", err)}
		}
	}
	return ai.Wrap(fmt.Errorf("openai: %w", err))
}
