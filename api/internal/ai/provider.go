package ai

import (
	"context"

	"errbook/api/internal/question"
)

// AnalyzeRequest is one uploaded photo of a wrong question.
type AnalyzeRequest struct {
	Image    []byte
	MIMEType string
	Language question.Language

	// Optional hints rendered into the prompt.
	Grade         int
	SubjectHint   question.Subject
	ProviderHints string
}

// SimilarRequest asks for a new practice question built from an analyzed one.
type SimilarRequest struct {
	OriginalQuestion string
	KnowledgePoints  []string
	Language         question.Language
	Difficulty       question.Difficulty
	ProviderHints    string
}

// Provider is one AI backend that returns canonical question records.
// Implementations make a single attempt per call; retry lives in Service.
type Provider interface {
	Name() string
	GetModel() string
	AnalyzeImage(ctx context.Context, in AnalyzeRequest) (question.Record, error)
	GenerateSimilarQuestion(ctx context.Context, in SimilarRequest) (question.Record, error)
}
