package ai

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"errbook/api/internal/question"
	"errbook/api/internal/util"
)

// Cache remembers analyses of identical uploads.
type Cache interface {
	Lookup(ctx context.Context, key string) (question.Record, bool, error)
	Save(ctx context.Context, key string, rec question.Record) error
}

// Service is what callers talk to: one provider behind the retry controller,
// with an optional per-attempt timeout and analysis cache.
type Service struct {
	provider    Provider
	policy      RetryPolicy
	callTimeout time.Duration
	cache       Cache
}

type Option func(*Service)

func WithRetryPolicy(p RetryPolicy) Option { return func(s *Service) { s.policy = p } }

// WithCallTimeout bounds every single attempt; the caller's context bounds the whole sequence.
func WithCallTimeout(d time.Duration) Option { return func(s *Service) { s.callTimeout = d } }

func WithCache(c Cache) Option { return func(s *Service) { s.cache = c } }

func NewService(p Provider, opts ...Option) *Service {
	s := &Service{provider: p, policy: DefaultRetryPolicy()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Name() string       { return s.provider.Name() }
func (s *Service) GetModel() string   { return s.provider.GetModel() }
func (s *Service) Provider() Provider { return s.provider }

// AnalyzeImage turns a photo of a question into a canonical record.
func (s *Service) AnalyzeImage(ctx context.Context, in AnalyzeRequest) (question.Record, error) {
	key := s.cacheKey(in)
	if s.cache != nil {
		rec, ok, err := s.cache.Lookup(ctx, key)
		switch {
		case err != nil:
			zap.L().Warn("analysis cache lookup failed", zap.Error(err))
		case ok:
			zap.L().Debug("analysis cache hit", zap.String("engine", s.Name()))
			return rec, nil
		}
	}

	start := time.Now()
	rec, err := CallWithRetry(ctx, s.policy, func(ctx context.Context, attempt int) (question.Record, error) {
		actx, cancel := s.attemptContext(ctx)
		defer cancel()
		rec, err := s.provider.AnalyzeImage(actx, in)
		return rec, attemptError(ctx, actx, err)
	})
	if err != nil {
		zap.L().Error("analyze image failed",
			zap.String("engine", s.Name()),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err),
		)
		return question.Record{}, err
	}
	zap.L().Info("image analyzed",
		zap.String("engine", s.Name()),
		zap.String("subject", rec.Subject.String()),
		zap.Duration("took", time.Since(start)),
	)

	if s.cache != nil {
		if err := s.cache.Save(ctx, key, rec); err != nil {
			zap.L().Warn("analysis cache save failed", zap.Error(err))
		}
	}
	return rec, nil
}

// GenerateSimilarQuestion builds a fresh practice question on the same knowledge points.
func (s *Service) GenerateSimilarQuestion(ctx context.Context, in SimilarRequest) (question.Record, error) {
	rec, err := CallWithRetry(ctx, s.policy, func(ctx context.Context, attempt int) (question.Record, error) {
		actx, cancel := s.attemptContext(ctx)
		defer cancel()
		rec, err := s.provider.GenerateSimilarQuestion(actx, in)
		return rec, attemptError(ctx, actx, err)
	})
	if err != nil {
		zap.L().Error("similar question failed",
			zap.String("engine", s.Name()),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err),
		)
		return question.Record{}, err
	}
	return rec, nil
}

func (s *Service) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout > 0 {
		return context.WithTimeout(ctx, s.callTimeout)
	}
	return context.WithCancel(ctx)
}

// attemptError turns a call that ran out its own timeout into a connection
// failure, so the next attempt still gets a chance while the caller waits.
func attemptError(parent, attempt context.Context, err error) error {
	if err == nil || parent.Err() != nil {
		return err
	}
	if errors.Is(attempt.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindConnection, Err: fmt.Errorf("call timed out: %w", err)}
	}
	return err
}

// cacheKey covers everything that changes the answer for the same bytes.
func (s *Service) cacheKey(in AnalyzeRequest) string {
	return strings.Join([]string{
		util.SHA256Hex(in.Image), s.Name(), s.GetModel(),
		string(in.Language), strconv.Itoa(in.Grade), string(in.SubjectHint),
	}, ":")
}
