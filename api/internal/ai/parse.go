package ai

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"errbook/api/internal/question"
	"errbook/api/internal/util"
)

const rawSampleLen = 500

// ParseJSONRecord runs the extraction fallback chain over a JSON-mode response:
// the raw text as is, then the extracted object, then the repaired object.
// The first stage that both decodes and validates wins.
func ParseJSONRecord(text string, v *question.Validator) (question.Record, error) {
	type stage struct {
		name   string
		decode func() (any, error)
	}
	extracted := ExtractJSON(text)
	stages := []stage{
		{"direct", func() (any, error) { return decodeStrict("direct", text) }},
		{"extracted", func() (any, error) { return decodeStrict("extracted", extracted) }},
		{"repaired", func() (any, error) { return RepairAndParse(extracted) }},
	}

	var last error
	for _, st := range stages {
		candidate, err := st.decode()
		if err != nil {
			zap.L().Debug("json stage failed", zap.String("stage", st.name), zap.Error(err))
			last = err
			continue
		}
		res, err := v.Validate(candidate)
		if err != nil {
			last = err
			continue
		}
		if !res.Valid() {
			zap.L().Debug("json stage invalid", zap.String("stage", st.name), zap.Any("fields", res.Errors))
			last = res.Err()
			continue
		}
		zap.L().Debug("json stage ok", zap.String("stage", st.name))
		return res.Record, nil
	}

	zap.L().Warn("all json stages failed", zap.String("sample", sample(text)), zap.Error(last))
	return question.Record{}, Errorf(KindResponse, "invalid json response from AI: %w", last)
}

// Tag names of the XML-tag response format.
const (
	TagQuestionText    = "question_text"
	TagAnswerText      = "answer_text"
	TagAnalysis        = "analysis"
	TagSubject         = "subject"
	TagKnowledgePoints = "knowledge_points"
)

var errMissingTags = errors.New("missing critical tags (<question_text>, <answer_text> or <analysis>)")

// ParseTaggedRecord reads an XML-tag response. A missing or empty question, answer
// or analysis fails at once; an unknown subject becomes the fallback subject.
func ParseTaggedRecord(text string, v *question.Validator) (question.Record, error) {
	q, okQ := ExtractTag(text, TagQuestionText)
	a, okA := ExtractTag(text, TagAnswerText)
	an, okAn := ExtractTag(text, TagAnalysis)
	if !okQ || !okA || !okAn || q == "" || a == "" || an == "" {
		zap.L().Warn("tagged response incomplete", zap.String("sample", sample(text)))
		return question.Record{}, &Error{Kind: KindResponse, Err: errMissingTags}
	}

	vocab := v.Vocabulary()
	rec := question.Record{
		QuestionText:    q,
		AnswerText:      a,
		Analysis:        an,
		Subject:         vocab.Fallback,
		KnowledgePoints: []string{},
	}
	if s, ok := ExtractTag(text, TagSubject); ok {
		rec.Subject = vocab.Coerce(s)
	}
	if kp, ok := ExtractTag(text, TagKnowledgePoints); ok {
		rec.KnowledgePoints = SplitKnowledgePoints(kp)
	}

	res := v.Check(rec)
	if !res.Valid() {
		return question.Record{}, &Error{Kind: KindResponse, Err: res.Err()}
	}
	return res.Record, nil
}

// SplitKnowledgePoints splits on ASCII or full-width commas and newlines, dropping blanks.
func SplitKnowledgePoints(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '，' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func sample(s string) string { return util.Truncate(s, rawSampleLen) }
