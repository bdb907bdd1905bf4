package question

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAccepts(t *testing.T) {
	v := NewValidator(nil)
	res, err := v.Validate(map[string]any{
		"question_text":    "  1+1=?  ",
		"answerText":       "2",
		"analysis":         "add",
		"subject":          "数学",
		"knowledge_points": []any{" 有理数 ", "", "加法"},
	})
	require.NoError(t, err)
	require.True(t, res.Valid(), res.Errors)
	assert.NoError(t, res.Err())
	assert.Equal(t, Record{
		QuestionText:    "1+1=?",
		AnswerText:      "2",
		Analysis:        "add",
		Subject:         SubjectMath,
		KnowledgePoints: []string{"有理数", "加法"},
	}, res.Record)
}

func TestValidateRoundTrip(t *testing.T) {
	v := NewValidator(nil)
	cases := map[string]map[string]any{
		"zh label": {
			"questionText": "解方程 x+1=2", "answerText": "x=1", "analysis": "移项",
			"subject": "数学", "knowledgePoints": []any{"一元一次方程", "移项"},
		},
		"no knowledge points": {
			"questionText": "Choose the verb", "answerText": "B", "analysis": "tense",
			"subject": "英语", "knowledgePoints": []any{},
		},
		"unknown subject": {
			"questionText": "q", "answerText": "a", "analysis": "x", "subject": "天文",
		},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			first, err := v.Validate(in)
			require.NoError(t, err)
			require.True(t, first.Valid(), first.Errors)

			b, err := json.Marshal(first.Record)
			require.NoError(t, err)
			var decoded map[string]any
			require.NoError(t, json.Unmarshal(b, &decoded))

			second, err := v.Validate(decoded)
			require.NoError(t, err)
			require.True(t, second.Valid(), second.Errors)
			assert.Equal(t, first.Record, second.Record)
		})
	}
}

func TestValidateSubjectFallback(t *testing.T) {
	v := NewValidator(nil)
	for _, subject := range []any{nil, "Unknown", 42} {
		res, err := v.Validate(map[string]any{
			"questionText": "q", "answerText": "a", "analysis": "x", "subject": subject,
		})
		require.NoError(t, err)
		require.True(t, res.Valid(), subject)
		assert.Equal(t, SubjectOther, res.Record.Subject)
		assert.Equal(t, []string{}, res.Record.KnowledgePoints)
	}
}

func TestValidateRejects(t *testing.T) {
	v := NewValidator(nil)
	res, err := v.Validate(map[string]any{
		"answerText":      "",
		"analysis":        7.0,
		"knowledgePoints": []any{"ok", 3},
	})
	require.NoError(t, err)
	require.False(t, res.Valid())
	assert.ElementsMatch(t, []FieldError{
		{Field: "questionText", Reason: "missing"},
		{Field: "analysis", Reason: "not a string (float64)"},
		{Field: "knowledgePoints[1]", Reason: "not a string (int)"},
		{Field: "answerText", Reason: "empty"},
	}, res.Errors)
	assert.Equal(t, Record{}, res.Record)

	var verr *ValidationError
	require.ErrorAs(t, res.Err(), &verr)
	assert.Contains(t, verr.Error(), "questionText: missing")
}

func TestValidateNotObject(t *testing.T) {
	_, err := NewValidator(nil).Validate([]any{"a"})
	assert.ErrorIs(t, err, ErrNotObject)
}

func TestCheck(t *testing.T) {
	v := NewValidator(nil)
	ok := v.Check(Record{QuestionText: "q", AnswerText: "a", Analysis: "x", Subject: SubjectMath})
	assert.True(t, ok.Valid())

	bad := v.Check(Record{QuestionText: "q", AnswerText: "a", Analysis: "", Subject: "astrology"})
	assert.ElementsMatch(t, []FieldError{
		{Field: "analysis", Reason: "empty"},
		{Field: "subject", Reason: "not in vocabulary"},
	}, bad.Errors)
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, LanguageEN, ParseLanguage("en"))
	assert.Equal(t, LanguageZH, ParseLanguage("fr"))
	assert.Equal(t, DifficultyHarder, ParseDifficulty("harder"))
	assert.Equal(t, DifficultyMedium, ParseDifficulty(""))
}
