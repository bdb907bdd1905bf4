package handle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"errbook/api/internal/ai"
	"errbook/api/internal/question"
	"errbook/api/internal/store"
)

type fakeProvider struct {
	analyzeIn ai.AnalyzeRequest
	similarIn ai.SimilarRequest
	deadline  time.Duration
	err       error
	rec       question.Record
}

func (f *fakeProvider) Name() string     { return "gemini" }
func (f *fakeProvider) GetModel() string { return "gemini-test" }

func (f *fakeProvider) AnalyzeImage(ctx context.Context, in ai.AnalyzeRequest) (question.Record, error) {
	f.analyzeIn = in
	if d, ok := ctx.Deadline(); ok {
		f.deadline = time.Until(d)
	}
	return f.rec, f.err
}

func (f *fakeProvider) GenerateSimilarQuestion(_ context.Context, in ai.SimilarRequest) (question.Record, error) {
	f.similarIn = in
	return f.rec, f.err
}

var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func sampleRecord() question.Record {
	return question.Record{
		QuestionText:    "1+1=?",
		AnswerText:      "2",
		Analysis:        "add",
		Subject:         question.SubjectMath,
		KnowledgePoints: []string{"有理数"},
	}
}

type fixture struct {
	mux      *http.ServeMux
	provider *fakeProvider
}

func newFixture(t *testing.T, withStore bool) *fixture {
	t.Helper()
	p := &fakeProvider{rec: sampleRecord()}
	engs := ai.NewEngines("gemini", ai.NewService(p, ai.WithRetryPolicy(ai.RetryPolicy{MaxAttempts: 1})))

	var items *store.ItemRepo
	if withStore {
		ctx := context.Background()
		db, err := store.Open(ctx, "sqlite3", filepath.Join(t.TempDir(), "handle.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		require.NoError(t, store.Migrate(ctx, db))
		items = store.NewItemRepo(db)
	}

	mux := http.NewServeMux()
	New(engs, items, nil, time.Minute).Routes(mux)
	return &fixture{mux: mux, provider: p}
}

func (f *fixture) do(method, path string, body any, header ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodPost, "/v1/analyze", AnalyzeRequest{
		ImageB64:    base64.StdEncoding.EncodeToString(pngBytes),
		Language:    "en",
		Grade:       8,
		SubjectHint: "数学",
	}, "X-Request-Timeout", "5")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[AnalyzeResponse](t, rec)
	assert.Equal(t, "gemini", resp.Engine)
	assert.Equal(t, "gemini-test", resp.Model)
	assert.Equal(t, sampleRecord(), resp.Record)

	in := f.provider.analyzeIn
	assert.Equal(t, "image/png", in.MIMEType)
	assert.Equal(t, question.LanguageEN, in.Language)
	assert.Equal(t, 8, in.Grade)
	assert.Equal(t, question.SubjectMath, in.SubjectHint)
	assert.InDelta(t, 5*time.Second, f.provider.deadline, float64(time.Second))
}

func TestAnalyzeUnknownHintIsDropped(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodPost, "/v1/analyze", AnalyzeRequest{
		ImageB64:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes),
		SubjectHint: "astrology",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.provider.analyzeIn.SubjectHint)
	assert.Equal(t, question.LanguageZH, f.provider.analyzeIn.Language)
}

func TestAnalyzeBadRequests(t *testing.T) {
	f := newFixture(t, false)
	cases := []struct {
		name string
		body any
		code int
	}{
		{"bad json", "{", http.StatusBadRequest},
		{"bad base64", AnalyzeRequest{ImageB64: "%%%"}, http.StatusBadRequest},
		{"empty image", AnalyzeRequest{}, http.StatusBadRequest},
		{"not an image", AnalyzeRequest{ImageB64: base64.StdEncoding.EncodeToString([]byte("hello world"))}, http.StatusBadRequest},
		{"unknown engine", AnalyzeRequest{LLMName: "deepseek", ImageB64: base64.StdEncoding.EncodeToString(pngBytes)}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/v1/analyze", tc.body)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
			assert.Equal(t, "BAD_REQUEST", decodeBody[errorBody](t, rec).Error)
		})
	}

	rec := f.do(http.MethodGet, "/v1/analyze", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAnalyzeAIErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
		kind string
	}{
		{ai.Errorf(ai.KindConnection, "fetch failed"), http.StatusServiceUnavailable, "AI_CONNECTION_FAILED"},
		{ai.Errorf(ai.KindAuth, "bad key"), http.StatusBadGateway, "AI_AUTH_ERROR"},
		{ai.Errorf(ai.KindResponse, "invalid json response from AI"), http.StatusBadGateway, "AI_RESPONSE_ERROR"},
		{ai.Errorf(ai.KindUnknown, "boom"), http.StatusInternalServerError, "AI_UNKNOWN_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			f := newFixture(t, false)
			f.provider.err = tc.err
			rec := f.do(http.MethodPost, "/v1/analyze", AnalyzeRequest{ImageB64: base64.StdEncoding.EncodeToString(pngBytes)})
			assert.Equal(t, tc.code, rec.Code)
			body := decodeBody[errorBody](t, rec)
			assert.Equal(t, tc.kind, body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestSimilarInline(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodPost, "/v1/similar", SimilarRequest{
		LLMName:          "GEMINI",
		OriginalQuestion: "2+2=?",
		KnowledgePoints:  []string{"加法"},
		Difficulty:       "hard",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2+2=?", f.provider.similarIn.OriginalQuestion)
	assert.Equal(t, []string{"加法"}, f.provider.similarIn.KnowledgePoints)
	assert.Equal(t, question.DifficultyHard, f.provider.similarIn.Difficulty)

	rec = f.do(http.MethodPost, "/v1/similar", SimilarRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/v1/similar", SimilarRequest{ItemID: "x"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "STORE_DISABLED", decodeBody[errorBody](t, rec).Error)
}

func TestItemsFlow(t *testing.T) {
	f := newFixture(t, true)
	owner := []string{"X-Owner-ID", "alice"}

	rec := f.do(http.MethodPost, "/v1/items", map[string]any{
		"questionText": "q", "answerText": "a", "subject": "math",
	}, owner...)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	bad := decodeBody[errorBody](t, rec)
	assert.Equal(t, "INVALID_RECORD", bad.Error)
	assert.Equal(t, []question.FieldError{{Field: "analysis", Reason: "empty"}}, bad.Fields)

	rec = f.do(http.MethodPost, "/v1/items", map[string]any{
		"questionText":    " 勾股定理求斜边 ",
		"answerText":      "5",
		"analysis":        "3²+4²=5²",
		"subject":         "数学",
		"knowledgePoints": []string{"勾股定理"},
		"gradeSemester":   "八年级上",
		"paperLevel":      "A",
	}, owner...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[store.Item](t, rec)
	assert.Equal(t, "alice", created.OwnerID)
	assert.Equal(t, question.SubjectMath, created.Subject)
	assert.Equal(t, "勾股定理求斜边", created.QuestionText)
	require.Len(t, created.Tags, 1)

	rec = f.do(http.MethodGet, "/v1/items?subject=math&tag="+url.QueryEscape("勾股定理"), nil, owner...)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]store.Item](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	rec = f.do(http.MethodGet, "/v1/items?owner=bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]store.Item](t, rec))

	rec = f.do(http.MethodPost, "/v1/similar", SimilarRequest{ItemID: created.ID, Difficulty: "easy"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "勾股定理求斜边", f.provider.similarIn.OriginalQuestion)
	assert.Equal(t, []string{"勾股定理"}, f.provider.similarIn.KnowledgePoints)

	rec = f.do(http.MethodPost, "/v1/items/"+created.ID+"/mastery", map[string]int{"level": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodPost, "/v1/items/"+created.ID+"/mastery", map[string]int{"level": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/v1/items/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[store.Item](t, rec).MasteryLevel)

	rec = f.do(http.MethodGet, "/v1/tags", nil, owner...)
	require.Equal(t, http.StatusOK, rec.Code)
	tags := decodeBody[[]store.Tag](t, rec)
	require.Len(t, tags, 1)
	assert.Equal(t, "勾股定理", tags[0].Name)

	rec = f.do(http.MethodDelete, "/v1/items/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(http.MethodGet, "/v1/items/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeBody[errorBody](t, rec).Error)

	rec = f.do(http.MethodPost, "/v1/similar", SimilarRequest{ItemID: created.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestItemsWithoutStore(t *testing.T) {
	f := newFixture(t, false)
	for _, path := range []string{"/v1/items", "/v1/items/abc", "/v1/tags"} {
		rec := f.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestOwnerOf(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/v1/items?owner=q", nil)
	r.Header.Set("X-Owner-ID", "h")
	assert.Equal(t, "b", ownerOf(r, " b "))
	assert.Equal(t, "h", ownerOf(r, ""))
	r.Header.Del("X-Owner-ID")
	assert.Equal(t, "q", ownerOf(r, ""))
	assert.Equal(t, defaultOwner, ownerOf(httptest.NewRequest(http.MethodGet, "/", nil), ""))
}
