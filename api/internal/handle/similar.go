package handle

import (
	"net/http"
	"strings"

	"errbook/api/internal/ai"
	"errbook/api/internal/question"
)

type SimilarRequest struct {
	LLMName          string   `json:"llm_name"`
	ItemID           string   `json:"item_id,omitempty"`
	OriginalQuestion string   `json:"original_question"`
	KnowledgePoints  []string `json:"knowledge_points"`
	Language         string   `json:"language"`
	Difficulty       string   `json:"difficulty"`
}

// Similar generates a practice question from either a saved item or an inline question.
func (h *Handle) Similar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "POST only")
		return
	}
	var req SimilarRequest
	if !decode(w, r, &req) {
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if id := strings.TrimSpace(req.ItemID); id != "" {
		if h.items == nil {
			writeError(w, http.StatusServiceUnavailable, "STORE_DISABLED", "no database configured")
			return
		}
		it, err := h.items.Get(ctx, id)
		if err != nil {
			h.writeStoreError(w, err)
			return
		}
		req.OriginalQuestion = it.QuestionText
		if len(req.KnowledgePoints) == 0 {
			req.KnowledgePoints = it.KnowledgePoints
		}
	}
	if strings.TrimSpace(req.OriginalQuestion) == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "original_question or item_id is required")
		return
	}

	engine, err := h.engs.GetEngine(req.LLMName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	rec, err := engine.GenerateSimilarQuestion(ctx, ai.SimilarRequest{
		OriginalQuestion: req.OriginalQuestion,
		KnowledgePoints:  req.KnowledgePoints,
		Language:         question.ParseLanguage(req.Language),
		Difficulty:       question.ParseDifficulty(req.Difficulty),
	})
	if err != nil {
		writeAIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AnalyzeResponse{Engine: engine.Name(), Model: engine.GetModel(), Record: rec})
}
