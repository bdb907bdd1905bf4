package handle

import (
	"net/http"
	"strings"

	"errbook/api/internal/ai"
	"errbook/api/internal/question"
	"errbook/api/internal/util"
)

type AnalyzeRequest struct {
	LLMName     string `json:"llm_name"`
	ImageB64    string `json:"image_b64"`
	MIMEType    string `json:"mime_type"`
	Language    string `json:"language"`
	Grade       int    `json:"grade,omitempty"`
	SubjectHint string `json:"subject_hint,omitempty"`
}

type AnalyzeResponse struct {
	Engine string `json:"engine"`
	Model  string `json:"model"`
	question.Record
}

func (h *Handle) Analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "POST only")
		return
	}
	var req AnalyzeRequest
	if !decode(w, r, &req) {
		return
	}

	img, hintMIME, err := util.DecodeBase64MaybeDataURL(req.ImageB64)
	if err != nil || len(img) == 0 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "bad image_b64")
		return
	}
	mime := util.PickMIME(req.MIMEType, hintMIME, img)
	if !util.IsImageMIME(mime) {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "unsupported image type "+mime)
		return
	}

	engine, err := h.engs.GetEngine(req.LLMName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	hint, _ := h.validator.Vocabulary().Lookup(strings.TrimSpace(req.SubjectHint))

	ctx, cancel := h.requestContext(r)
	defer cancel()

	rec, err := engine.AnalyzeImage(ctx, ai.AnalyzeRequest{
		Image:       img,
		MIMEType:    mime,
		Language:    question.ParseLanguage(req.Language),
		Grade:       req.Grade,
		SubjectHint: hint,
	})
	if err != nil {
		writeAIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AnalyzeResponse{Engine: engine.Name(), Model: engine.GetModel(), Record: rec})
}
