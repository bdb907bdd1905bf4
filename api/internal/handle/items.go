package handle

import (
	"net/http"
	"strconv"
	"strings"

	"errbook/api/internal/question"
	"errbook/api/internal/store"
)

type CreateItemRequest struct {
	OwnerID          string `json:"owner_id"`
	OriginalImageURL string `json:"originalImageUrl"`
	GradeSemester    string `json:"gradeSemester"`
	PaperLevel       string `json:"paperLevel"`
	question.Record
}

type masteryRequest struct {
	Level int `json:"level"`
}

func (h *Handle) storeReady(w http.ResponseWriter) bool {
	if h.items == nil {
		writeError(w, http.StatusServiceUnavailable, "STORE_DISABLED", "no database configured")
		return false
	}
	return true
}

// Items serves POST (save) and GET (list) on /v1/items.
func (h *Handle) Items(w http.ResponseWriter, r *http.Request) {
	if !h.storeReady(w) {
		return
	}
	switch r.Method {
	case http.MethodPost:
		h.createItem(w, r)
	case http.MethodGet:
		h.listItems(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "GET or POST only")
	}
}

func (h *Handle) createItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if !decode(w, r, &req) {
		return
	}
	rec := req.Record
	rec.QuestionText = strings.TrimSpace(rec.QuestionText)
	rec.AnswerText = strings.TrimSpace(rec.AnswerText)
	rec.Analysis = strings.TrimSpace(rec.Analysis)
	rec.Subject = h.validator.Vocabulary().Coerce(strings.TrimSpace(string(rec.Subject)))
	if rec.KnowledgePoints == nil {
		rec.KnowledgePoints = []string{}
	}
	res := h.validator.Check(rec)
	if !res.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "INVALID_RECORD", Fields: res.Errors})
		return
	}

	it, err := h.items.Create(r.Context(), store.NewItem{
		OwnerID:          ownerOf(r, req.OwnerID),
		Record:           res.Record,
		OriginalImageURL: req.OriginalImageURL,
		GradeSemester:    req.GradeSemester,
		PaperLevel:       req.PaperLevel,
	})
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (h *Handle) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.Filter{
		OwnerID:       ownerOf(r, ""),
		Subject:       question.Subject(q.Get("subject")),
		Query:         q.Get("query"),
		Mastery:       q.Get("mastery"),
		TimeRange:     q.Get("timeRange"),
		Tag:           q.Get("tag"),
		GradeSemester: q.Get("gradeSemester"),
		PaperLevel:    q.Get("paperLevel"),
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))

	items, err := h.items.List(r.Context(), f)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Item serves GET and DELETE on /v1/items/{id}.
func (h *Handle) Item(w http.ResponseWriter, r *http.Request) {
	if !h.storeReady(w) {
		return
	}
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		it, err := h.items.Get(r.Context(), id)
		if err != nil {
			h.writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, it)
	case http.MethodDelete:
		if err := h.items.Delete(r.Context(), id); err != nil {
			h.writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "GET or DELETE only")
	}
}

func (h *Handle) Mastery(w http.ResponseWriter, r *http.Request) {
	if !h.storeReady(w) {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "POST only")
		return
	}
	var req masteryRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Level < 0 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "level must be >= 0")
		return
	}
	if err := h.items.UpdateMastery(r.Context(), r.PathValue("id"), req.Level); err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"masteryLevel": req.Level})
}

func (h *Handle) Tags(w http.ResponseWriter, r *http.Request) {
	if !h.storeReady(w) {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "GET only")
		return
	}
	tags, err := h.items.Tags.List(r.Context(), ownerOf(r, ""), r.URL.Query().Get("subject"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}
