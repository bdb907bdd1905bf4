package handle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"errbook/api/internal/ai"
	"errbook/api/internal/question"
	"errbook/api/internal/store"
)

const (
	defaultRequestTimeout = 180 * time.Second
	maxBodyBytes          = 20 << 20
	defaultOwner          = "default"
)

type Handle struct {
	engs      *ai.Engines
	items     *store.ItemRepo
	validator *question.Validator
	timeout   time.Duration
}

// New wires the handlers. items may be nil, in which case the item routes answer 503.
func New(engs *ai.Engines, items *store.ItemRepo, v *question.Validator, requestTimeout time.Duration) *Handle {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	if v == nil {
		v = question.NewValidator(nil)
	}
	return &Handle{engs: engs, items: items, validator: v, timeout: requestTimeout}
}

// Routes registers every endpoint on mux.
func (h *Handle) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/analyze", h.Analyze)
	mux.HandleFunc("/v1/similar", h.Similar)
	mux.HandleFunc("/v1/items", h.Items)
	mux.HandleFunc("/v1/items/{id}", h.Item)
	mux.HandleFunc("/v1/items/{id}/mastery", h.Mastery)
	mux.HandleFunc("/v1/tags", h.Tags)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string                `json:"error"`
	Message string                `json:"message,omitempty"`
	Fields  []question.FieldError `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, errorBody{Error: kind, Message: msg})
}

// statusFor maps a classified failure onto an HTTP status.
func statusFor(k ai.Kind) int {
	switch k {
	case ai.KindConnection:
		return http.StatusServiceUnavailable
	case ai.KindAuth, ai.KindResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeAIError(w http.ResponseWriter, err error) {
	k := ai.KindOf(err)
	writeError(w, statusFor(k), string(k), err.Error())
}

func (h *Handle) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "item not found")
		return
	}
	zap.L().Error("store failure", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "STORE_ERROR", "storage failure")
}

// requestContext applies X-Request-Timeout (or ?timeoutSec=) in seconds, else the default.
func (h *Handle) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	deadline := h.timeout
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	}
	return context.WithTimeout(r.Context(), deadline)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "bad json: "+err.Error())
		return false
	}
	return true
}

func ownerOf(r *http.Request, fromBody string) string {
	for _, v := range []string{fromBody, r.Header.Get("X-Owner-ID"), r.URL.Query().Get("owner")} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return defaultOwner
}
