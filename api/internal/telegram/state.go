package telegram

import (
	"sync"
	"time"

	"errbook/api/internal/question"
)

const (
	debounce  = 1200 * time.Millisecond
	maxPixels = 18_000_000
)

type photoBatch struct {
	ChatID       int64
	Key          string // "grp:<mediaGroupID>" | "chat:<chatID>"
	MediaGroupID string

	mu     sync.Mutex
	images [][]byte
	timer  *time.Timer
	closed bool // set once processBatch has taken the images
}

// chatSession is the last analyzed question of a chat; the inline buttons act on it.
type chatSession struct {
	Record question.Record
	ItemID string // empty when nothing was saved
	Engine string
}

func (r *Router) session(chatID int64) (*chatSession, bool) {
	v, ok := r.sessions.Load(chatID)
	if !ok {
		return nil, false
	}
	return v.(*chatSession), true
}

func (r *Router) setSession(chatID int64, s *chatSession) { r.sessions.Store(chatID, s) }

func (r *Router) language(chatID int64) question.Language {
	if v, ok := r.langs.Load(chatID); ok {
		return v.(question.Language)
	}
	if r.Language != "" {
		return r.Language
	}
	return question.LanguageZH
}

func (r *Router) setLanguage(chatID int64, l question.Language) { r.langs.Store(chatID, l) }
