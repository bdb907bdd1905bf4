package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"errbook/api/internal/ai"
	"errbook/api/internal/question"
	"errbook/api/internal/store"
)

// BotAPI is the part of *tgbotapi.BotAPI the router uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Router struct {
	Bot      BotAPI
	Engines  *ai.Manager
	Items    *store.ItemRepo // optional; without it nothing is saved
	Vocab    *question.Vocabulary
	Timeout  time.Duration
	Language question.Language

	batches  sync.Map // key -> *photoBatch
	sessions sync.Map // chatID -> *chatSession
	langs    sync.Map // chatID -> question.Language

	fetch func(ctx context.Context, url string) ([]byte, error)
}

// NewRouter fills in the defaults; a nil vocab means the embedded one.
func NewRouter(bot BotAPI, engines *ai.Manager, items *store.ItemRepo, vocab *question.Vocabulary) *Router {
	if vocab == nil {
		vocab = question.DefaultVocabulary()
	}
	return &Router{Bot: bot, Engines: engines, Items: items, Vocab: vocab, Language: question.LanguageZH}
}

func (r *Router) vocab() *question.Vocabulary { return r.Vocab }

func (r *Router) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return 180 * time.Second
}

func ownerID(chatID int64) string { return "tg:" + strconv.FormatInt(chatID, 10) }

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(*upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	if upd.Message.IsCommand() {
		r.HandleCommand(*upd.Message)
		return
	}
	if len(upd.Message.Photo) > 0 {
		r.acceptPhoto(*upd.Message)
		return
	}
	r.send(upd.Message.Chat.ID, "Send a photo of a question you got wrong.")
}

func (r *Router) HandleCommand(msg tgbotapi.Message) {
	cid := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())
	switch msg.Command() {
	case "start", "help":
		r.send(cid, "Send a photo of a question you got wrong and I will read it, solve it and save it to your notebook.\n"+
			"Commands: /engine, /lang zh|en, /list, /similar [easy|medium|hard|harder], /health")
	case "health":
		r.send(cid, "OK")
	case "engine":
		r.handleEngineCommand(cid, args)
	case "lang":
		if len(args) == 0 {
			r.send(cid, "Current language: "+string(r.language(cid)))
			return
		}
		l := question.ParseLanguage(strings.ToLower(args[0]))
		r.setLanguage(cid, l)
		r.send(cid, "Language: "+string(l))
	case "list":
		r.handleList(cid)
	case "similar":
		d := question.DifficultyMedium
		if len(args) > 0 {
			d = question.ParseDifficulty(strings.ToLower(args[0]))
		}
		r.similar(context.Background(), cid, d)
	default:
		r.send(cid, "Unknown command")
	}
}

// handleEngineCommand shows or switches the engine of a chat: /engine [gemini|gpt].
func (r *Router) handleEngineCommand(chatID int64, args []string) {
	names := strings.Join(r.Engines.Engines().Names(), " | ")
	if len(args) == 0 {
		cur, err := r.Engines.Get(chatID)
		if err != nil {
			r.send(chatID, "No engine configured.")
			return
		}
		r.send(chatID, fmt.Sprintf("Current engine: %s (%s)\nUsage: /engine {%s}", cur.Name(), cur.GetModel(), names))
		return
	}
	svc, err := r.Engines.Set(chatID, args[0])
	if err != nil {
		r.send(chatID, "Unknown engine. Available: "+names)
		return
	}
	r.send(chatID, fmt.Sprintf("Engine: %s (%s)", svc.Name(), svc.GetModel()))
}

func (r *Router) handleList(chatID int64) {
	if r.Items == nil {
		r.send(chatID, "The notebook is not available right now.")
		return
	}
	items, err := r.Items.List(context.Background(), store.Filter{OwnerID: ownerID(chatID), Limit: 10})
	if err != nil {
		zap.L().Error("list items", zap.Int64("chat", chatID), zap.Error(err))
		r.send(chatID, "Could not load your notebook.")
		return
	}
	if len(items) == 0 {
		r.send(chatID, "Your notebook is empty.")
		return
	}
	var b strings.Builder
	b.WriteString("Latest questions:\n")
	lang := r.language(chatID)
	for i, it := range items {
		mark := " "
		if it.MasteryLevel > 0 {
			mark = "✓"
		}
		fmt.Fprintf(&b, "%d. [%s] %s %s\n", i+1, r.vocab().Label(it.Subject, lang), mark, firstLine(it.QuestionText, 80))
	}
	r.send(chatID, b.String())
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.Bot.Send(msg); err != nil {
		zap.L().Warn("telegram send", zap.Int64("chat", chatID), zap.Error(err))
	}
}

func (r *Router) sendWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	if _, err := r.Bot.Send(msg); err != nil {
		zap.L().Warn("telegram send", zap.Int64("chat", chatID), zap.Error(err))
	}
}

func (r *Router) typing(chatID int64) {
	_, _ = r.Bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
}

func (r *Router) SendError(chatID int64, err error) {
	r.send(chatID, userMessage(err))
}
