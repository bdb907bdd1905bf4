package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"errbook/api/internal/ai"
	"errbook/api/internal/question"
)

func (r *Router) handleCallback(cb tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	cid := cb.Message.Chat.ID
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")) // ack

	switch {
	case strings.HasPrefix(cb.Data, cbSimilarPrefix):
		d := question.ParseDifficulty(strings.TrimPrefix(cb.Data, cbSimilarPrefix))
		r.similar(context.Background(), cid, d)
	case cb.Data == cbMastered:
		r.onMastered(cid, cb.Message.MessageID)
	}
}

func (r *Router) similar(ctx context.Context, chatID int64, d question.Difficulty) {
	sess, ok := r.session(chatID)
	if !ok {
		r.send(chatID, "Send a photo of a question first.")
		return
	}
	svc, err := r.Engines.Get(chatID)
	if err != nil {
		r.send(chatID, "No engine configured.")
		return
	}
	lang := r.language(chatID)

	r.typing(chatID)
	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	rec, err := svc.GenerateSimilarQuestion(ctx, ai.SimilarRequest{
		OriginalQuestion: sess.Record.QuestionText,
		KnowledgePoints:  sess.Record.KnowledgePoints,
		Language:         lang,
		Difficulty:       d,
	})
	if err != nil {
		zap.L().Warn("telegram similar", zap.Int64("chat", chatID), zap.String("kind", string(ai.KindOf(err))), zap.Error(err))
		r.SendError(chatID, err)
		return
	}
	r.send(chatID, formatRecord("Practice question ("+string(d)+"):", rec, r.vocab(), lang))
}

func (r *Router) onMastered(chatID int64, msgID int) {
	sess, ok := r.session(chatID)
	if !ok || sess.ItemID == "" || r.Items == nil {
		r.send(chatID, "Nothing to mark.")
		return
	}
	if err := r.Items.UpdateMastery(context.Background(), sess.ItemID, 1); err != nil {
		zap.L().Error("update mastery", zap.String("item", sess.ItemID), zap.Error(err))
		r.send(chatID, "Could not update the notebook.")
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, msgID, makeQuestionKeyboard(false))
	_, _ = r.Bot.Send(edit)
	r.send(chatID, "Marked as mastered.")
}
