package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"errbook/api/internal/ai"
	"errbook/api/internal/question"
	"errbook/api/internal/util"
)

const (
	cbSimilarPrefix = "sim:"
	cbMastered      = "mastered"
	maxMessageLen   = 3900
)

// Buttons under an analyzed question.
func makeQuestionKeyboard(saved bool) tgbotapi.InlineKeyboardMarkup {
	row := tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Similar question", cbSimilarPrefix+string(question.DifficultyMedium)),
		tgbotapi.NewInlineKeyboardButtonData("Harder", cbSimilarPrefix+string(question.DifficultyHard)),
	)
	if !saved {
		return tgbotapi.NewInlineKeyboardMarkup(row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(row, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Mark as mastered", cbMastered),
	))
}

func formatRecord(title string, rec question.Record, vocab *question.Vocabulary, lang question.Language) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Subject: %s\n", vocab.Label(rec.Subject, lang))
	if len(rec.KnowledgePoints) > 0 {
		fmt.Fprintf(&b, "Knowledge points: %s\n", strings.Join(rec.KnowledgePoints, ", "))
	}
	b.WriteString("\nQuestion:\n")
	b.WriteString(rec.QuestionText)
	b.WriteString("\n\nAnswer:\n")
	b.WriteString(rec.AnswerText)
	b.WriteString("\n\nAnalysis:\n")
	b.WriteString(rec.Analysis)
	return util.Truncate(b.String(), maxMessageLen)
}

// userMessage turns a classified failure into something a student can act on.
func userMessage(err error) string {
	switch ai.KindOf(err) {
	case ai.KindConnection:
		return "Could not reach the AI service. Please try again in a moment."
	case ai.KindAuth:
		return "The AI service rejected our credentials. Please tell the bot owner."
	case ai.KindResponse:
		return "The AI answer could not be read. Try a clearer photo of a single question."
	default:
		return "Something went wrong while analyzing the question."
	}
}

func firstLine(s string, n int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return util.Truncate(strings.TrimSpace(s), n)
}
