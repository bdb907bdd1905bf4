package telegram

import (
	"context"

	"go.uber.org/zap"

	"errbook/api/internal/ai"
	"errbook/api/internal/store"
	"errbook/api/internal/util"
)

// analyze runs the chat's engine on one image, saves the result and shows it.
func (r *Router) analyze(ctx context.Context, chatID int64, img []byte) {
	svc, err := r.Engines.Get(chatID)
	if err != nil {
		r.send(chatID, "No engine configured.")
		return
	}
	mime := util.SniffMimeHTTP(img)
	if !util.IsImageMIME(mime) {
		mime = "image/jpeg"
	}
	lang := r.language(chatID)

	r.typing(chatID)
	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	rec, err := svc.AnalyzeImage(ctx, ai.AnalyzeRequest{Image: img, MIMEType: mime, Language: lang})
	if err != nil {
		zap.L().Warn("telegram analyze", zap.Int64("chat", chatID), zap.String("kind", string(ai.KindOf(err))), zap.Error(err))
		r.SendError(chatID, err)
		return
	}

	sess := &chatSession{Record: rec, Engine: svc.Name()}
	if r.Items != nil {
		it, err := r.Items.Create(ctx, store.NewItem{OwnerID: ownerID(chatID), Record: rec})
		if err != nil {
			zap.L().Error("save item", zap.Int64("chat", chatID), zap.Error(err))
		} else {
			sess.ItemID = it.ID
		}
	}
	r.setSession(chatID, sess)

	title := "Saved to your notebook."
	if sess.ItemID == "" {
		title = "Here is the analysis."
	}
	r.sendWithKeyboard(chatID, formatRecord(title, rec, r.vocab(), lang), makeQuestionKeyboard(sess.ItemID != ""))
}
