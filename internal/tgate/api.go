package tgate

import (
	"context"
	"fmt"
)

// ========================= high-level API =========================

// PressButton — нажатие inline-кнопки. Ответ "ok" означает, что бот
// принял callback; ошибки протокола приходят типизированными (см.
// errors.go), политика ретраев — на стороне вызывающего.
func (c *Client) PressButton(ctx context.Context, chatID, msgID int64, data []byte) error {
	extra := c.nextSeq()
	_, err := c.sendAsync(ctx, extra, &pressRequest{
		Type:      "pressInlineButton",
		Extra:     extra,
		ChatID:    chatID,
		MessageID: msgID,
		Data:      data,
	})
	return err
}

// FetchMessage — дочитать актуальное состояние сообщения (свежая
// клавиатура и callback-токены после очередного редактирования).
func (c *Client) FetchMessage(ctx context.Context, chatID, msgID int64) (*Message, error) {
	extra := c.nextSeq()
	env, err := c.sendAsync(ctx, extra, &getMessageRequest{
		Type:      "getMessage",
		Extra:     extra,
		ChatID:    chatID,
		MessageID: msgID,
	})
	if err != nil {
		return nil, err
	}
	if env.Msg == nil {
		return nil, fmt.Errorf("getMessage %d: empty response", msgID)
	}
	return env.Msg, nil
}
