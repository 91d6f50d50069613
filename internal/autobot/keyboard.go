package autobot

import (
	"hash/fnv"
	"strings"
	"time"

	"example.com/bookhook/internal/tgate"
)

// Button — неизменяемый срез одной кнопки: текст, непрозрачный
// callback-токен и адрес в сетке. Идентичность — (Row, Col) внутри
// одного снапшота; текст и токен могут меняться между правками даже на
// той же позиции.
type Button struct {
	Text string
	Data []byte
	Row  int
	Col  int
}

// MessageSnapshot — снапшот сообщения с разобранной клавиатурой.
// Владеет им кэш; при каждой правке снапшот заменяется целиком, чтобы
// читатели никогда не видели полуобновлённое состояние.
type MessageSnapshot struct {
	ID       int64
	ChatID   int64
	Text     string
	Buttons  []Button // row-major порядок
	Created  time.Time
	EditedAt time.Time
}

// ParseKeyboard — чистая функция разбора сырой клавиатуры в плоский
// row-major список кнопок. Терпит nil, пустую сетку и ряды разной
// длины; кнопки без текста пропускаются.
func ParseKeyboard(kb *tgate.InlineKeyboard) []Button {
	if kb == nil || len(kb.Rows) == 0 {
		return nil
	}
	var buttons []Button
	for r, row := range kb.Rows {
		for c, b := range row.Buttons {
			if b.Text == "" {
				continue
			}
			buttons = append(buttons, Button{
				Text: b.Text,
				Data: b.Data,
				Row:  r,
				Col:  c,
			})
		}
	}
	return buttons
}

// ButtonTexts — тексты кнопок снапшота по порядку; по ним ядро отличает
// «та же клавиатура» от «бот перерисовал меню».
func ButtonTexts(buttons []Button) []string {
	if len(buttons) == 0 {
		return nil
	}
	texts := make([]string, len(buttons))
	for i, b := range buttons {
		texts[i] = b.Text
	}
	return texts
}

// GridDigest — компактный слепок раскладки для журнала изменений.
func GridDigest(buttons []Button) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join(ButtonTexts(buttons), "\x1f")))
	return h.Sum64()
}

// snapshotFromMessage — конвертация сообщения шлюза в снапшот.
func snapshotFromMessage(msg *tgate.Message, at time.Time) *MessageSnapshot {
	return &MessageSnapshot{
		ID:       msg.ID,
		ChatID:   msg.ChatID,
		Text:     msg.Text,
		Buttons:  ParseKeyboard(msg.ReplyMarkup),
		Created:  at,
		EditedAt: at,
	}
}
