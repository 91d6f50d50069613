package tgate

import (
	"encoding/json"
	"time"
)

// GateConfig — параметры подключения к шлюзу.
type GateConfig struct {
	Addr      string `json:"addr"`        // ws://host:port или wss://...
	AuthToken string `json:"auth_token"`  // токен сессии шлюза
	BotChatID int64  `json:"bot_chat_id"` // чат целевого бота; события других чатов отбрасываются
}

// KeyboardButton — одна inline-кнопка в сыром виде. Data — непрозрачный
// callback-токен; в JSON кодируется base64 и может меняться при каждом
// редактировании сообщения.
type KeyboardButton struct {
	Text string `json:"text"`
	Data []byte `json:"data"`
}

// KeyboardRow — один ряд кнопок. Ряды могут быть разной длины.
type KeyboardRow struct {
	Buttons []KeyboardButton `json:"buttons"`
}

// InlineKeyboard — сырая inline-клавиатура сообщения.
type InlineKeyboard struct {
	Rows []KeyboardRow `json:"rows"`
}

// Message — сообщение в том виде, как его отдаёт шлюз.
type Message struct {
	ID          int64           `json:"id"`
	ChatID      int64           `json:"chat_id"`
	Text        string          `json:"text"`
	ReplyMarkup *InlineKeyboard `json:"reply_markup,omitempty"`
	Date        int64           `json:"date"`
	EditDate    int64           `json:"edit_date"`
}

// MessageEvent — событие, доставляемое ядру через OnEvent.
// At — момент приёма события клиентом (монотонные расчёты стабилизации
// ведутся от него, а не от серверных дат).
type MessageEvent struct {
	Message *Message
	IsEdit  bool
	At      time.Time
}

// envelope — общий конверт кадра шлюза. Конкретное тело лежит в полях
// по месту: шлюз кладёт всё плоско, как TDLib.
type envelope struct {
	Type    string   `json:"@type"`
	Extra   uint64   `json:"@extra,omitempty"`
	Code    int      `json:"code,omitempty"`    // для @type=error
	Message string   `json:"message,omitempty"` // для @type=error
	Msg     *Message `json:"msg,omitempty"`     // для update* и ответа getMessage
}

// pressRequest — кадр pressInlineButton.
type pressRequest struct {
	Type      string `json:"@type"`
	Extra     uint64 `json:"@extra"`
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Data      []byte `json:"data"`
}

// getMessageRequest — кадр getMessage.
type getMessageRequest struct {
	Type      string `json:"@type"`
	Extra     uint64 `json:"@extra"`
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
}

func marshalFrame(v any) ([]byte, error) { return json.Marshal(v) }
