package tgate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Типизированные ошибки протокола. Ядро различает их через errors.Is /
// errors.As и строит на них политику ретраев.
var (
	// ErrNotModified — состояние на стороне бота не изменилось с момента
	// последнего известного снапшота (MESSAGE_NOT_MODIFIED).
	ErrNotModified = errors.New("message not modified")

	// ErrTokenInvalid — callback-токен кнопки устарел (QUERY_ID_INVALID):
	// бот успел переписать клавиатуру, нужен свежий снапшот.
	ErrTokenInvalid = errors.New("callback token invalid")

	// ErrTimedOut — шлюз не ответил на запрос в срок.
	ErrTimedOut = errors.New("request timed out")

	// ErrNotConnected — попытка запроса без живого соединения.
	ErrNotConnected = errors.New("not connected")
)

// FloodWait — серверный rate limit с подсказкой, сколько ждать.
type FloodWait struct {
	RetryAfter time.Duration
}

func (e *FloodWait) Error() string {
	return fmt.Sprintf("flood wait: retry after %s", e.RetryAfter)
}

// mapError — перевод кадра {"@type":"error"} в типизированную ошибку.
// Неизвестные коды возвращаются как обычная ошибка с кодом и текстом.
func mapError(code int, msg string) error {
	switch {
	case strings.Contains(msg, "MESSAGE_NOT_MODIFIED"):
		return ErrNotModified
	case strings.Contains(msg, "QUERY_ID_INVALID"):
		return ErrTokenInvalid
	case code == 429:
		return &FloodWait{RetryAfter: parseRetryAfter(msg)}
	case code == 408 || strings.Contains(msg, "TIMEOUT"):
		return ErrTimedOut
	default:
		return fmt.Errorf("gateway error %d: %s", code, msg)
	}
}

// parseRetryAfter — вытаскивает число секунд из "Too Many Requests:
// retry after 17". Если распарсить не удалось — консервативная секунда.
func parseRetryAfter(msg string) time.Duration {
	fields := strings.Fields(msg)
	for i := len(fields) - 1; i >= 0; i-- {
		if n, err := strconv.Atoi(fields[i]); err == nil && n >= 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Second
}
