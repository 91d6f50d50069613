package autobot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/bookhook/internal/tgate"
)

// scriptedInvoker — заглушка шлюза: заранее заданная последовательность
// исходов PressButton и счётчик refetch'ей.
type scriptedInvoker struct {
	mu      sync.Mutex
	presses []error // по одному на вызов; закончились — nil (успех)
	pressed int
	fetched int
	msg     *tgate.Message
}

func (s *scriptedInvoker) PressButton(_ context.Context, _, _ int64, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pressed++
	if len(s.presses) == 0 {
		return nil
	}
	err := s.presses[0]
	s.presses = s.presses[1:]
	return err
}

func (s *scriptedInvoker) FetchMessage(_ context.Context, _, msgID int64) (*tgate.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched++
	if s.msg != nil {
		return s.msg, nil
	}
	return &tgate.Message{
		ID:     msgID,
		ChatID: 100,
		ReplyMarkup: &tgate.InlineKeyboard{Rows: []tgate.KeyboardRow{
			{Buttons: []tgate.KeyboardButton{{Text: "Подтвердить", Data: []byte("fresh")}}},
		}},
	}, nil
}

func (s *scriptedInvoker) counts() (pressed, fetched int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pressed, s.fetched
}

func testSnap() *MessageSnapshot {
	return snap(1, "Подтвердить")
}

func TestClickRetriesNotModified(t *testing.T) {
	inv := &scriptedInvoker{presses: []error{tgate.ErrNotModified, tgate.ErrNotModified, nil}}
	cache := NewMessageCache(10)
	ex := NewClickExecutor(inv, cache, 3, time.Millisecond, time.Minute)

	btn, _ := FindFirst(testSnap().Buttons)
	out := ex.Click(context.Background(), testSnap(), btn, nil)

	require.True(t, out.OK)
	require.Equal(t, 3, out.Attempts)

	pressed, fetched := inv.counts()
	require.Equal(t, 3, pressed)
	require.Equal(t, 2, fetched) // ровно по refetch'у на каждый not-modified

	// свежий снапшот после refetch'а виден остальному ядру
	got, ok := cache.Get(1)
	require.True(t, ok)
	require.Equal(t, []byte("fresh"), got.Buttons[0].Data)
}

func TestClickTokenInvalidRefreshesToken(t *testing.T) {
	inv := &scriptedInvoker{presses: []error{tgate.ErrTokenInvalid, nil}}
	ex := NewClickExecutor(inv, NewMessageCache(10), 3, time.Millisecond, time.Minute)

	btn, _ := FindFirst(testSnap().Buttons)
	out := ex.Click(context.Background(), testSnap(), btn, nil)

	require.True(t, out.OK)
	require.Equal(t, 2, out.Attempts)
	_, fetched := inv.counts()
	require.Equal(t, 1, fetched)
}

func TestClickFloodWaitSleepsHint(t *testing.T) {
	inv := &scriptedInvoker{presses: []error{&tgate.FloodWait{RetryAfter: 40 * time.Millisecond}, nil}}
	ex := NewClickExecutor(inv, NewMessageCache(10), 3, time.Millisecond, time.Minute)

	btn, _ := FindFirst(testSnap().Buttons)
	start := time.Now()
	out := ex.Click(context.Background(), testSnap(), btn, nil)

	require.True(t, out.OK)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	// ожидание по подсказке сервера не тратит попытку
	require.Equal(t, 1, out.Attempts)
}

func TestClickFloodOverCeilingAbandons(t *testing.T) {
	inv := &scriptedInvoker{presses: []error{&tgate.FloodWait{RetryAfter: time.Hour}}}
	ex := NewClickExecutor(inv, NewMessageCache(10), 3, time.Millisecond, time.Second)

	btn, _ := FindFirst(testSnap().Buttons)
	out := ex.Click(context.Background(), testSnap(), btn, nil)

	require.False(t, out.OK)
	require.Equal(t, FailFlood, out.Kind)
	pressed, _ := inv.counts()
	require.Equal(t, 1, pressed)
}

func TestClickTimeoutExhaustsAttempts(t *testing.T) {
	inv := &scriptedInvoker{presses: []error{tgate.ErrTimedOut, tgate.ErrTimedOut, tgate.ErrTimedOut}}
	ex := NewClickExecutor(inv, NewMessageCache(10), 3, time.Millisecond, time.Minute)

	btn, _ := FindFirst(testSnap().Buttons)
	out := ex.Click(context.Background(), testSnap(), btn, nil)

	require.False(t, out.OK)
	require.Equal(t, FailTimeout, out.Kind)
	require.Equal(t, 3, out.Attempts)

	clicks, ok, failed := ex.Totals()
	require.Equal(t, int64(1), clicks)
	require.Zero(t, ok)
	require.Equal(t, int64(1), failed)
}

func TestClickStructuralWhenButtonVanishes(t *testing.T) {
	// после refetch'а в раскладке нет нужной кнопки — ретраи не
	// наколдуют кнопку, которой бот не предложил
	inv := &scriptedInvoker{
		presses: []error{tgate.ErrNotModified},
		msg:     &tgate.Message{ID: 1, ChatID: 100}, // без клавиатуры
	}
	ex := NewClickExecutor(inv, NewMessageCache(10), 3, time.Millisecond, time.Minute)

	btn, _ := FindFirst(testSnap().Buttons)
	out := ex.Click(context.Background(), testSnap(), btn, nil)

	require.False(t, out.OK)
	require.Equal(t, FailStructural, out.Kind)
}

func TestClickUnexpectedErrorFailsFast(t *testing.T) {
	boom := errors.New("boom")
	inv := &scriptedInvoker{presses: []error{boom}}
	ex := NewClickExecutor(inv, NewMessageCache(10), 3, time.Millisecond, time.Minute)

	btn, _ := FindFirst(testSnap().Buttons)
	out := ex.Click(context.Background(), testSnap(), btn, nil)

	require.False(t, out.OK)
	require.Equal(t, FailOther, out.Kind)
	require.ErrorIs(t, out.Err, boom)
	require.Equal(t, 1, out.Attempts)
}
