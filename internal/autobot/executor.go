package autobot

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/bookhook/internal/tgate"
)

// Invoker — удалённый вызов «нажать кнопку» и дочитывание сообщения.
// Реализуется клиентом шлюза; в тестах подменяется скриптованной
// заглушкой.
type Invoker interface {
	PressButton(ctx context.Context, chatID, msgID int64, data []byte) error
	FetchMessage(ctx context.Context, chatID, msgID int64) (*tgate.Message, error)
}

// FailKind — классификация исхода клика. Структурные провалы и
// исчерпание ретраев в статистике отличимы от обычных таймаутов: первые
// говорят о несовпадении конфигурации с раскладкой бота, вторые —
// ожидаемая гонка.
type FailKind int

const (
	FailNone FailKind = iota
	FailNotModified
	FailTokenInvalid
	FailFlood
	FailTimeout
	FailStructural
	FailOther
)

func (k FailKind) String() string {
	switch k {
	case FailNone:
		return "none"
	case FailNotModified:
		return "not_modified"
	case FailTokenInvalid:
		return "token_invalid"
	case FailFlood:
		return "flood"
	case FailTimeout:
		return "timeout"
	case FailStructural:
		return "structural"
	default:
		return "other"
	}
}

// ClickOutcome — результат одного вызова Click: успех/провал, вид
// провала, число попыток и длительность. Эфемерный, возвращается
// вызывающему.
type ClickOutcome struct {
	OK       bool
	Kind     FailKind
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// ClickExecutor — нажимает кнопку с ретраями по таксономии ошибок
// протокола (см. tgate/errors.go). Ведёт собственные счётчики попыток.
type ClickExecutor struct {
	inv          Invoker
	cache        *MessageCache
	maxAttempts  int
	baseDelay    time.Duration
	floodCeiling time.Duration

	clicks    atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

func NewClickExecutor(inv Invoker, cache *MessageCache, maxAttempts int, baseDelay, floodCeiling time.Duration) *ClickExecutor {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	if floodCeiling <= 0 {
		floodCeiling = time.Minute
	}
	return &ClickExecutor{
		inv:          inv,
		cache:        cache,
		maxAttempts:  maxAttempts,
		baseDelay:    baseDelay,
		floodCeiling: floodCeiling,
	}
}

// Click — нажать btn в сообщении snap. reselect пересчитывает целевую
// кнопку по свежему снапшоту после refetch (токен мог смениться);
// nil reselect означает «бери ту же позицию».
//
// Политика ретраев:
//   - not modified: refetch снапшота, пересчёт кнопки, немедленный повтор;
//   - невалидный токен: то же — свежий снапшот и токен;
//   - flood wait: спим ровно подсказанное сервером время, попытку не
//     тратим; если подсказка больше потолка — бросаем;
//   - таймаут запроса: повтор через baseDelay·attempt;
//   - прочее: провал сразу, ретраев не будет.
func (e *ClickExecutor) Click(ctx context.Context, snap *MessageSnapshot, btn Button, reselect func(*MessageSnapshot) (Button, bool)) ClickOutcome {
	start := time.Now()
	e.clicks.Add(1)

	if reselect == nil {
		row, col := btn.Row, btn.Col
		reselect = func(s *MessageSnapshot) (Button, bool) {
			return FindPosition(s.Buttons, row, col)
		}
	}

	var lastKind FailKind
	var lastErr error

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		log.Debug().
			Int64("msg", snap.ID).
			Str("button", btn.Text).
			Int("attempt", attempt).
			Msg("pressing button")

		err := e.inv.PressButton(ctx, snap.ChatID, snap.ID, btn.Data)
		if err == nil {
			e.succeeded.Add(1)
			return ClickOutcome{OK: true, Attempts: attempt, Elapsed: time.Since(start)}
		}

		var flood *tgate.FloodWait
		switch {
		case errors.Is(err, tgate.ErrNotModified):
			lastKind, lastErr = FailNotModified, err
			fresh, ok := e.refetch(ctx, snap)
			if !ok {
				break // сеть легла, попробуем ту же кнопку ещё раз
			}
			snap = fresh
			next, found := reselect(fresh)
			if !found {
				e.failed.Add(1)
				return ClickOutcome{Kind: FailStructural, Attempts: attempt, Elapsed: time.Since(start), Err: err}
			}
			btn = next
			continue // немедленный повтор

		case errors.Is(err, tgate.ErrTokenInvalid):
			lastKind, lastErr = FailTokenInvalid, err
			fresh, ok := e.refetch(ctx, snap)
			if !ok {
				break
			}
			snap = fresh
			next, found := reselect(fresh)
			if !found {
				e.failed.Add(1)
				return ClickOutcome{Kind: FailStructural, Attempts: attempt, Elapsed: time.Since(start), Err: err}
			}
			btn = next
			continue

		case errors.As(err, &flood):
			lastKind, lastErr = FailFlood, err
			if flood.RetryAfter > e.floodCeiling {
				log.Warn().Dur("retry_after", flood.RetryAfter).Msg("flood wait over ceiling, abandoning click")
				e.failed.Add(1)
				return ClickOutcome{Kind: FailFlood, Attempts: attempt, Elapsed: time.Since(start), Err: err}
			}
			if !sleepCtx(ctx, flood.RetryAfter) {
				e.failed.Add(1)
				return ClickOutcome{Kind: FailFlood, Attempts: attempt, Elapsed: time.Since(start), Err: ctx.Err()}
			}
			attempt-- // ожидание по подсказке сервера попытку не тратит
			continue

		case errors.Is(err, tgate.ErrTimedOut):
			lastKind, lastErr = FailTimeout, err
			if attempt < e.maxAttempts {
				if !sleepCtx(ctx, e.baseDelay*time.Duration(attempt)) {
					e.failed.Add(1)
					return ClickOutcome{Kind: FailTimeout, Attempts: attempt, Elapsed: time.Since(start), Err: ctx.Err()}
				}
			}
			continue

		default:
			e.failed.Add(1)
			return ClickOutcome{Kind: FailOther, Attempts: attempt, Elapsed: time.Since(start), Err: err}
		}

		// сюда попадаем только из break выше (refetch не удался):
		// короткая пауза и обычный повтор
		if attempt < e.maxAttempts && !sleepCtx(ctx, e.baseDelay) {
			break
		}
	}

	e.failed.Add(1)
	return ClickOutcome{Kind: lastKind, Attempts: e.maxAttempts, Elapsed: time.Since(start), Err: lastErr}
}

// Totals — счётчики исполнителя: всего кликов, успешных, провальных.
func (e *ClickExecutor) Totals() (clicks, succeeded, failed int64) {
	return e.clicks.Load(), e.succeeded.Load(), e.failed.Load()
}

// refetch — дочитать актуальный снапшот и влить его в кэш, чтобы
// остальное ядро тоже видело свежую раскладку.
func (e *ClickExecutor) refetch(ctx context.Context, snap *MessageSnapshot) (*MessageSnapshot, bool) {
	msg, err := e.inv.FetchMessage(ctx, snap.ChatID, snap.ID)
	if err != nil {
		log.Warn().Err(err).Int64("msg", snap.ID).Msg("refetch failed")
		return nil, false
	}
	fresh := snapshotFromMessage(msg, time.Now())
	if e.cache != nil {
		e.cache.Update(fresh)
	}
	return fresh, true
}

// sleepCtx — сон с уважением к отмене; false, если контекст погас.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
