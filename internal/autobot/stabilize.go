package autobot

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Стратегии стабилизации. Все отвечают на один вопрос: сколько тишины
// после последней правки достаточно, чтобы доверять текущей раскладке
// кнопок.
const (
	StrategyWait       = "wait"
	StrategyAggressive = "aggressive"
	StrategyPredict    = "predict"
)

// Strategy — выбирается один раз при конструировании по имени из
// конфига; на каждый вызов отдаёт требуемое окно тишины для конкретной
// истории правок.
type Strategy interface {
	Name() string
	QuietBound(h *EditHistory) time.Duration
}

// waitStrategy — полный порог. Максимальная точность, задержка равна
// порогу при каждой правке рядом с моментом клика.
type waitStrategy struct {
	threshold time.Duration
}

func (s waitStrategy) Name() string                          { return StrategyWait }
func (s waitStrategy) QuietBound(*EditHistory) time.Duration { return s.threshold }

// aggressiveStrategy — половина порога: меньше задержка, ненулевой шанс
// кликнуть по раскладке, которая ещё мутирует.
type aggressiveStrategy struct {
	threshold time.Duration
}

func (s aggressiveStrategy) Name() string { return StrategyAggressive }
func (s aggressiveStrategy) QuietBound(*EditHistory) time.Duration {
	return s.threshold / 2
}

// predictStrategy — пуассоновская оценка: правки считаем процессом без
// памяти со скоростью 1/m (m — средний интервал по окну). Вероятность,
// что правки закончились, после q тишины ≈ 1 - e^(-q/m); порог тишины
// берём из требуемой уверенности: q = -m·ln(1-confidence), и зажимаем
// между aggressive и wait, чтобы предиктор оставался «быстрее wait,
// безопаснее aggressive». При менее чем двух замерах деградирует до wait.
type predictStrategy struct {
	threshold  time.Duration
	confidence float64
}

func (s predictStrategy) Name() string { return StrategyPredict }

func (s predictStrategy) QuietBound(h *EditHistory) time.Duration {
	if h == nil || h.Len() < 2 {
		return s.threshold
	}
	m := h.MeanInterval()
	if m <= 0 {
		return s.threshold
	}
	q := time.Duration(-float64(m) * math.Log(1-s.confidence))
	lo, hi := s.threshold/2, s.threshold
	if q < lo {
		return lo
	}
	if q > hi {
		return hi
	}
	return q
}

// NewStrategy — фабрика по имени из конфига.
func NewStrategy(name string, threshold time.Duration, confidence float64) (Strategy, error) {
	if threshold <= 0 {
		threshold = 150 * time.Millisecond
	}
	switch name {
	case StrategyWait, "":
		return waitStrategy{threshold: threshold}, nil
	case StrategyAggressive:
		return aggressiveStrategy{threshold: threshold}, nil
	case StrategyPredict:
		if confidence <= 0 || confidence >= 1 {
			confidence = 0.95
		}
		return predictStrategy{threshold: threshold, confidence: confidence}, nil
	default:
		return nil, fmt.Errorf("unknown stabilization strategy %q", name)
	}
}

// StabilizationDetector — отвечает «устаканилось ли сообщение» по его
// истории правок и выбранной стратегии.
type StabilizationDetector struct {
	tracker  *HistoryTracker
	strategy Strategy
}

func NewStabilizationDetector(tracker *HistoryTracker, strategy Strategy) *StabilizationDetector {
	return &StabilizationDetector{tracker: tracker, strategy: strategy}
}

// IsStabilized — мгновенная проверка на момент now. Сообщение без
// единой записи считается нестабилизированным: мы о нём ничего не знаем.
func (d *StabilizationDetector) IsStabilized(msgID int64, now time.Time) bool {
	h := d.tracker.History(msgID)
	if h == nil {
		return false
	}
	last, ok := h.Last()
	if !ok {
		return false
	}
	return now.Sub(last) >= d.strategy.QuietBound(h)
}

// Probability — непрерывная уверенность [0,1] для вызывающих, которым
// нужен порог доверия, а не булево.
func (d *StabilizationDetector) Probability(msgID int64, now time.Time) float64 {
	h := d.tracker.History(msgID)
	if h == nil {
		return 0
	}
	last, ok := h.Last()
	if !ok {
		return 0
	}
	quiet := now.Sub(last)
	if quiet <= 0 {
		return 0
	}
	if m := h.MeanInterval(); m > 0 {
		return 1 - math.Exp(-float64(quiet)/float64(m))
	}
	// один замер: линейная шкала до границы стратегии
	bound := d.strategy.QuietBound(h)
	if quiet >= bound {
		return 1
	}
	return float64(quiet) / float64(bound)
}

// WaitForStabilization — блокирует вызывающего до стабилизации либо
// истечения timeout/контекста; возвращает false на таймауте (это не
// ошибка). Переоценка происходит на каждой новой правке сообщения —
// никакого опроса по фиксированному таймеру, последняя правка перед
// кликом не будет пропущена.
func (d *StabilizationDetector) WaitForStabilization(ctx context.Context, msgID int64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	edits := d.tracker.subscribe(msgID)
	defer d.tracker.unsubscribe(msgID, edits)

	for {
		now := time.Now()
		if d.IsStabilized(msgID, now) {
			return true
		}
		if !now.Before(deadline) {
			return false
		}

		// спим ровно до момента, когда тишины станет достаточно,
		// либо до дедлайна — что раньше; любая правка прерывает сон
		wake := deadline.Sub(now)
		if h := d.tracker.History(msgID); h != nil {
			if last, ok := h.Last(); ok {
				if until := d.strategy.QuietBound(h) - now.Sub(last); until > 0 && until < wake {
					wake = until
				}
			}
		}

		timer := time.NewTimer(wake)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-edits:
			timer.Stop()
		case <-timer.C:
		}
	}
}
