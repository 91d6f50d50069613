package autobot

import (
	"sync"
	"time"
)

// defaultHistoryWindow — сколько последних правок помним на сообщение.
const defaultHistoryWindow = 20

// EditHistory — ограниченная история правок одного сообщения: окно из
// N последних таймстампов (старые вытесняются) и производные метрики.
type EditHistory struct {
	times []time.Time
	cap   int
}

func newEditHistory(capacity int) *EditHistory {
	if capacity <= 0 {
		capacity = defaultHistoryWindow
	}
	return &EditHistory{cap: capacity}
}

func (h *EditHistory) add(t time.Time) {
	h.times = append(h.times, t)
	if len(h.times) > h.cap {
		// вытесняем самый старый; окно маленькое, сдвиг дешевле кольца
		copy(h.times, h.times[1:])
		h.times = h.times[:h.cap]
	}
}

// Len — число правок в окне.
func (h *EditHistory) Len() int { return len(h.times) }

// Last — время последней правки; ok=false, если правок ещё не было.
func (h *EditHistory) Last() (time.Time, bool) {
	if len(h.times) == 0 {
		return time.Time{}, false
	}
	return h.times[len(h.times)-1], true
}

// Times — копия окна таймстампов (от старых к новым).
func (h *EditHistory) Times() []time.Time {
	out := make([]time.Time, len(h.times))
	copy(out, h.times)
	return out
}

// Frequency — правок в секунду по размаху окна: (N-1)/span.
// Меньше двух замеров — 0.
func (h *EditHistory) Frequency() float64 {
	if len(h.times) < 2 {
		return 0
	}
	span := h.times[len(h.times)-1].Sub(h.times[0]).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(len(h.times)-1) / span
}

// MeanInterval — средний интервал между правками; 0, если замеров
// меньше двух.
func (h *EditHistory) MeanInterval() time.Duration {
	if len(h.times) < 2 {
		return 0
	}
	span := h.times[len(h.times)-1].Sub(h.times[0])
	return span / time.Duration(len(h.times)-1)
}

// HistoryTracker — истории правок по всем отслеживаемым сообщениям.
// Неизвестные id заводятся лениво при первой записи; ошибок нет.
// Дополнительно держит подписчиков: ожидающие стабилизации будятся на
// каждой новой правке их сообщения, а не по таймеру.
type HistoryTracker struct {
	mu        sync.Mutex
	window    int
	histories map[int64]*EditHistory
	waiters   map[int64]map[chan struct{}]struct{}
}

func NewHistoryTracker(window int) *HistoryTracker {
	if window <= 0 {
		window = defaultHistoryWindow
	}
	return &HistoryTracker{
		window:    window,
		histories: make(map[int64]*EditHistory),
		waiters:   make(map[int64]map[chan struct{}]struct{}),
	}
}

// RecordEdit — фиксирует правку и будит ожидающих этого сообщения.
func (t *HistoryTracker) RecordEdit(msgID int64, at time.Time) {
	t.mu.Lock()
	h, ok := t.histories[msgID]
	if !ok {
		h = newEditHistory(t.window)
		t.histories[msgID] = h
	}
	h.add(at)
	for ch := range t.waiters[msgID] {
		select {
		case ch <- struct{}{}:
		default: // ожидающий ещё не разобрал прошлый сигнал
		}
	}
	t.mu.Unlock()
}

// History — копия истории сообщения; nil, если правок не было.
func (t *HistoryTracker) History(msgID int64) *EditHistory {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.histories[msgID]
	if !ok {
		return nil
	}
	cp := newEditHistory(h.cap)
	cp.times = append(cp.times, h.times...)
	return cp
}

// LastEdit — время последней правки сообщения.
func (t *HistoryTracker) LastEdit(msgID int64) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.histories[msgID]; ok {
		return h.Last()
	}
	return time.Time{}, false
}

// Frequency — правок/сек для сообщения; 0 для неизвестных id.
func (t *HistoryTracker) Frequency(msgID int64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.histories[msgID]; ok {
		return h.Frequency()
	}
	return 0
}

// Forget — выбросить историю сообщения (например, после вытеснения из
// кэша).
func (t *HistoryTracker) Forget(msgID int64) {
	t.mu.Lock()
	delete(t.histories, msgID)
	t.mu.Unlock()
}

// subscribe — канал, в который прилетает сигнал на каждую правку msgID.
// Отписка обязательна через unsubscribe.
func (t *HistoryTracker) subscribe(msgID int64) chan struct{} {
	ch := make(chan struct{}, 1)
	t.mu.Lock()
	if t.waiters[msgID] == nil {
		t.waiters[msgID] = make(map[chan struct{}]struct{})
	}
	t.waiters[msgID][ch] = struct{}{}
	t.mu.Unlock()
	return ch
}

func (t *HistoryTracker) unsubscribe(msgID int64, ch chan struct{}) {
	t.mu.Lock()
	if set, ok := t.waiters[msgID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(t.waiters, msgID)
		}
	}
	t.mu.Unlock()
}
