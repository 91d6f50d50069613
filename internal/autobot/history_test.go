package autobot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHistoryWindowEviction(t *testing.T) {
	tr := NewHistoryTracker(5)
	base := time.Now()

	// K+1 правок в окно ёмкости K: остаются K самых свежих
	for i := 0; i < 6; i++ {
		tr.RecordEdit(1, base.Add(time.Duration(i)*time.Second))
	}

	h := tr.History(1)
	require.Equal(t, 5, h.Len())
	times := h.Times()
	require.Equal(t, base.Add(1*time.Second), times[0]) // самый старый вытеснен
	require.Equal(t, base.Add(5*time.Second), times[4])
}

func TestHistoryFrequency(t *testing.T) {
	tr := NewHistoryTracker(20)
	base := time.Now()

	require.Zero(t, tr.Frequency(7)) // неизвестный id

	tr.RecordEdit(7, base)
	require.Zero(t, tr.Frequency(7)) // один замер — частоты нет

	tr.RecordEdit(7, base.Add(500*time.Millisecond))
	tr.RecordEdit(7, base.Add(1*time.Second))
	require.InDelta(t, 2.0, tr.Frequency(7), 0.01) // 2 интервала за секунду
}

func TestHistoryMeanInterval(t *testing.T) {
	h := newEditHistory(20)
	base := time.Now()
	require.Zero(t, h.MeanInterval())

	h.add(base)
	h.add(base.Add(100 * time.Millisecond))
	h.add(base.Add(300 * time.Millisecond))
	require.Equal(t, 150*time.Millisecond, h.MeanInterval())
}

func TestTrackerLazyCreationAndForget(t *testing.T) {
	tr := NewHistoryTracker(0) // дефолтное окно

	_, ok := tr.LastEdit(42)
	require.False(t, ok)

	now := time.Now()
	tr.RecordEdit(42, now)
	last, ok := tr.LastEdit(42)
	require.True(t, ok)
	require.Equal(t, now, last)

	tr.Forget(42)
	_, ok = tr.LastEdit(42)
	require.False(t, ok)
}

func TestTrackerWakesSubscribers(t *testing.T) {
	tr := NewHistoryTracker(20)
	ch := tr.subscribe(5)
	defer tr.unsubscribe(5, ch)

	tr.RecordEdit(5, time.Now())
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("подписчик не разбужен правкой")
	}

	// чужое сообщение будить не должно
	tr.RecordEdit(6, time.Now())
	select {
	case <-ch:
		t.Fatal("разбужен правкой чужого сообщения")
	case <-time.After(20 * time.Millisecond):
	}
}
