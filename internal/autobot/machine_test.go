package autobot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMachineHappyPath(t *testing.T) {
	m := NewStateMachine(time.Second, time.Second, time.Second)
	require.Equal(t, StateIdle, m.State())

	require.True(t, m.StartRun(10))
	require.Equal(t, StateStep1, m.State())
	require.Equal(t, int64(10), m.TriggerMsgID())
	require.NotEqual(t, "00000000-0000-0000-0000-000000000000", m.RunID().String())

	require.True(t, m.CompleteStep(11))
	require.Equal(t, StateStep2, m.State())
	require.True(t, m.CompleteStep(12))
	require.Equal(t, StateStep3, m.State())
	require.True(t, m.CompleteStep(13))
	require.Equal(t, StateCompleted, m.State())

	require.Equal(t, int64(11), m.StepMsgID(1))
	require.Equal(t, int64(12), m.StepMsgID(2))
	require.Equal(t, int64(13), m.StepMsgID(3))

	m.FinishRun()
	require.Equal(t, StateIdle, m.State())
	require.Zero(t, m.TriggerMsgID())
}

func TestMachineDropsConcurrentTrigger(t *testing.T) {
	m := NewStateMachine(time.Second, time.Second, time.Second)

	require.True(t, m.StartRun(1))
	// второй триггер в полёте — отбрасывается, не очередь
	require.False(t, m.StartRun(2))
	require.Equal(t, int64(1), m.TriggerMsgID())
}

func TestMachineStepTimeoutReturnsToIdle(t *testing.T) {
	m := NewStateMachine(20*time.Millisecond, time.Second, time.Second)
	require.True(t, m.StartRun(1))

	// до дедлайна — ничего
	require.False(t, m.ExpireIfTimedOut(time.Now()))
	require.Equal(t, StateStep1, m.State())

	time.Sleep(30 * time.Millisecond)
	require.True(t, m.ExpireIfTimedOut(time.Now()))
	require.Equal(t, StateIdle, m.State()) // таймаут — не ошибка

	// следующий триггер свободно стартует новый прогон
	require.True(t, m.StartRun(2))
}

func TestMachineErrorNeedsExplicitReset(t *testing.T) {
	m := NewStateMachine(time.Second, time.Second, time.Second)
	require.True(t, m.StartRun(1))

	m.Fail("retries exhausted")
	require.Equal(t, StateError, m.State())

	// из ERROR таймауты и шаги не выводят
	require.False(t, m.ExpireIfTimedOut(time.Now().Add(time.Hour)))
	require.False(t, m.CompleteStep(5))
	require.Equal(t, StateError, m.State())

	require.True(t, m.Reset("operator reset"))
	require.Equal(t, StateIdle, m.State())
}

func TestMachineResetReportsWhoWon(t *testing.T) {
	m := NewStateMachine(time.Second, time.Second, time.Second)

	// сброс IDLE — no-op: прогон уже сброшен кем-то другим
	require.False(t, m.Reset("late"))

	require.True(t, m.StartRun(1))
	require.True(t, m.Reset("first"))
	// второй сброс того же прогона не проходит
	require.False(t, m.Reset("second"))
}

func TestMachineFailNoopWhenIdle(t *testing.T) {
	m := NewStateMachine(time.Second, time.Second, time.Second)
	m.Fail("nothing in flight")
	require.Equal(t, StateIdle, m.State())
}

func TestMachineCompleteStepNoopWhenIdle(t *testing.T) {
	m := NewStateMachine(time.Second, time.Second, time.Second)
	// поздний ответ после авто-сброса не двигает автомат
	require.False(t, m.CompleteStep(5))
	require.Equal(t, StateIdle, m.State())
}

func TestMachineCurrentTimeoutPerStep(t *testing.T) {
	m := NewStateMachine(time.Second, 2*time.Second, 3*time.Second)
	require.Zero(t, m.CurrentTimeout())

	m.StartRun(1)
	require.Equal(t, time.Second, m.CurrentTimeout())
	m.CompleteStep(2)
	require.Equal(t, 2*time.Second, m.CurrentTimeout())
	m.CompleteStep(3)
	require.Equal(t, 3*time.Second, m.CurrentTimeout())
}

func TestMachineHistoryBounded(t *testing.T) {
	m := NewStateMachine(time.Second, time.Second, time.Second)
	for i := 0; i < 40; i++ {
		m.StartRun(int64(i))
		m.Reset("loop")
	}
	require.LessOrEqual(t, len(m.History()), transitionLogCap)
}
