package autobot

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// State — закрытое множество состояний автомата.
type State int

const (
	StateIdle State = iota // ждём триггер
	StateStep1             // клик «Список прямых перевозок»
	StateStep2             // клик по записи в списке
	StateStep3             // клик подтверждения
	StateCompleted
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStep1:
		return "STEP_1"
	case StateStep2:
		return "STEP_2"
	case StateStep3:
		return "STEP_3"
	case StateCompleted:
		return "COMPLETED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// transition — запись журнала переходов (ограниченный хвост для
// диагностики).
type transition struct {
	From   State
	To     State
	At     time.Time
	Reason string
}

const transitionLogCap = 32

// StateMachine — конечный автомат прогона:
//
//	IDLE → STEP_1 → STEP_2 → STEP_3 → COMPLETED → IDLE,
//	ERROR достижим из любого не-IDLE состояния.
//
// Переходы монотонны вдоль графа, перепрыгивать шаги вперёд нельзя.
// Таймаут шага — не ошибка: прогон бросается и автомат сам
// возвращается в IDLE, чтобы зависший бот не блокировал будущие
// триггеры. В полёте всегда не больше одного прогона.
type StateMachine struct {
	mu sync.Mutex

	state     State
	enteredAt time.Time

	runID        uuid.UUID
	triggerMsgID int64
	stepMsgIDs   [3]int64

	stepTimeouts [3]time.Duration

	history []transition
}

func NewStateMachine(step1, step2, step3 time.Duration) *StateMachine {
	const def = 15 * time.Second
	if step1 <= 0 {
		step1 = def
	}
	if step2 <= 0 {
		step2 = def
	}
	if step3 <= 0 {
		step3 = def
	}
	return &StateMachine{
		state:        StateIdle,
		stepTimeouts: [3]time.Duration{step1, step2, step3},
	}
}

// State — текущее состояние.
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsIdle / IsActive — удобные предикаты.
func (m *StateMachine) IsIdle() bool { return m.State() == StateIdle }

func (m *StateMachine) IsActive() bool {
	s := m.State()
	return s == StateStep1 || s == StateStep2 || s == StateStep3
}

// RunID — идентификатор текущего прогона (нулевой, когда IDLE).
func (m *StateMachine) RunID() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runID
}

// TriggerMsgID — id триггерного сообщения текущего прогона.
func (m *StateMachine) TriggerMsgID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggerMsgID
}

// StepMsgID — id сообщения-ответа завершённого шага (1..3); 0, если шаг
// ещё не завершён.
func (m *StateMachine) StepMsgID(step int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if step < 1 || step > 3 {
		return 0
	}
	return m.stepMsgIDs[step-1]
}

// StartRun — IDLE → STEP_1 по триггеру. false, если прогон уже идёт:
// триггер в этом случае отбрасывается, не ставится в очередь — две
// параллельные серии кликов передрались бы за одну сессию.
func (m *StateMachine) StartRun(triggerMsgID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return false
	}
	m.runID = uuid.New()
	m.triggerMsgID = triggerMsgID
	m.stepMsgIDs = [3]int64{}
	m.to(StateStep1, "trigger detected")
	return true
}

// CompleteStep — успех текущего шага: STEP_N → STEP_N+1, STEP_3 →
// COMPLETED. respMsgID — сообщение-ответ, закрывшее шаг. false, если
// автомат не в активном шаге (поздний ответ после таймаута).
func (m *StateMachine) CompleteStep(respMsgID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateStep1:
		m.stepMsgIDs[0] = respMsgID
		m.to(StateStep2, "step 1 completed")
	case StateStep2:
		m.stepMsgIDs[1] = respMsgID
		m.to(StateStep3, "step 2 completed")
	case StateStep3:
		m.stepMsgIDs[2] = respMsgID
		m.to(StateCompleted, "step 3 completed")
	default:
		return false
	}
	return true
}

// FinishRun — COMPLETED → IDLE после записи статистики прогона.
func (m *StateMachine) FinishRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateCompleted {
		return
	}
	m.clearRun()
	m.to(StateIdle, "run recorded")
}

// Fail — любое не-IDLE состояние → ERROR (исчерпанные ретраи,
// структурный провал). Из ERROR выход только явным Reset.
func (m *StateMachine) Fail(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateIdle || m.state == StateError {
		return
	}
	m.to(StateError, reason)
}

// Reset — явный сброс в IDLE (оператор либо авто-восстановление).
// false, если автомат уже IDLE: прогон успел сбросить кто-то другой
// (например, сторож таймаутов), и учитывать исход второй раз нельзя.
func (m *StateMachine) Reset(reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateIdle {
		return false
	}
	m.clearRun()
	m.to(StateIdle, reason)
	return true
}

// CurrentTimeout — таймаут текущего шага; 0 вне активных шагов.
func (m *StateMachine) CurrentTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateStep1:
		return m.stepTimeouts[0]
	case StateStep2:
		return m.stepTimeouts[1]
	case StateStep3:
		return m.stepTimeouts[2]
	default:
		return 0
	}
}

// Elapsed — сколько автомат находится в текущем состоянии.
func (m *StateMachine) Elapsed(now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enteredAt.IsZero() {
		return 0
	}
	return now.Sub(m.enteredAt)
}

// ExpireIfTimedOut — проверка дедлайна шага. При истечении прогон
// бросается и автомат возвращается в IDLE; это штатный исход, не
// ошибка. true, если сброс произошёл.
func (m *StateMachine) ExpireIfTimedOut(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	var timeout time.Duration
	switch m.state {
	case StateStep1:
		timeout = m.stepTimeouts[0]
	case StateStep2:
		timeout = m.stepTimeouts[1]
	case StateStep3:
		timeout = m.stepTimeouts[2]
	default:
		return false
	}
	if now.Sub(m.enteredAt) <= timeout {
		return false
	}

	from := m.state
	m.clearRun()
	m.to(StateIdle, "step timeout, run abandoned")
	log.Warn().Str("from", from.String()).Dur("timeout", timeout).Msg("step timed out, back to IDLE")
	return true
}

// History — копия журнала переходов.
func (m *StateMachine) History() []transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]transition, len(m.history))
	copy(out, m.history)
	return out
}

// to — собственно переход; вызывается только под mu.
func (m *StateMachine) to(next State, reason string) {
	from := m.state
	m.state = next
	m.enteredAt = time.Now()

	m.history = append(m.history, transition{From: from, To: next, At: m.enteredAt, Reason: reason})
	if len(m.history) > transitionLogCap {
		copy(m.history, m.history[1:])
		m.history = m.history[:transitionLogCap]
	}

	log.Info().
		Str("run", m.runID.String()).
		Str("from", from.String()).
		Str("to", next.String()).
		Str("reason", reason).
		Msg("state transition")
}

func (m *StateMachine) clearRun() {
	m.runID = uuid.UUID{}
	m.triggerMsgID = 0
	m.stepMsgIDs = [3]int64{}
}
