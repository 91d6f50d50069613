package autobot

import (
	"sync"
	"time"
)

// latencyWindowCap — сколько последних замеров длительности шага храним.
const latencyWindowCap = 100

// Statistics — счётчики на всё время жизни процесса. Инициализируются
// на старте, инкрементируются всеми компонентами, не сбрасываются.
// Счётчики — чистая функция доставленного потока событий: никакой
// дедупликации сверх того, что гарантирует доставка.
type Statistics struct {
	mu sync.Mutex

	Messages       int64
	Edits          int64
	TriggersSeen   int64
	RunsStarted    int64
	RunsCompleted  int64
	RunsTimedOut   int64
	RunsFailed     int64
	ClicksAttempts int64
	ClicksOK       int64
	ClicksFailed   int64
	Structural     int64 // нужной кнопки не было в раскладке
	Exhausted      int64 // ретраи клика исчерпаны

	stepLatency [3][]time.Duration
	lastCycle   time.Duration
	cycleSum    time.Duration
}

func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) MessageSeen(isEdit bool) {
	s.mu.Lock()
	if isEdit {
		s.Edits++
	} else {
		s.Messages++
	}
	s.mu.Unlock()
}

func (s *Statistics) TriggerSeen(started bool) {
	s.mu.Lock()
	s.TriggersSeen++
	if started {
		s.RunsStarted++
	}
	s.mu.Unlock()
}

func (s *Statistics) ClickDone(out ClickOutcome) {
	s.mu.Lock()
	s.ClicksAttempts += int64(out.Attempts)
	if out.OK {
		s.ClicksOK++
	} else {
		s.ClicksFailed++
		switch out.Kind {
		case FailStructural:
			s.Structural++
		default:
			s.Exhausted++
		}
	}
	s.mu.Unlock()
}

func (s *Statistics) StepDone(step int, elapsed time.Duration) {
	if step < 1 || step > 3 {
		return
	}
	s.mu.Lock()
	w := append(s.stepLatency[step-1], elapsed)
	if len(w) > latencyWindowCap {
		w = w[1:]
	}
	s.stepLatency[step-1] = w
	s.mu.Unlock()
}

func (s *Statistics) RunCompleted(cycle time.Duration) {
	s.mu.Lock()
	s.RunsCompleted++
	s.lastCycle = cycle
	s.cycleSum += cycle
	s.mu.Unlock()
}

func (s *Statistics) RunTimedOut() {
	s.mu.Lock()
	s.RunsTimedOut++
	s.mu.Unlock()
}

func (s *Statistics) RunFailed() {
	s.mu.Lock()
	s.RunsFailed++
	s.mu.Unlock()
}

// StatsSnapshot — read-only срез для периодического отчёта.
type StatsSnapshot struct {
	Messages      int64
	Edits         int64
	TriggersSeen  int64
	RunsStarted   int64
	RunsCompleted int64
	RunsTimedOut  int64
	RunsFailed    int64
	ClicksOK      int64
	ClicksFailed  int64
	Structural    int64
	Exhausted     int64
	LastCycle     time.Duration
	AvgCycle      time.Duration
	StepMeans     [3]time.Duration
}

func (s *Statistics) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Messages:      s.Messages,
		Edits:         s.Edits,
		TriggersSeen:  s.TriggersSeen,
		RunsStarted:   s.RunsStarted,
		RunsCompleted: s.RunsCompleted,
		RunsTimedOut:  s.RunsTimedOut,
		RunsFailed:    s.RunsFailed,
		ClicksOK:      s.ClicksOK,
		ClicksFailed:  s.ClicksFailed,
		Structural:    s.Structural,
		Exhausted:     s.Exhausted,
		LastCycle:     s.lastCycle,
	}
	if s.RunsCompleted > 0 {
		snap.AvgCycle = s.cycleSum / time.Duration(s.RunsCompleted)
	}
	for i, w := range s.stepLatency {
		if len(w) == 0 {
			continue
		}
		var sum time.Duration
		for _, d := range w {
			sum += d
		}
		snap.StepMeans[i] = sum / time.Duration(len(w))
	}
	return snap
}
