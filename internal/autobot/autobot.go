package autobot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/bookhook/internal/tgate"
)

// debounce перед проверкой ответа на шаг: даём боту дописать серию
// правок, прежде чем решать, что меню сменилось.
const advanceDebounce = 20 * time.Millisecond

// Options — значения конфигурации, нужные ядру. Загрузка конфигов
// живёт снаружи (internal/config), сюда приходят только значения.
type Options struct {
	TriggerText string

	Button1Keywords []string
	Button2Keywords []string
	Button2Index    int
	Button3Keywords []string
	SuccessPhrases  []string

	Step1Timeout time.Duration
	Step2Timeout time.Duration
	Step3Timeout time.Duration

	PostTriggerDelay time.Duration
	InterClickDelay  time.Duration

	Strategy   string
	Threshold  time.Duration
	Confidence float64

	MaxAttempts  int
	BaseDelay    time.Duration
	FloodCeiling time.Duration

	CacheSize     int
	HistoryWindow int

	ReportInterval time.Duration
}

// Automation — оркестратор: склеивает поток событий шлюза с историей
// правок, кэшем, детектором стабилизации, исполнителем кликов и
// конечным автоматом.
type Automation struct {
	opts Options
	inv  Invoker

	tracker  *HistoryTracker
	cache    *MessageCache
	detector *StabilizationDetector
	executor *ClickExecutor
	machine  *StateMachine
	stats    *Statistics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex // защищает Start/Stop

	// контекст текущего прогона
	runMu       sync.Mutex
	runStarted  time.Time
	lastButtons []string // раскладка, от которой ждём отличий
}

func New(opts Options, inv Invoker) (*Automation, error) {
	if inv == nil {
		return nil, errors.New("invoker не задан")
	}
	if opts.TriggerText == "" {
		return nil, errors.New("триггерный текст не задан")
	}
	strategy, err := NewStrategy(opts.Strategy, opts.Threshold, opts.Confidence)
	if err != nil {
		return nil, err
	}

	tracker := NewHistoryTracker(opts.HistoryWindow)
	cache := NewMessageCache(opts.CacheSize)

	return &Automation{
		opts:     opts,
		inv:      inv,
		tracker:  tracker,
		cache:    cache,
		detector: NewStabilizationDetector(tracker, strategy),
		executor: NewClickExecutor(inv, cache, opts.MaxAttempts, opts.BaseDelay, opts.FloodCeiling),
		machine:  NewStateMachine(opts.Step1Timeout, opts.Step2Timeout, opts.Step3Timeout),
		stats:    NewStatistics(),
	}, nil
}

// Start — поднимает фоновые горутины: сторож таймаутов шагов и
// периодический отчёт статистики.
func (a *Automation) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return errors.New("уже запущен")
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	// сторож работает независимо от событий: зависший бот не шлёт
	// ничего, что могло бы само продвинуть проверку дедлайна
	a.wg.Add(1)
	go a.timeoutWatcher()

	if a.opts.ReportInterval > 0 {
		a.wg.Add(1)
		go a.statsReporter()
	}

	log.Info().
		Str("strategy", a.detector.strategy.Name()).
		Str("trigger", a.opts.TriggerText).
		Msg("automation started, waiting for triggers")
	return nil
}

// Stop — гасит фоновые горутины и дожидается их завершения.
func (a *Automation) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		a.wg.Wait()
	}
}

// Stats — read-only срез счётчиков для внешнего отчёта.
func (a *Automation) Stats() StatsSnapshot { return a.stats.Snapshot() }

// Machine — доступ к автомату (явный Reset из ERROR — операторское
// действие).
func (a *Automation) Machine() *StateMachine { return a.machine }

// Cache — доступ к кэшу снапшотов (диагностика).
func (a *Automation) Cache() *MessageCache { return a.cache }

// HandleEvent — вход пайплайна. События одного сообщения обрабатываются
// в порядке прихода; история и кэш обновляются синхронно ДО любых
// проверок стабилизации, чтобы проверка не увидела историю без правки,
// которая её породила.
func (a *Automation) HandleEvent(ev tgate.MessageEvent) {
	if ev.Message == nil {
		return
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	a.tracker.RecordEdit(ev.Message.ID, at)
	snap := snapshotFromMessage(ev.Message, at)
	a.cache.Update(snap)
	a.stats.MessageSeen(ev.IsEdit)

	if !ev.IsEdit && strings.Contains(ev.Message.Text, a.opts.TriggerText) {
		started := a.machine.StartRun(ev.Message.ID)
		a.stats.TriggerSeen(started)
		if !started {
			// прогон уже идёт — триггер отбрасывается, не очередь
			log.Warn().
				Int64("msg", ev.Message.ID).
				Str("state", a.machine.State().String()).
				Msg("trigger ignored, run already in flight")
			return
		}
		a.runMu.Lock()
		a.runStarted = at
		a.lastButtons = nil
		a.runMu.Unlock()

		log.Info().Int64("msg", ev.Message.ID).Msg("trigger detected, starting run")
		a.spawn(func(ctx context.Context) { a.executeStep1(ctx, ev.Message.ID) })
		return
	}

	// проверяем каждую правку активного прогона: ответ на шаг 3 — это
	// смена текста, клавиатура при этом может остаться прежней
	if ev.IsEdit && a.machine.IsActive() {
		a.spawn(func(ctx context.Context) { a.checkAdvance(ctx, snap.ID) })
	}
}

// spawn — фоновая задача с контекстом автоматики. Add делается под тем
// же мьютексом, под которым Stop обнуляет cancel: горутина не может
// добавиться после того, как Stop начал ждать wg.
func (a *Automation) spawn(fn func(context.Context)) {
	a.mu.Lock()
	if a.cancel == nil || a.ctx.Err() != nil {
		a.mu.Unlock()
		return
	}
	ctx := a.ctx
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		fn(ctx)
	}()
}

// ========================= шаги =========================

// executeStep1 — клик по пункту меню «список перевозок».
func (a *Automation) executeStep1(ctx context.Context, triggerMsgID int64) {
	if a.opts.PostTriggerDelay > 0 && !sleepCtx(ctx, a.opts.PostTriggerDelay) {
		return
	}

	if !a.detector.WaitForStabilization(ctx, triggerMsgID, a.opts.Step1Timeout) {
		// не ошибка: прогон бросаем, автомат свободен для следующего
		// триггера; если сторож уже сбросил прогон — таймаут учтён им
		log.Warn().Int64("msg", triggerMsgID).Msg("trigger message never stabilized, abandoning run")
		if a.machine.Reset("stabilization timeout") {
			a.stats.RunTimedOut()
		}
		return
	}

	snap, ok := a.cache.Get(triggerMsgID)
	if !ok || len(snap.Buttons) == 0 {
		// триггер без клавиатуры: меню живёт в соседнем сообщении,
		// берём самый свежий снапшот с нужной кнопкой
		snap, ok = a.cache.LatestWhere(func(s *MessageSnapshot) bool {
			_, found := FindAnyOf(s.Buttons, a.opts.Button1Keywords)
			return found
		})
		if !ok {
			a.failRun("step 1: меню с целевой кнопкой не найдено", FailStructural)
			return
		}
		log.Info().Int64("msg", snap.ID).Msg("trigger has no keyboard, using latest menu from cache")
	}

	btn, found := FindAnyOf(snap.Buttons, a.opts.Button1Keywords)
	if !found {
		log.Warn().Int64("msg", snap.ID).Msg("step 1 keywords missed, falling back to first button")
		btn, found = FindFirst(snap.Buttons)
	}
	if !found {
		a.failRun("step 1: в раскладке нет ни одной кнопки", FailStructural)
		return
	}

	a.rememberLayout(snap.Buttons)
	a.clickAndAwait(ctx, snap, btn, func(s *MessageSnapshot) (Button, bool) {
		if b, ok := FindAnyOf(s.Buttons, a.opts.Button1Keywords); ok {
			return b, true
		}
		return FindFirst(s.Buttons)
	})
}

// executeStep2 — выбор записи из списка перевозок.
func (a *Automation) executeStep2(ctx context.Context, msgID int64) {
	if !a.detector.WaitForStabilization(ctx, msgID, a.opts.Step2Timeout) {
		log.Warn().Int64("msg", msgID).Msg("list message never stabilized, abandoning run")
		if a.machine.Reset("stabilization timeout") {
			a.stats.RunTimedOut()
		}
		return
	}

	snap, ok := a.cache.Get(msgID)
	if !ok || len(snap.Buttons) == 0 {
		a.failRun("step 2: список без кнопок", FailStructural)
		return
	}

	btn, found := a.selectStep2Button(snap.Buttons)
	if !found {
		a.failRun("step 2: подходящей записи нет", FailStructural)
		return
	}

	a.rememberLayout(snap.Buttons)
	a.clickAndAwait(ctx, snap, btn, func(s *MessageSnapshot) (Button, bool) {
		return a.selectStep2Button(s.Buttons)
	})
}

// selectStep2Button — ключевые слова, если заданы; иначе настроенный
// индекс в порядке (row, col); промах по индексу откатывается на второй
// элемент, затем на первый.
func (a *Automation) selectStep2Button(buttons []Button) (Button, bool) {
	if len(a.opts.Button2Keywords) > 0 {
		if b, ok := FindAnyOf(buttons, a.opts.Button2Keywords); ok {
			return b, true
		}
	}
	if b, ok := FindByIndex(buttons, a.opts.Button2Index); ok {
		return b, true
	}
	if b, ok := FindByIndex(buttons, 1); ok {
		return b, true
	}
	return FindFirst(buttons)
}

// executeStep3 — подтверждение брони.
func (a *Automation) executeStep3(ctx context.Context, msgID int64) {
	if !a.detector.WaitForStabilization(ctx, msgID, a.opts.Step3Timeout) {
		log.Warn().Int64("msg", msgID).Msg("confirmation never stabilized, abandoning run")
		if a.machine.Reset("stabilization timeout") {
			a.stats.RunTimedOut()
		}
		return
	}

	snap, ok := a.cache.Get(msgID)
	if !ok || len(snap.Buttons) == 0 {
		a.failRun("step 3: подтверждение без кнопок", FailStructural)
		return
	}

	btn, found := FindAnyOf(snap.Buttons, a.opts.Button3Keywords)
	if !found {
		log.Warn().Int64("msg", msgID).Msg("confirmation keywords missed, falling back to first button")
		btn, found = FindFirst(snap.Buttons)
	}
	if !found {
		a.failRun("step 3: в раскладке нет ни одной кнопки", FailStructural)
		return
	}

	a.rememberLayout(snap.Buttons)
	a.clickAndAwait(ctx, snap, btn, func(s *MessageSnapshot) (Button, bool) {
		if b, ok := FindAnyOf(s.Buttons, a.opts.Button3Keywords); ok {
			return b, true
		}
		return FindFirst(s.Buttons)
	})
}

// clickAndAwait — общий хвост шага: клик с ретраями, статистика,
// межкликовая пауза. Продвижение автомата делает не успех клика, а
// ответное событие (checkAdvance): бот подтверждает шаг новым меню.
func (a *Automation) clickAndAwait(ctx context.Context, snap *MessageSnapshot, btn Button, reselect func(*MessageSnapshot) (Button, bool)) {
	log.Info().
		Int64("msg", snap.ID).
		Str("button", btn.Text).
		Int("row", btn.Row).Int("col", btn.Col).
		Msg("clicking")

	out := a.executor.Click(ctx, snap, btn, reselect)
	a.stats.ClickDone(out)

	if !out.OK {
		log.Error().
			Str("kind", out.Kind.String()).
			Int("attempts", out.Attempts).
			Err(out.Err).
			Msg("click failed")
		a.stats.RunFailed()
		a.machine.Fail("click failed: " + out.Kind.String())
		return
	}

	log.Info().
		Int("attempts", out.Attempts).
		Dur("elapsed", out.Elapsed).
		Msg("click ok, awaiting bot response")
	sleepCtx(ctx, a.opts.InterClickDelay)
}

// ========================= продвижение =========================

// checkAdvance — реакция на правку во время активного прогона: решает,
// является ли новое состояние сообщения ответом бота на прошлый клик.
func (a *Automation) checkAdvance(ctx context.Context, msgID int64) {
	// debounce: бот часто дописывает меню серией правок
	if !sleepCtx(ctx, advanceDebounce) {
		return
	}

	state := a.machine.State()
	snap, ok := a.cache.Get(msgID)
	if !ok {
		return
	}

	switch state {
	case StateStep1:
		// ответ на шаг 1 — клавиатура, отличная от той, по которой
		// кликали
		if len(snap.Buttons) == 0 || a.sameLayout(snap.Buttons) {
			return
		}
		a.advance(1, snap.ID)
		a.rememberLayout(snap.Buttons)
		a.spawn(func(ctx context.Context) { a.executeStep2(ctx, snap.ID) })

	case StateStep2:
		// ответ на шаг 2 — раскладка с кнопкой подтверждения
		if len(snap.Buttons) == 0 || a.sameLayout(snap.Buttons) {
			return
		}
		if _, found := FindAnyOf(snap.Buttons, a.opts.Button3Keywords); !found {
			return
		}
		a.advance(2, snap.ID)
		a.rememberLayout(snap.Buttons)
		a.spawn(func(ctx context.Context) { a.executeStep3(ctx, snap.ID) })

	case StateStep3:
		// успех — текст о брони
		if !a.matchesSuccess(snap.Text) {
			return
		}
		a.advance(3, snap.ID)
		a.finishRun()
	}
}

// advance — зафиксировать завершение шага в автомате и статистике.
func (a *Automation) advance(step int, respMsgID int64) {
	elapsed := a.machine.Elapsed(time.Now())
	if a.machine.CompleteStep(respMsgID) {
		a.stats.StepDone(step, elapsed)
	}
}

func (a *Automation) finishRun() {
	a.runMu.Lock()
	cycle := time.Since(a.runStarted)
	a.lastButtons = nil
	a.runMu.Unlock()

	a.stats.RunCompleted(cycle)
	a.machine.FinishRun()
	log.Info().Dur("cycle", cycle).Msg("run completed, back to IDLE")
}

// failRun — структурный провал или исчерпанные ретраи: отличимы в
// статистике от обычных таймаутов, из ERROR выход только явным Reset.
func (a *Automation) failRun(reason string, kind FailKind) {
	log.Error().Str("kind", kind.String()).Msg(reason)
	if kind == FailStructural {
		a.stats.ClickDone(ClickOutcome{Kind: FailStructural, Attempts: 0})
	}
	a.stats.RunFailed()
	a.machine.Fail(reason)
}

func (a *Automation) rememberLayout(buttons []Button) {
	a.runMu.Lock()
	a.lastButtons = ButtonTexts(buttons)
	a.runMu.Unlock()
}

func (a *Automation) sameLayout(buttons []Button) bool {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.lastButtons == nil {
		// клика на этом шаге ещё не было — распознавать ответ не от
		// чего, любую правку считаем «той же» раскладкой
		return true
	}
	texts := ButtonTexts(buttons)
	if len(texts) != len(a.lastButtons) {
		return false
	}
	for i := range texts {
		if texts[i] != a.lastButtons[i] {
			return false
		}
	}
	return true
}

func (a *Automation) matchesSuccess(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range a.opts.SuccessPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// ========================= фоновые горутины =========================

// timeoutWatcher — сторож дедлайнов шага. Живёт отдельно от потока
// событий: если бот завис и молчит, только он вернёт автомат в IDLE.
func (a *Automation) timeoutWatcher() {
	defer a.wg.Done()

	t := time.NewTicker(500 * time.Millisecond)
	defer t.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case now := <-t.C:
			if a.machine.ExpireIfTimedOut(now) {
				a.runMu.Lock()
				a.lastButtons = nil
				a.runMu.Unlock()
				a.stats.RunTimedOut()
			}
		}
	}
}

// statsReporter — периодический отчёт счётчиков в лог.
func (a *Automation) statsReporter() {
	defer a.wg.Done()

	t := time.NewTicker(a.opts.ReportInterval)
	defer t.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-t.C:
			s := a.stats.Snapshot()
			log.Info().
				Int64("messages", s.Messages).
				Int64("edits", s.Edits).
				Int64("triggers", s.TriggersSeen).
				Int64("runs_ok", s.RunsCompleted).
				Int64("runs_timeout", s.RunsTimedOut).
				Int64("runs_failed", s.RunsFailed).
				Int64("clicks_ok", s.ClicksOK).
				Int64("clicks_failed", s.ClicksFailed).
				Dur("avg_cycle", s.AvgCycle).
				Msg("stats")
		}
	}
}
