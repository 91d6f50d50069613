// Package autobot — ядро автоматики: трёхшаговый кликер inline-кнопок
// бота, который защищается от автоматизации быстрым (2–15 раз в секунду)
// редактированием собственных сообщений. Ядро:
//   - парсит клавиатуры в снапшоты (keyboard.go);
//   - ведёт ограниченную историю правок по каждому сообщению (history.go);
//   - решает, «устаканилось» ли сообщение, одной из трёх стратегий
//     (stabilize.go: wait / aggressive / predict);
//   - кэширует последние снапшоты с LRU-вытеснением (cache.go);
//   - ищет целевую кнопку по позиции/тексту/ключевым словам (analyzer.go);
//   - жмёт кнопку с ретраями по таксономии ошибок протокола (executor.go);
//   - гонит конечный автомат IDLE → STEP_1..3 → COMPLETED → IDLE с
//     таймаутами на каждый шаг (machine.go);
//   - склеивает всё это с потоком событий шлюза (autobot.go).
//
// Жизненный цикл:
//   - Создать через New(opts, client); события шлюза подаются в
//     HandleEvent.
//   - Start() поднимает фоновые горутины (сторож таймаутов,
//     периодический отчёт статистики).
//   - Stop() гасит горутины и дожидается их завершения.
//
// Одновременно живёт не более одного прогона: триггер, пришедший пока
// автомат не в IDLE, отбрасывается (не ставится в очередь).
package autobot
