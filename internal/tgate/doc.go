// Package tgate — клиент шлюза Telegram-сессии (TDLib-style JSON поверх
// WebSocket). Отвечает за:
//   - подключение и реконнект с экспоненциальным backoff;
//   - корреляцию запрос/ответ по @extra (аналог seq);
//   - доставку событий updateNewMessage / updateMessageEdited от целевого
//     бота (фильтрация по chat_id выполняется здесь, ядро получает уже
//     отфильтрованный поток);
//   - нажатие inline-кнопок (pressInlineButton) и дочитывание сообщений
//     (getMessage) с типизированными ошибками протокола.
//
// Жизненный цикл:
//   - Создать клиента через New(cfg).
//   - Назначить колбэки OnEvent/OnConnected/OnError и т.д.
//   - Connect(ctx) поднимает соединение и запускает readLoop; отмена
//     контекста мягко останавливает цикл.
//   - Disconnect() закрывает соединение и помечает клиента закрытым.
//
// Ошибки нажатия кнопок (MESSAGE_NOT_MODIFIED, QUERY_ID_INVALID,
// flood wait, таймаут запроса) маппятся 1:1 на типы из errors.go —
// политика ретраев живёт выше, в ядре автоматики.
package tgate
