package tgate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

func (c *Client) readLoop(ctx context.Context) {
	defer func() {
		c.closed.Store(true)
		c.closeConn()
		if c.OnDisconnected != nil {
			c.OnDisconnected()
		}
	}()

	// закрыть по отмене контекста
	go func() {
		<-ctx.Done()
		c.closeConn()
	}()

	backoff := time.Second

	for {
		if c.conn == nil {
			// имитируем ошибку сети, чтобы провалиться в ветку реконнекта
			if c.OnError != nil && !c.closed.Load() {
				c.OnError(fmt.Errorf("connection is nil"))
			}
		} else {
			_, data, err := c.conn.ReadMessage()
			if err == nil {
				var env envelope
				if uerr := json.Unmarshal(data, &env); uerr != nil {
					if c.OnError != nil {
						c.OnError(uerr)
					}
					continue
				}

				// успешное чтение
				c.touchActivity()
				c.dispatch(&env)
				backoff = time.Second
				continue
			}

			// ошибка чтения
			if c.OnError != nil && !c.closed.Load() {
				c.OnError(err)
			}
			if c.closed.Load() {
				return
			}
		}

		// закрываем и фейлим ожидающие
		c.closeConn()
		c.failPendingCallbacks(fmt.Errorf("connection lost"))

		// реконнект с backoff
		for !c.closed.Load() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
				conn, derr := c.dialAndSetup()
				if derr != nil {
					if c.OnError != nil {
						c.OnError(fmt.Errorf("reconnect failed (wait %v): %w", backoff, derr))
					}
					if backoff < 30*time.Second {
						backoff *= 2
						if backoff > 30*time.Second {
							backoff = 30 * time.Second
						}
					}
					continue
				}
				c.conn = conn
				c.touchActivity() // отметим «живость» сразу после удачного коннекта
				if c.OnConnected != nil {
					c.OnConnected()
				}
				backoff = time.Second
				goto CONTINUE_READ
			}
		}
	CONTINUE_READ:
		continue
	}
}

// dispatch — разводка кадра: сначала коррелированные ответы по @extra,
// затем update-события целевого чата.
func (c *Client) dispatch(env *envelope) {
	if env.Extra != 0 {
		c.mu.Lock()
		cb, ok := c.cbs[env.Extra]
		if ok {
			delete(c.cbs, env.Extra)
		}
		c.mu.Unlock()
		if ok && cb(env) {
			return
		}
	}

	switch env.Type {
	case "updateNewMessage", "updateMessageEdited":
		if env.Msg == nil {
			return
		}
		// фильтрация по целевому боту делается здесь: ядро получает
		// только события нужного чата
		if env.Msg.ChatID != c.cfg.BotChatID {
			return
		}
		if c.OnEvent != nil {
			c.OnEvent(MessageEvent{
				Message: env.Msg,
				IsEdit:  env.Type == "updateMessageEdited",
				At:      time.Now(),
			})
		}
	}
}

// пометить все ожидающие callbacks ошибкой при реконнекте/закрытии
func (c *Client) failPendingCallbacks(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cbs) == 0 {
		return
	}
	for k, cb := range c.cbs {
		if cb != nil {
			// оборачиваем в искусственный error-кадр
			cb(&envelope{Type: "error", Code: 500, Message: err.Error()})
		}
		delete(c.cbs, k)
	}
}
