package tgate

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ========================= low-level =========================

// dial с установкой pong-handler'а, дедлайнов и запуском пингов
func (c *Client) dialAndSetup() (*websocket.Conn, error) {
	hdr := http.Header{}
	if c.cfg.AuthToken != "" {
		hdr.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}
	conn, _, err := websocket.DefaultDialer.Dial(c.cfg.Addr, hdr)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(16 << 20)

	// всегда обновляем отметку активности сразу
	c.touchActivity()

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		c.touchActivity()
		return conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	})
	c.startPing(conn) // ping каждые 10s

	return conn, nil
}

// безопасно закрыть текущее соединение
func (c *Client) closeConn() {
	c.stopPing()
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
			time.Now().Add(500*time.Millisecond))
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) touchActivity() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Client) startPing(conn *websocket.Conn) {
	c.stopPing() // на всякий — останавливаем предыдущие
	c.pingStop = make(chan struct{})

	go func() {
		t := time.NewTicker(10 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				c.wmu.Lock()
				_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
				c.wmu.Unlock()
			case <-c.pingStop:
				return
			}
		}
	}()
}

func (c *Client) stopPing() {
	if c.pingStop != nil {
		close(c.pingStop)
		c.pingStop = nil
	}
}
