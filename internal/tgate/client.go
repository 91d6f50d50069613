package tgate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Client — соединение со шлюзом: одна ws-сессия, корреляция ответов по
// @extra, колбэки-события наружу.
type Client struct {
	cfg GateConfig

	conn   *websocket.Conn
	seq    atomic.Uint64
	mu     sync.Mutex // защищает cbs
	cbs    map[uint64]func(*envelope) bool
	closed atomic.Bool

	wmu          sync.Mutex    // сериализует запись в websocket
	pingStop     chan struct{} // стоп-канал для ping-горутины
	lastActivity atomic.Int64  // unix nanos последнего успешного приёма кадра

	// "События" (аналог EventEmitter)
	OnConnecting   func()
	OnConnected    func()
	OnEvent        func(MessageEvent)
	OnDisconnected func()
	OnError        func(error)
}

func New(cfg GateConfig) *Client {
	return &Client{
		cfg: cfg,
		cbs: make(map[uint64]func(*envelope) bool),
	}
}

// Connect — устанавливает WebSocket и запускает readLoop.
// Контекст можно отменить для мягкого выхода из readLoop.
func (c *Client) Connect(ctx context.Context) error {
	if c.OnConnecting != nil {
		c.OnConnecting()
	}
	conn, err := c.dialAndSetup()
	if err != nil {
		return err
	}
	c.conn = conn
	c.closed.Store(false)

	if c.OnConnected != nil {
		c.OnConnected()
	}

	go c.readLoop(ctx)
	return nil
}

func (c *Client) Disconnect() {
	c.closed.Store(true)
	c.closeConn()
	if c.OnDisconnected != nil {
		c.OnDisconnected()
	}
}

func (c *Client) IsConnected() bool {
	return c.conn != nil && !c.closed.Load()
}

func (c *Client) nextSeq() uint64 {
	return c.seq.Add(1)
}

// sendFrame — отправляет готовый кадр, регистрируя cb по extra.
// Если cb вернёт true — кадр считается «съеденным» и до OnEvent не дойдёт.
func (c *Client) sendFrame(extra uint64, frame any, cb func(*envelope) bool) error {
	if c.conn == nil || c.closed.Load() {
		return ErrNotConnected
	}

	if cb != nil {
		c.mu.Lock()
		c.cbs[extra] = cb
		c.mu.Unlock()
	}

	data, err := marshalFrame(frame)
	if err != nil {
		return err
	}

	// запись строго через один мьютекс + write-deadline
	c.wmu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	werr := c.conn.WriteMessage(websocket.TextMessage, data)
	c.wmu.Unlock()

	if werr != nil {
		// сеть упала между подготовкой и записью — подчищаем cb
		c.mu.Lock()
		delete(c.cbs, extra)
		c.mu.Unlock()
		return werr
	}
	return nil
}

// sendAsync — как промис: посылает кадр и ждёт коррелированный ответ
// либо отмены/дедлайна контекста.
func (c *Client) sendAsync(ctx context.Context, extra uint64, frame any) (*envelope, error) {
	respCh := make(chan *envelope, 1)
	errCh := make(chan error, 1)

	err := c.sendFrame(extra, frame, func(env *envelope) bool {
		if env.Type == "error" {
			errCh <- mapError(env.Code, env.Message)
			return true
		}
		respCh <- env
		return true
	})
	if err != nil {
		return nil, err
	}

	select {
	case r := <-respCh:
		return r, nil
	case e := <-errCh:
		return nil, e
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.cbs, extra)
		c.mu.Unlock()
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimedOut
		}
		return nil, ctx.Err()
	}
}
