package autobot

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCacheSize  = 10
	defaultChangeSize = 50
)

// ButtonChange — запись журнала «клавиатура сообщения изменилась».
// Держим для диагностики: по слепкам видно, как бот тасует кнопки.
type ButtonChange struct {
	MsgID     int64
	OldDigest uint64
	NewDigest uint64
	At        time.Time
}

// MessageCache — ограниченный кэш последних снапшотов. Снапшот всегда
// заменяется целиком: читатель либо видит прошлую версию, либо новую,
// но никогда — смесь. Вытеснение LRU: дольше всех не обновлявшееся
// сообщение уходит первым.
type MessageCache struct {
	mu      sync.Mutex
	store   *lru.Cache[int64, *MessageSnapshot]
	changes []ButtonChange
	chCap   int
	latest  int64 // id последнего обновлённого сообщения
}

func NewMessageCache(size int) *MessageCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	store, _ := lru.New[int64, *MessageSnapshot](size)
	return &MessageCache{
		store: store,
		chCap: defaultChangeSize,
	}
}

// Update — вставка либо полная замена снапшота. Возвращает true, если
// раскладка кнопок отличается от прошлой версии (новое сообщение с
// кнопками тоже считается изменением).
func (c *MessageCache) Update(snap *MessageSnapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := true
	newDigest := GridDigest(snap.Buttons)
	if old, ok := c.store.Peek(snap.ID); ok {
		snap.Created = old.Created
		oldDigest := GridDigest(old.Buttons)
		changed = oldDigest != newDigest
		if changed {
			c.appendChange(ButtonChange{
				MsgID:     snap.ID,
				OldDigest: oldDigest,
				NewDigest: newDigest,
				At:        snap.EditedAt,
			})
		}
	} else if len(snap.Buttons) > 0 {
		c.appendChange(ButtonChange{
			MsgID:     snap.ID,
			NewDigest: newDigest,
			At:        snap.EditedAt,
		})
	}

	c.store.Add(snap.ID, snap)
	c.latest = snap.ID
	return changed
}

// Get — снапшот по id без влияния на признак «свежести».
func (c *MessageCache) Get(msgID int64) (*MessageSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Peek(msgID)
}

// Latest — последний обновлённый снапшот. Нужен, когда триггерное
// сообщение само без клавиатуры и меню приходится искать рядом.
func (c *MessageCache) Latest() (*MessageSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == 0 {
		return nil, false
	}
	return c.store.Peek(c.latest)
}

// LatestWhere — самый свежий снапшот, удовлетворяющий предикату
// (обходим от новых к старым).
func (c *MessageCache) LatestWhere(match func(*MessageSnapshot) bool) (*MessageSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.store.Keys() // от старых к новым
	for i := len(keys) - 1; i >= 0; i-- {
		if snap, ok := c.store.Peek(keys[i]); ok && match(snap) {
			return snap, true
		}
	}
	return nil, false
}

// Changes — копия журнала изменений раскладок (от старых к новым).
func (c *MessageCache) Changes() []ButtonChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ButtonChange, len(c.changes))
	copy(out, c.changes)
	return out
}

// Len — текущее число снапшотов в кэше.
func (c *MessageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

func (c *MessageCache) appendChange(ch ButtonChange) {
	c.changes = append(c.changes, ch)
	if len(c.changes) > c.chCap {
		copy(c.changes, c.changes[1:])
		c.changes = c.changes[:c.chCap]
	}
}
