package logs

import (
	"container/list"
	"sync"
	"time"
)

type cacheEntry struct {
	sessionID string
	mtime     time.Time
	conv      *Conversation
}

// SessionCache is an LRU cache of parsed conversations keyed by session id.
// Entries are validated against the file's mtime on every lookup, so a
// session that grew on disk is reparsed instead of served stale.
type SessionCache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // front = least recently used
	entries map[string]*list.Element
}

func NewSessionCache(maxSize int) *SessionCache {
	return &SessionCache{
		maxSize: maxSize,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Get returns the cached conversation when it is at least as fresh as
// fileMtime. A stale entry is dropped and nil returned.
func (c *SessionCache) Get(sessionID string, fileMtime time.Time) *Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[sessionID]
	if !ok {
		return nil
	}
	entry := elem.Value.(*cacheEntry)
	if entry.mtime.Before(fileMtime) {
		c.order.Remove(elem)
		delete(c.entries, sessionID)
		return nil
	}
	c.order.MoveToBack(elem)
	return entry.conv
}

func (c *SessionCache) Put(sessionID string, mtime time.Time, conv *Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[sessionID]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.mtime = mtime
		entry.conv = conv
		c.order.MoveToBack(elem)
	} else {
		c.entries[sessionID] = c.order.PushBack(&cacheEntry{
			sessionID: sessionID,
			mtime:     mtime,
			conv:      conv,
		})
	}

	for c.order.Len() > c.maxSize {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).sessionID)
	}
}

func (c *SessionCache) Invalidate(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[sessionID]; ok {
		c.order.Remove(elem)
		delete(c.entries, sessionID)
	}
}

func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
