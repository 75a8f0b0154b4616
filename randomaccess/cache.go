// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package randomaccess

import "container/list"

// lruCache is a read-only page cache bounded by a byte budget,
// expressed internally as an item count (budget / chunk size). It is
// not safe for concurrent use: an Engine owns its lruCache exclusively
// while processing one operation.
type lruCache struct {
	capacity int
	entries  map[int64]*list.Element
	order    *list.List // front = most recently used
}

type lruEntry struct {
	seq  int64
	page *page
}

func newLRUCache(capacity int) *lruCache {
	if capacity < 0 {
		capacity = 0
	}
	return &lruCache{
		capacity: capacity,
		entries:  make(map[int64]*list.Element),
		order:    list.New(),
	}
}

// get returns the page cached for seq, touching it as most recently
// used.
func (c *lruCache) get(seq int64) (*page, bool) {
	el, ok := c.entries[seq]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry).page, true
}

// put inserts p into the cache, evicting the least recently used
// entry if the budget is exceeded. A zero-capacity cache never
// retains anything.
func (c *lruCache) put(p *page) {
	if c.capacity == 0 {
		return
	}
	if el, ok := c.entries[p.seq]; ok {
		el.Value.(*lruEntry).page = p
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&lruEntry{seq: p.seq, page: p})
	c.entries[p.seq] = el
	for len(c.entries) > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*lruEntry).seq)
	}
}

// remove drops seq from the cache, if present.
func (c *lruCache) remove(seq int64) {
	if el, ok := c.entries[seq]; ok {
		c.order.Remove(el)
		delete(c.entries, seq)
	}
}

// clear drops every entry, e.g. on session close.
func (c *lruCache) clear() {
	c.entries = make(map[int64]*list.Element)
	c.order.Init()
}
