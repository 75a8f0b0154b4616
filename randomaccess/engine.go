// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package randomaccess

import (
	"strconv"
	"sync"

	"github.com/grailbio/chunkrestore/chunkid"
	"github.com/grailbio/chunkrestore/errors"
	"github.com/grailbio/chunkrestore/store"
)

// Engine presents one revision as a fixed-size byte range supporting
// ReadAt and WriteAt, with writes held entirely in memory: nothing an
// Engine does ever mutates the backing store. This lets filesystem
// recovery tools operate on a revision without risking the backup.
//
// An Engine is meant to be owned exclusively by whichever goroutine
// is servicing a single filesystem operation for its revision; the
// mutex below guards against accidental concurrent use rather than
// enabling it.
type Engine struct {
	dir       string
	revID     string
	chunkSize int64
	cacheCap  int

	mu      sync.Mutex
	rev     *store.Revision
	backend *store.Backend

	loaded   bool
	size     int64
	chunkMap []chunkid.ID

	openPage *page
	zeroPage *page

	dirty   map[int64]*page
	roCache *lruCache
}

// New constructs an Engine for revID in dir. Only the revision
// descriptor is loaded and the backend opened eagerly; the
// (potentially large) chunk map is loaded lazily by the first
// operation that needs it, via LoadIfEmpty.
//
// cacheBytes bounds the read-only cache; it is converted to an item
// count by dividing by the store's chunk size.
func New(dir, revID string, chunkSize int, cacheBytes int64) (*Engine, error) {
	rev, err := store.LoadRevision(dir, revID)
	if err != nil {
		return nil, err
	}
	backend, err := store.OpenBackend(dir, chunkSize)
	if err != nil {
		return nil, err
	}
	cacheItems := int(cacheBytes / int64(chunkSize))
	return &Engine{
		dir:       dir,
		revID:     revID,
		chunkSize: int64(chunkSize),
		cacheCap:  cacheItems,
		rev:       rev,
		backend:   backend,
		zeroPage:  &page{seq: -1, data: make([]byte, chunkSize)},
		dirty:     make(map[int64]*page),
		roCache:   newLRUCache(cacheItems),
	}, nil
}

// Revision returns the parsed revision descriptor.
func (e *Engine) Revision() *store.Revision {
	return e.rev
}

// Size returns the revision's total size in bytes. It is zero until
// the chunk map has been loaded, either explicitly or by the first
// Read/WriteAt.
func (e *Engine) Size() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.size
}

// LoadIfEmpty idempotently loads and parses the revision's chunk map.
// Read/WriteAt call this automatically; callers that only need
// metadata (e.g. a directory listing) may skip it.
func (e *Engine) LoadIfEmpty() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadIfEmptyLocked()
}

func (e *Engine) loadIfEmptyLocked() error {
	if e.loaded {
		return nil
	}
	text, err := store.ReadRevisionMap(e.dir, e.revID)
	if err != nil {
		return err
	}
	cm, err := store.ParseChunkMap(text, int(e.chunkSize))
	if err != nil {
		return err
	}
	e.size = cm.Len() * e.chunkSize
	e.chunkMap = cm.PerSequence()
	e.loaded = true
	return nil
}

// ReadAt returns up to want bytes starting at offset. The returned
// slice may be shorter than want if it would otherwise cross a chunk
// boundary; callers loop, advancing offset by the length returned,
// until they have what they need. An offset equal to the revision's
// size yields an empty slice (EOF); an offset beyond it fails with
// errors.UnexpectedEOF.
func (e *Engine) ReadAt(offset int64, want int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.loadIfEmptyLocked(); err != nil {
		return nil, err
	}
	switch {
	case offset == e.size:
		return nil, nil
	case offset > e.size || offset < 0:
		return nil, errors.E(errors.UnexpectedEOF, "read at offset "+strconv.FormatInt(offset, 10))
	}
	seq := offset / e.chunkSize
	intra := int(offset % e.chunkSize)
	if e.openPage == nil || e.openPage.seq != seq {
		p, err := e.fetchLocked(seq)
		if err != nil {
			return nil, err
		}
		e.openPage = p
	}
	end := intra + want
	if end > len(e.openPage.data) {
		end = len(e.openPage.data)
	}
	return e.openPage.data[intra:end], nil
}

// fetchLocked returns the page currently valid for seq, consulting
// the dirty cache, then the read-only cache, then the zero page, and
// finally the backend, in that order (at most one of those four ever
// serves a given seq). Dirty and read-cache hits are returned as
// clones; the zero page is the Engine's shared zero page, and a page
// freshly loaded from the backend is the same page that was inserted
// into the read-only cache.
func (e *Engine) fetchLocked(seq int64) (*page, error) {
	if p, ok := e.dirty[seq]; ok {
		return clonePage(p), nil
	}
	if p, ok := e.roCache.get(seq); ok {
		return clonePage(p), nil
	}
	id := e.chunkMap[seq]
	if id.IsZero() {
		return e.zeroPage, nil
	}
	data, err := e.backend.Load(id)
	if err != nil {
		return nil, errors.E(errors.BackendLoad, "seq "+strconv.FormatInt(seq, 10)+" id "+id.String(), err)
	}
	p := &page{seq: seq, data: data}
	e.roCache.put(p)
	return p, nil
}

// WriteAt stores buf at offset in the in-memory copy-on-write cache;
// nothing is ever flushed to the backing store. If buf would cross a
// chunk boundary, WriteAt clips it to the remainder of the current
// chunk and returns the shorter count: callers must retry with
// buf[n:] and offset+n until the whole buffer lands.
func (e *Engine) WriteAt(offset int64, buf []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.loadIfEmptyLocked(); err != nil {
		return 0, err
	}
	if offset < 0 || offset+int64(len(buf)) > e.size {
		return 0, errors.E(errors.UnexpectedEOF, "write at offset "+strconv.FormatInt(offset, 10))
	}
	if len(buf) == 0 {
		return 0, nil
	}
	seq := offset / e.chunkSize
	intra := int(offset % e.chunkSize)
	endSeq := (offset + int64(len(buf)) - 1) / e.chunkSize
	if endSeq != seq {
		clip := int(e.chunkSize) - intra
		buf = buf[:clip]
	}
	// A write disturbs whatever the open-page scratch slot was
	// pointing at, whether or not it is the page being written to.
	e.openPage = nil
	if p, ok := e.dirty[seq]; ok {
		copy(p.data[intra:intra+len(buf)], buf)
		return len(buf), nil
	}
	if p, ok := e.roCache.get(seq); ok {
		e.roCache.remove(seq)
		promoted := clonePage(p)
		copy(promoted.data[intra:intra+len(buf)], buf)
		e.dirty[seq] = promoted
		return len(buf), nil
	}
	var p *page
	id := e.chunkMap[seq]
	if !id.IsZero() {
		data, err := e.backend.Load(id)
		if err != nil {
			return 0, errors.E(errors.BackendLoad, "seq "+strconv.FormatInt(seq, 10)+" id "+id.String(), err)
		}
		p = &page{seq: seq, data: data}
	} else {
		p = clonePage(e.zeroPage)
		p.seq = seq
	}
	copy(p.data[intra:intra+len(buf)], buf)
	e.dirty[seq] = p
	return len(buf), nil
}

// Cleanup drops the read-only cache, keeping dirty pages intact. It
// is called when a filesystem session releases its handle to the
// revision.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.roCache.clear()
	e.openPage = nil
}

// Close releases everything the Engine holds in memory: the read-only
// cache, the open-page scratch, and the dirty pages, which were never
// written to disk and are lost here by design.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.roCache.clear()
	e.dirty = make(map[int64]*page)
	e.openPage = nil
	return nil
}
