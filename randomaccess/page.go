// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package randomaccess implements per-revision random-access reads
// and writes over a chunked store: the Engine's two-tier page cache
// (an LRU read-only cache plus an unbounded dirty copy-on-write
// cache) and the Directory that enumerates a store's revisions and
// assigns them stable identifiers.
package randomaccess

// page is a chunk-sized buffer tagged with the sequence number it
// represents. A page held by the read-only cache or serving as the
// shared zero page is never written to: WriteAt clones it before
// applying a write, so a dirty page never aliases a page that a
// cache or another reader may still be holding.
type page struct {
	seq  int64
	data []byte
}

// clonePage returns a page with its own independent copy of p's data.
func clonePage(p *page) *page {
	data := make([]byte, len(p.data))
	copy(data, p.data)
	return &page{seq: p.seq, data: data}
}
