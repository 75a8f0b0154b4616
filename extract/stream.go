// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package extract

import (
	"container/heap"
	"io"

	"github.com/grailbio/chunkrestore/errors"
)

// NewStreamWriterBuilder returns a WriterBuilder producing a Writer
// that reorders incoming blocks back to ascending sequence order and
// writes them to sink, which need not support seeking (stdout, a
// pipe). This is the only sink choice that works for a non-seekable
// target.
func NewStreamWriterBuilder(sink io.Writer, chunkSize int) WriterBuilder {
	return func(totalSize int64, threads int) (Writer, error) {
		return &streamWriter{
			sink:      sink,
			chunkSize: chunkSize,
			zero:      make([]byte, chunkSize),
		}, nil
	}
}

type waitingChunk struct {
	seq  int64
	data []byte // nil means an all-zero chunk
}

type chunkHeap []waitingChunk

func (h chunkHeap) Len() int            { return len(h) }
func (h chunkHeap) Less(i, j int) bool  { return h[i].seq < h[j].seq }
func (h chunkHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *chunkHeap) Push(x interface{}) { *h = append(*h, x.(waitingChunk)) }
func (h *chunkHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// streamWriter writes an entire image in ascending sequence order to
// a single, possibly non-seekable sink. It is single-threaded:
// Receive itself is the only consumer of the chunks channel.
type streamWriter struct {
	sink      io.Writer
	chunkSize int
	zero      []byte

	queue    chunkHeap
	expected int64
}

// Receive drains chunks, writing out every prefix of the queue that
// has become contiguous with the expected sequence number. Blocks
// that arrive out of order sit in the heap until their turn.
func (w *streamWriter) Receive(chunks <-chan Block, progress chan<- int64) error {
	for b := range chunks {
		for _, seq := range b.Seqs {
			data := b.Data
			if b.Zero {
				data = nil
			}
			heap.Push(&w.queue, waitingChunk{seq: seq, data: data})
		}
		for len(w.queue) > 0 && w.queue[0].seq == w.expected {
			item := heap.Pop(&w.queue).(waitingChunk)
			payload := item.data
			if payload == nil {
				payload = w.zero
			}
			if _, err := w.sink.Write(payload); err != nil {
				return errors.E(errors.WriteChunkFile, w.Name(), err)
			}
			w.expected++
		}
		progress <- int64(w.chunkSize) * int64(len(b.Seqs))
	}
	if len(w.queue) != 0 {
		return errors.E(errors.WriteChunkFile, "stream writer terminated with sequences still pending")
	}
	return nil
}

// Name identifies the sink for progress reporting.
func (w *streamWriter) Name() string {
	return "stdout"
}
