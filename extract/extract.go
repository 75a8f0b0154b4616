// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package extract implements the bulk restore pipeline: an Extractor
// owns one revision, spawns a pool of decoder workers plus a zero
// producer, and hands decompressed blocks to a pluggable Writer
// (stream-ordered or positional).
package extract

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/grailbio/chunkrestore/errors"
	"github.com/grailbio/chunkrestore/flock"
	"github.com/grailbio/chunkrestore/store"
)

// Block is a decoded chunk fanned out to every sequence that
// references it: either chunk-sized data, or a flag indicating every
// listed sequence is an all-zero chunk.
type Block struct {
	Data []byte
	Zero bool
	Seqs []int64
}

// Writer is the extraction pipeline's sink. Receive is called exactly
// once, after every decoder worker and the zero producer have been
// started; it must drain chunks until the channel is closed and
// report chunk_size*len(Seqs) to progress for each Block it consumes.
// A streaming sink (Stream Writer) drains chunks itself,
// single-threaded, reordering as it goes; a positional sink (Random-
// Access Writer) may spawn its own worker pool to drain chunks
// concurrently, since destination regions are disjoint by sequence.
type Writer interface {
	Receive(chunks <-chan Block, progress chan<- int64) error
	Name() string
}

// WriterBuilder constructs a Writer once the image's total size and
// the pipeline's worker count are known.
type WriterBuilder func(totalSize int64, threads int) (Writer, error)

// Extractor owns a single revision's chunk map for the duration of
// one bulk restore, holding a shared advisory lock on the store's
// .purge file so a concurrent garbage collector cannot delete chunks
// still being read.
type Extractor struct {
	dir   string
	revID string
	text  []byte

	threads    int
	progress   bool
	onProgress func(written, total int64)

	lock flock.FileLock
}

func defaultThreads() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	if n > 60 {
		n = 60
	}
	return n
}

// Init resolves revFilePath's containing directory, acquires a shared
// advisory lock on "<dir>/.purge", and reads the revision map into
// memory. The worker count defaults to max(1, min(60,
// hardware_concurrency/2)); call Threads to override it.
func Init(revFilePath string) (*Extractor, error) {
	dir := filepath.Dir(revFilePath)
	revID := filepath.Base(revFilePath)

	lock := flock.New(filepath.Join(dir, ".purge"))
	if err := lock.LockShared(); err != nil {
		return nil, err
	}
	text, err := os.ReadFile(revFilePath)
	if err != nil {
		lock.Unlock()
		return nil, errors.E(errors.Io, "read revision map "+revFilePath, err)
	}
	return &Extractor{
		dir:     dir,
		revID:   revID,
		text:    text,
		threads: defaultThreads(),
		lock:    lock,
	}, nil
}

// Threads overrides the worker count. A value of 0 is ignored, so
// callers can apply an optional flag unconditionally.
func (e *Extractor) Threads(n int) {
	if n == 0 {
		return
	}
	e.threads = n
}

// Progress enables or disables progress reporting.
func (e *Extractor) Progress(enabled bool) {
	e.progress = enabled
}

// OnProgress registers a callback invoked as bytes are written, when
// progress reporting is enabled. fn receives the cumulative bytes
// written and the image's total size.
func (e *Extractor) OnProgress(fn func(written, total int64)) {
	e.onProgress = fn
}

// Close releases the Extractor's lock on .purge.
func (e *Extractor) Close() error {
	return e.lock.Unlock()
}

// Extract drives the pipeline: it opens the Backend, parses the chunk
// map, builds the writer, and fans the revision's unique chunks out
// to e.threads decoder workers plus one zero producer, feeding a
// single writer.Receive call until every sender has finished.
func (e *Extractor) Extract(chunkSize int, build WriterBuilder) error {
	backend, err := store.OpenBackend(e.dir, chunkSize)
	if err != nil {
		return err
	}
	cm, err := store.ParseChunkMap(e.text, chunkSize)
	if err != nil {
		return err
	}
	totalSize := cm.Len() * int64(chunkSize)

	writer, err := build(totalSize, e.threads)
	if err != nil {
		return err
	}

	chunks := make(chan Block, e.threads)
	progress := make(chan int64, e.threads)

	done := make(chan struct{})
	var cancelOnce sync.Once
	cancel := func() { cancelOnce.Do(func() { close(done) }) }

	reporter := &errors.Once{}

	var producers sync.WaitGroup
	producers.Add(e.threads)
	for i := 0; i < e.threads; i++ {
		go func(threadID int) {
			defer producers.Done()
			for _, g := range cm.IterateForThread(threadID, e.threads) {
				data, loadErr := backend.Load(g.ID)
				if loadErr != nil {
					reporter.Set(errors.E(errors.Chunk{Seq: g.Seqs[0], ID: g.ID.String()}, loadErr))
					cancel()
					return
				}
				select {
				case chunks <- Block{Data: data, Seqs: g.Seqs}:
				case <-done:
					return
				}
			}
		}(i)
	}

	producers.Add(1)
	go func() {
		defer producers.Done()
		if zeros := cm.ZeroGroup(); len(zeros) > 0 {
			select {
			case chunks <- Block{Zero: true, Seqs: zeros}:
			case <-done:
			}
		}
	}()

	go func() {
		producers.Wait()
		close(chunks)
	}()

	var progressDone sync.WaitGroup
	progressDone.Add(1)
	go func() {
		defer progressDone.Done()
		var written int64
		for n := range progress {
			written += n
			if e.progress && e.onProgress != nil {
				e.onProgress(written, totalSize)
			}
		}
	}()

	if err := writer.Receive(chunks, progress); err != nil {
		reporter.Set(err)
		cancel()
		// Drain whatever the producers still have in flight so they
		// can observe done and exit; writer.Receive already stopped
		// reading chunks.
		go func() {
			for range chunks {
			}
		}()
	}
	close(progress)
	progressDone.Wait()

	if closer, ok := writer.(io.Closer); ok {
		if closeErr := closer.Close(); closeErr != nil {
			reporter.Set(errors.E(errors.WriteChunkFile, writer.Name(), closeErr))
		}
	}

	return reporter.Err()
}
