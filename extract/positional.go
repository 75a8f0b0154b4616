// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package extract

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/grailbio/chunkrestore/errors"
)

// SparseMode selects how the positional writer decides whether to
// skip zero-valued regions of the output instead of writing them.
type SparseMode int

const (
	// SparseAuto infers sparseness per resolveSparse's patrol-sample
	// heuristic.
	SparseAuto SparseMode = iota
	// SparseNever always writes every byte, including zero regions.
	SparseNever
	// SparseAlways always skips zero regions without sampling.
	SparseAlways
)

// subBlockSize is the granularity at which the sparse writer tests
// chunk contents for zero runs worth skipping.
const subBlockSize = 64 * 1024

// NewPositionalWriterBuilder returns a WriterBuilder that opens path
// for positional writes (truncate-create), then resolves sparseness
// per mode.
func NewPositionalWriterBuilder(path string, mode SparseMode, chunkSize int) WriterBuilder {
	return func(totalSize int64, threads int) (Writer, error) {
		f, truncated, err := openOutput(path, totalSize)
		if err != nil {
			return nil, err
		}
		sparse, err := resolveSparse(mode, f, totalSize, chunkSize, truncated)
		if err != nil {
			f.Close()
			return nil, err
		}
		if threads < 1 {
			threads = 1
		}
		return &positionalWriter{
			f:         f,
			path:      path,
			chunkSize: chunkSize,
			threads:   threads,
			sparse:    sparse,
			zero:      make([]byte, chunkSize),
		}, nil
	}
}

// openOutput truncate-creates path and sizes it to totalSize. A
// target that rejects resizing with EINVAL is treated as a block
// device: sizing is skipped rather than failing, and truncated is
// reported false so the caller falls back to patrol sampling.
func openOutput(path string, totalSize int64) (f *os.File, truncated bool, err error) {
	f, err = os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return nil, false, errors.E(errors.OutputFile, path, err)
	}
	if err := f.Truncate(totalSize); err != nil {
		if errno, ok := err.(*os.PathError); ok && errno.Err == syscall.EINVAL {
			return f, false, nil
		}
		f.Close()
		return nil, false, errors.E(errors.OutputFile, path, err)
	}
	return f, true, nil
}

// resolveSparse decides whether the positional writer should skip
// zero regions. A user-specified mode is authoritative; SparseAuto
// infers it: files of at most 2 chunks are never sparse, a
// successfully truncated file always is (truncation guarantees
// zero-fill), and otherwise a patrol sample of chunks (first, last,
// and a handful of random interior positions) decides based on
// whether any sampled chunk is non-zero.
func resolveSparse(mode SparseMode, f *os.File, totalSize int64, chunkSize int, truncated bool) (bool, error) {
	switch mode {
	case SparseNever:
		return false, nil
	case SparseAlways:
		return true, nil
	}
	if totalSize <= 2*int64(chunkSize) {
		return false, nil
	}
	if truncated {
		return true, nil
	}
	n := totalSize / int64(chunkSize)
	samples := []int64{0, n - 1}
	if extra := n/100 - 2; extra > 0 {
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		for i := int64(0); i < extra; i++ {
			samples = append(samples, 1+r.Int63n(n-2))
		}
	}
	zero := make([]byte, chunkSize)
	buf := make([]byte, chunkSize)
	for _, seq := range samples {
		if _, err := f.ReadAt(buf, seq*int64(chunkSize)); err != nil {
			return false, errors.E(errors.OutputFile, "patrol sample", err)
		}
		if !bytes.Equal(buf, zero) {
			return false, nil
		}
	}
	return true, nil
}

// positionalWriter writes chunks to arbitrary positions of an open
// file or block device, optionally skipping zero regions at
// sub-chunk granularity. Unlike streamWriter, multiple goroutines
// drain the chunks channel concurrently: destination regions are
// disjoint by sequence, so parallel positional writes to the shared
// descriptor are safe.
type positionalWriter struct {
	f         *os.File
	path      string
	chunkSize int
	threads   int
	sparse    bool
	zero      []byte
}

// Receive spawns w.threads workers sharing the chunks channel and the
// open file descriptor.
func (w *positionalWriter) Receive(chunks <-chan Block, progress chan<- int64) error {
	reporter := &errors.Once{}
	var wg sync.WaitGroup
	wg.Add(w.threads)
	for i := 0; i < w.threads; i++ {
		go func() {
			defer wg.Done()
			for b := range chunks {
				if err := w.writeBlock(b); err != nil {
					reporter.Set(err)
					continue
				}
				progress <- int64(w.chunkSize) * int64(len(b.Seqs))
			}
		}()
	}
	wg.Wait()
	return reporter.Err()
}

func (w *positionalWriter) writeBlock(b Block) error {
	for _, seq := range b.Seqs {
		offset := seq * int64(w.chunkSize)
		if b.Zero {
			if w.sparse {
				continue
			}
			if err := writeAllAt(w.f, w.zero, offset); err != nil {
				return errors.E(errors.WriteChunkFile, "seq="+strconv.FormatInt(seq, 10), err)
			}
			continue
		}
		if !w.sparse {
			if err := writeAllAt(w.f, b.Data, offset); err != nil {
				return errors.E(errors.WriteChunkFile, "seq="+strconv.FormatInt(seq, 10), err)
			}
			continue
		}
		for i := 0; i < len(b.Data); i += subBlockSize {
			end := i + subBlockSize
			if end > len(b.Data) {
				end = len(b.Data)
			}
			sub := b.Data[i:end]
			if isAllZero(sub) {
				continue
			}
			if err := writeAllAt(w.f, sub, offset+int64(i)); err != nil {
				return errors.E(errors.WriteChunkFile, "seq="+strconv.FormatInt(seq, 10), err)
			}
		}
	}
	return nil
}

// Name returns the output path, rendered for progress reporting.
func (w *positionalWriter) Name() string {
	return w.path
}

// Close closes the underlying file descriptor.
func (w *positionalWriter) Close() error {
	return w.f.Close()
}

// writeAllAt retries WriteAt until buf is fully written, since a
// positional write to a block device or pipe-backed file may accept
// fewer bytes than requested.
func writeAllAt(f *os.File, buf []byte, offset int64) error {
	for len(buf) > 0 {
		n, err := f.WriteAt(buf, offset)
		if err != nil {
			return err
		}
		buf = buf[n:]
		offset += int64(n)
	}
	return nil
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
