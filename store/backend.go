// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package store implements the on-disk chunk store: the Backend
// (directory layout, version gating, chunk load/save), the Revision
// Descriptor, and the Chunk Map with its dedup-aware reverse grouping.
package store

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/grailbio/chunkrestore/chunkcodec"
	"github.com/grailbio/chunkrestore/chunkid"
	"github.com/grailbio/chunkrestore/errors"
)

// VersionTag is the only store version this package knows how to
// read.
const VersionTag = "v2"

// Backend is a read-only handle to a chunk store directory. A Backend
// is immutable and safe to share across goroutines.
type Backend struct {
	dir       string
	chunkSize int
}

// OpenBackend opens the chunk store rooted at dir and validates its
// version tag. chunkSize is the compile-time chunk size the caller
// expects chunks to decode to.
func OpenBackend(dir string, chunkSize int) (*Backend, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "chunks", "store"))
	if err != nil {
		return nil, errors.E(errors.NotExist, "open backend", err)
	}
	tag := strings.TrimSpace(string(raw))
	if tag != VersionTag {
		return nil, errors.E(errors.Tag(tag), "open backend")
	}
	return &Backend{dir: dir, chunkSize: chunkSize}, nil
}

// Dir returns the store's root directory.
func (b *Backend) Dir() string {
	return b.dir
}

// ChunkSize returns the chunk size this backend decodes chunks to.
func (b *Backend) ChunkSize() int {
	return b.chunkSize
}

// Path returns the on-disk path of the chunk file for id.
func (b *Backend) Path(id chunkid.ID) string {
	s := id.String()
	return filepath.Join(b.dir, "chunks", s[:2], s+".chunk.lzo")
}

// Load reads and decompresses the chunk named id, returning exactly
// ChunkSize bytes.
func (b *Backend) Load(id chunkid.ID) ([]byte, error) {
	path := b.Path(id)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.E(errors.NotExist, "load chunk "+id.String(), err)
		}
		return nil, errors.E(errors.Io, "load chunk "+id.String(), err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.E(errors.Io, "read chunk "+id.String(), err)
	}
	adviseDontNeed(f)

	data, err := chunkcodec.Decode(raw, b.chunkSize)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save compresses and writes data (which must be exactly ChunkSize
// bytes) as the chunk file named id, creating the fan-out directory
// if necessary. Save is used only by tests and store-population
// tooling; ordinary restore operations never write to a store.
func (b *Backend) Save(id chunkid.ID, data []byte) error {
	encoded, err := chunkcodec.Encode(data, b.chunkSize)
	if err != nil {
		return err
	}
	path := b.Path(id)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.E(errors.Io, "save chunk "+id.String(), err)
	}
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return errors.E(errors.Io, "save chunk "+id.String(), err)
	}
	return nil
}
