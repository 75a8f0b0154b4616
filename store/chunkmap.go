// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/grailbio/chunkrestore/chunkid"
	"github.com/grailbio/chunkrestore/errors"
)

// ReadRevisionMap reads the raw bytes of the revision map document
// "<dir>/<revID>", for callers that want to parse it with
// ParseChunkMap themselves (or defer parsing, as the random-access
// Engine does).
func ReadRevisionMap(dir, revID string) ([]byte, error) {
	text, err := os.ReadFile(filepath.Join(dir, revID))
	if err != nil {
		return nil, errors.E(errors.Io, "read revision map "+revID, err)
	}
	return text, nil
}

// Group is one entry of a ChunkMap's reverse grouping: a chunk ID and
// the ordered (ascending) list of sequence numbers that reference it.
type Group struct {
	ID   chunkid.ID
	Seqs []int64
}

// ChunkMap is the parsed, dedup-aware reverse grouping of a revision
// map: a mapping from chunk ID to the ordered list of sequence
// numbers referencing it, plus the separate list of sequences with no
// entry in the map (all-zero chunks). It is built once from a
// revision's raw mapping document and is immutable thereafter.
type ChunkMap struct {
	chunkSize int
	nseqs     int64
	groups    []Group
	zeroSeqs  []int64
}

// revisionMapDoc is the raw on-disk shape of a revision map document:
// a mapping from decimal-string sequence number to hex chunk ID, and
// the total image size in bytes.
type revisionMapDoc struct {
	Mapping map[string]string `json:"mapping"`
	Size    uint64            `json:"size"`
}

// ParseChunkMap parses the revision map document text and builds its
// reverse grouping. chunkSize is the store's configured chunk size;
// the document's size field must be a non-zero multiple of it.
func ParseChunkMap(text []byte, chunkSize int) (*ChunkMap, error) {
	var doc revisionMapDoc
	if err := json.Unmarshal(text, &doc); err != nil {
		return nil, errors.E(errors.DecodeMap, err)
	}
	if doc.Size == 0 || doc.Size%uint64(chunkSize) != 0 {
		return nil, errors.E(errors.UnalignedSize, "size="+strconv.FormatUint(doc.Size, 10))
	}
	nseqs := int64(doc.Size / uint64(chunkSize))

	for key := range doc.Mapping {
		seq, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, errors.E(errors.DecodeMap, "bad sequence number "+key, err)
		}
		if seq < 0 || seq >= nseqs {
			return nil, errors.E(errors.DecodeMap, "sequence "+key+" beyond image end")
		}
	}

	byID := make(map[chunkid.ID][]int64, len(doc.Mapping))
	var zeroSeqs []int64
	for seq := int64(0); seq < nseqs; seq++ {
		idHex, ok := doc.Mapping[strconv.FormatInt(seq, 10)]
		if !ok {
			zeroSeqs = append(zeroSeqs, seq)
			continue
		}
		id, err := chunkid.Parse(idHex)
		if err != nil {
			return nil, errors.E(errors.DecodeMap, "seq "+strconv.FormatInt(seq, 10), err)
		}
		byID[id] = append(byID[id], seq)
	}

	groups := make([]Group, 0, len(byID))
	for id, seqs := range byID {
		groups = append(groups, Group{ID: id, Seqs: seqs})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].ID.Less(groups[j].ID)
	})

	return &ChunkMap{
		chunkSize: chunkSize,
		nseqs:     nseqs,
		groups:    groups,
		zeroSeqs:  zeroSeqs,
	}, nil
}

// Len returns the number of sequences to restore: the total image
// size divided by the chunk size.
func (m *ChunkMap) Len() int64 {
	return m.nseqs
}

// IterateForThread returns the subset of m's groups assigned to
// thread threadID of nThreads: every nThreads-th entry of the
// (ID-sorted) group list, starting at threadID, re-sorted by each
// group's first sequence number ascending. This spreads unique
// chunks evenly across workers while keeping each worker's walk close
// to image order, which improves read locality against the store.
func (m *ChunkMap) IterateForThread(threadID, nThreads int) []Group {
	if nThreads <= 0 {
		nThreads = 1
	}
	var mine []Group
	for i := threadID; i < len(m.groups); i += nThreads {
		mine = append(mine, m.groups[i])
	}
	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].Seqs[0] < mine[j].Seqs[0]
	})
	return mine
}

// ZeroGroup returns the sequences with no entry in the revision map:
// the all-zero chunks, as a single ascending-order batch.
func (m *ChunkMap) ZeroGroup() []int64 {
	return m.zeroSeqs
}

// PerSequence expands m's grouped representation back into a flat,
// per-sequence array: index seq holds the chunk ID referenced by that
// sequence, or the zero ID if seq is absent from the revision map.
// This is the shape the random-access Engine wants for O(1) lookup by
// sequence number, as opposed to the Extractor's dedup-grouped walk.
func (m *ChunkMap) PerSequence() []chunkid.ID {
	flat := make([]chunkid.ID, m.nseqs)
	for _, g := range m.groups {
		for _, seq := range g.Seqs {
			flat[seq] = g.ID
		}
	}
	return flat
}
