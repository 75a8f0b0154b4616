// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package chunkid implements the content-addressed chunk identifier:
// a fixed-size, inline representation of the hex digest that names a
// chunk file in a store. Storing IDs as a fixed-size array rather
// than a string avoids a heap allocation per ID, which matters
// because a single revision's chunk map can hold millions of them.
package chunkid

import (
	"encoding/hex"

	"github.com/grailbio/chunkrestore/errors"
)

// Size is the number of raw bytes in an ID: a 32-character hex digest
// decodes to 16 bytes.
const Size = 16

// ID is a content-addressed chunk identifier. The zero ID never
// refers to a real chunk; it is used as a sentinel in derived maps.
type ID [Size]byte

// Parse decodes a 32-character hex string into an ID.
func Parse(s string) (ID, error) {
	var id ID
	if len(s) != Size*2 {
		return id, errors.E(errors.Invalid, "chunk id has wrong length: "+s)
	}
	n, err := hex.Decode(id[:], []byte(s))
	if err != nil {
		return ID{}, errors.E(errors.Invalid, "chunk id is not valid hex: "+s, err)
	}
	if n != Size {
		return ID{}, errors.E(errors.Invalid, "chunk id decoded to wrong length: "+s)
	}
	return id, nil
}

// String renders id as a lowercase hex string.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the zero value, i.e., not a real
// chunk's identifier.
func (id ID) IsZero() bool {
	return id == ID{}
}

// FanOut returns the first two hex characters of id, used as the
// fan-out subdirectory a chunk file lives under.
func (id ID) FanOut() string {
	return id.String()[:2]
}

// Less orders IDs lexicographically by their byte representation.
// This gives a deterministic order for ChunkMap's grouped container.
func (id ID) Less(other ID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}
