// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package chunkcodec implements the on-disk chunk framing: a 5-byte
// magic header (the literal byte 0xF0 followed by a big-endian
// uint32 declaring the uncompressed size) wrapping an LZO1X payload.
// The embedded size lets a store tolerate a future chunk-size change
// without silently handing back misinterpreted bytes.
package chunkcodec

import (
	"encoding/binary"

	"github.com/grailbio/chunkrestore/errors"
	"github.com/woozymasta/lzo"
)

// DefaultChunkSize is the compile-time chunk size used by the bulk
// and random-access CLI entry points: 4 MiB. A store built with a
// different chunk size must be opened with that size explicitly;
// nothing in this package enforces a single global value.
const DefaultChunkSize = 1 << 22

// MagicByte begins every chunk file.
const MagicByte = 0xF0

// HeaderSize is the length, in bytes, of the magic header: one magic
// byte plus a big-endian uint32 uncompressed size.
const HeaderSize = 5

// Encode prepends the magic header to the LZO-compressed form of
// data. data must be exactly chunkSize bytes; Encode fails with
// errors.Missized otherwise.
func Encode(data []byte, chunkSize int) ([]byte, error) {
	if len(data) != chunkSize {
		return nil, errors.E(errors.Size(len(data)), "chunkcodec.Encode: wrong input size")
	}
	compressed, err := lzo.Compress(data, nil)
	if err != nil {
		return nil, errors.E(errors.Lzo, "chunkcodec.Encode", err)
	}
	out := make([]byte, HeaderSize+len(compressed))
	writeHeader(out, chunkSize)
	copy(out[HeaderSize:], compressed)
	return out, nil
}

// Decode validates the magic header of src and LZO-decompresses the
// remainder into a buffer of exactly chunkSize bytes. It fails with
// errors.Magic if the header is malformed, errors.Lzo if the
// decompressor rejects the payload, and errors.Missized if the
// decompressed length does not equal chunkSize.
func Decode(src []byte, chunkSize int) ([]byte, error) {
	if len(src) < HeaderSize || src[0] != MagicByte {
		return nil, errors.E(errors.Magic, "chunkcodec.Decode: bad header")
	}
	declared := int(binary.BigEndian.Uint32(src[1:HeaderSize]))
	out, err := lzo.Decompress(src[HeaderSize:], &lzo.DecompressOptions{OutLen: declared})
	if err != nil {
		return nil, errors.E(errors.Lzo, "chunkcodec.Decode", err)
	}
	if len(out) != chunkSize {
		return nil, errors.E(errors.Size(len(out)), "chunkcodec.Decode: wrong decoded size")
	}
	return out, nil
}

// DeclaredSize returns the uncompressed size embedded in a chunk
// file's header, without decompressing the payload.
func DeclaredSize(src []byte) (int, error) {
	if len(src) < HeaderSize || src[0] != MagicByte {
		return 0, errors.E(errors.Magic, "chunkcodec.DeclaredSize: bad header")
	}
	return int(binary.BigEndian.Uint32(src[1:HeaderSize])), nil
}

func writeHeader(dst []byte, chunkSize int) {
	dst[0] = MagicByte
	binary.BigEndian.PutUint32(dst[1:HeaderSize], uint32(chunkSize))
}
