// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package fsnode exposes a randomaccess.Directory as a FUSE
// filesystem: a flat, static directory of revisions, each a regular
// file supporting read and write, routed straight to the revision's
// randomaccess.Engine.
package fsnode

import (
	"context"
	"runtime/debug"
	"syscall"

	"github.com/grailbio/chunkrestore/errors"
	"github.com/grailbio/chunkrestore/log"
	"github.com/grailbio/chunkrestore/randomaccess"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// blockSize is the unit a revision file's block count is reported
// in: stat's st_blocks convention of 512-byte units, ceil(size/512).
const blockSize = 512

// Root is the mount's root inode. It is a fixed directory: the set of
// revisions is established once, at randomaccess.Init time, and never
// changes for the life of the mount.
type Root struct {
	fs.Inode
	dir *randomaccess.Directory
}

var (
	_ fs.InodeEmbedder = (*Root)(nil)
	_ fs.NodeGetattrer = (*Root)(nil)
	_ fs.NodeLookuper  = (*Root)(nil)
	_ fs.NodeReaddirer = (*Root)(nil)
)

// NewRoot constructs the root inode for dir.
func NewRoot(dir *randomaccess.Directory) *Root {
	return &Root{dir: dir}
}

// Getattr reports the root as a directory, mode 0755, owned by root.
func (r *Root) Getattr(_ context.Context, _ fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Attr = dirAttr(1)
	return 0
}

// Lookup resolves a revision file name to its inode, constructing it
// lazily on first access.
func (r *Root) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	engine, ok := r.dir.LookupRevision(name)
	if !ok {
		return nil, syscall.ENOENT
	}
	id, _ := r.dir.IdentifierFor(name)
	if err := engine.LoadIfEmpty(); err != nil {
		return nil, errToErrno(err)
	}
	child := &revisionNode{engine: engine, ino: id}
	out.Attr = fileAttr(id, engine)
	return r.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFREG | 0644, Ino: id}), 0
}

// Readdir lists every revision as a flat directory entry.
func (r *Root) Readdir(context.Context) (fs.DirStream, syscall.Errno) {
	var entries []fuse.DirEntry
	for _, id := range r.dir.Identifiers() {
		name, ok := r.dir.Revision(id)
		if !ok {
			continue
		}
		entries = append(entries, fuse.DirEntry{Name: name, Ino: id, Mode: syscall.S_IFREG | 0644})
	}
	return fs.NewListDirStream(entries), 0
}

// revisionNode is a regular file backed by one randomaccess.Engine.
// Reads and writes are stateless with respect to the FUSE file
// handle: the Engine itself tracks cache state across calls, so Open
// never needs to allocate a handle.
type revisionNode struct {
	fs.Inode
	engine *randomaccess.Engine
	ino    uint64
}

var (
	_ fs.InodeEmbedder = (*revisionNode)(nil)
	_ fs.NodeOpener    = (*revisionNode)(nil)
	_ fs.NodeGetattrer = (*revisionNode)(nil)
	_ fs.NodeReader    = (*revisionNode)(nil)
	_ fs.NodeWriter    = (*revisionNode)(nil)
	_ fs.NodeReleaser  = (*revisionNode)(nil)
)

// Open performs no work: every operation routes directly to the
// Engine, which is keyed by revision rather than by open file handle.
func (n *revisionNode) Open(context.Context, uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, 0, 0
}

// Getattr reports the revision's declared size, mode 0644, and
// timestamp, with a block count of ceil(size/512).
func (n *revisionNode) Getattr(_ context.Context, _ fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Attr = fileAttr(n.ino, n.engine)
	return 0
}

// Read fills dest starting at off, looping across the Engine's
// chunk-boundary-clipped ReadAt until dest is full or the revision's
// end is reached.
func (n *revisionNode) Read(_ context.Context, _ fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	total := 0
	for total < len(dest) {
		got, err := n.engine.ReadAt(off+int64(total), len(dest)-total)
		if err != nil {
			if total > 0 {
				break
			}
			return nil, errToErrno(err)
		}
		if len(got) == 0 {
			break
		}
		copy(dest[total:], got)
		total += len(got)
	}
	return fuse.ReadResultData(dest[:total]), 0
}

// Write stores data at off, looping across the Engine's chunk-
// boundary-clipped WriteAt until every byte lands.
func (n *revisionNode) Write(_ context.Context, _ fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	total := 0
	for total < len(data) {
		written, err := n.engine.WriteAt(off+int64(total), data[total:])
		if err != nil {
			if total > 0 {
				break
			}
			return 0, errToErrno(err)
		}
		if written == 0 {
			break
		}
		total += written
	}
	return uint32(total), 0
}

// Release drops the Engine's read-only cache, keeping dirty pages: a
// fresh FUSE session reading the revision again starts with a cold
// read cache but an intact set of in-memory edits.
func (n *revisionNode) Release(context.Context, fs.FileHandle) syscall.Errno {
	n.engine.Cleanup()
	return 0
}

func dirAttr(ino uint64) (attr fuse.Attr) {
	attr.Ino = ino
	attr.Mode = syscall.S_IFDIR | 0755
	attr.Nlink = 1
	return
}

func fileAttr(ino uint64, engine *randomaccess.Engine) (attr fuse.Attr) {
	size := uint64(engine.Size())
	attr.Ino = ino
	attr.Mode = syscall.S_IFREG | 0644
	attr.Nlink = 1
	attr.Size = size
	attr.Blocks = (size + blockSize - 1) / blockSize
	if ts := engine.Revision().Timestamp; !ts.IsZero() {
		attr.SetTimes(nil, &ts, nil)
	}
	return
}

func errToErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	log.Debug.Printf("fsnode error: %v: stack=%s", err, string(debug.Stack()))
	switch {
	case errors.Is(errors.UnexpectedEOF, err):
		return syscall.EINVAL
	case errors.Is(errors.BackendLoad, err):
		return syscall.EIO
	case errors.Is(errors.Io, err):
		return syscall.EIO
	case errors.Is(errors.DecodeMap, err):
		return syscall.EIO
	case errors.Is(errors.ParseRev, err):
		return syscall.EIO
	case errors.Is(errors.NotExist, err):
		return syscall.ENOENT
	}
	return fs.ToErrno(err)
}
