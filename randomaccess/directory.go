// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package randomaccess

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/grailbio/chunkrestore/errors"
	"github.com/grailbio/chunkrestore/internal/multierror"
	"github.com/grailbio/chunkrestore/store"
)

// firstIdentifier is the first identifier Directory hands out. Values
// below it are reserved for a filesystem adapter's own synthetic
// inodes (the mount root, a "." entry, and so on).
const firstIdentifier uint64 = 4

// Directory enumerates every revision present in a store directory
// and keeps one Engine per revision, each addressable either by its
// assigned identifier or by its revision file name. It is the entry
// point a filesystem adapter constructs once per mount.
type Directory struct {
	dir string

	byIdentifier map[uint64]*Engine
	byRevision   map[string]*Engine
	order        []uint64
}

// Init constructs a Directory over dir: every "<rev>.rev" file found
// becomes one Engine, keyed by a fresh monotonic identifier starting
// at firstIdentifier. cacheBytes and chunkSize are passed through to
// each Engine unchanged. Init fails with errors.NoRevisions if dir
// contains no revision descriptors or has no chunks subdirectory.
func Init(dir string, cacheBytes int64, chunkSize int) (*Directory, error) {
	if _, err := os.Stat(filepath.Join(dir, "chunks")); err != nil {
		return nil, errors.E(errors.NoRevisions, "no chunks directory in "+dir)
	}
	revIDs, err := store.ListRevisions(dir)
	if err != nil {
		return nil, err
	}
	sort.Strings(revIDs)

	d := &Directory{
		dir:          dir,
		byIdentifier: make(map[uint64]*Engine, len(revIDs)),
		byRevision:   make(map[string]*Engine, len(revIDs)),
	}
	next := firstIdentifier
	for _, revID := range revIDs {
		e, err := New(dir, revID, chunkSize, cacheBytes)
		if err != nil {
			return nil, err
		}
		id := next
		next++
		d.byIdentifier[id] = e
		d.byRevision[revID] = e
		d.order = append(d.order, id)
	}
	if len(d.order) == 0 {
		return nil, errors.E(errors.NoRevisions, "no revision descriptors in "+dir)
	}
	return d, nil
}

// Lookup returns the Engine assigned identifier id, if any.
func (d *Directory) Lookup(id uint64) (*Engine, bool) {
	e, ok := d.byIdentifier[id]
	return e, ok
}

// LookupRevision returns the Engine for revision file name revID, if
// any.
func (d *Directory) LookupRevision(revID string) (*Engine, bool) {
	e, ok := d.byRevision[revID]
	return e, ok
}

// Identifiers returns every assigned identifier, in ascending
// (enumeration) order.
func (d *Directory) Identifiers() []uint64 {
	out := make([]uint64, len(d.order))
	copy(out, d.order)
	return out
}

// Revision returns the revision file name of the Engine assigned
// identifier id, if any.
func (d *Directory) Revision(id uint64) (string, bool) {
	e, ok := d.byIdentifier[id]
	if !ok {
		return "", false
	}
	return e.Revision().ID, true
}

// IdentifierFor returns the identifier assigned to revision file name
// revID, if any.
func (d *Directory) IdentifierFor(revID string) (uint64, bool) {
	if _, ok := d.byRevision[revID]; !ok {
		return 0, false
	}
	for _, id := range d.order {
		if d.byIdentifier[id].Revision().ID == revID {
			return id, true
		}
	}
	return 0, false
}

// Close closes every Engine in the directory, aggregating any errors.
func (d *Directory) Close() error {
	errs := multierror.NewMultiError(len(d.order))
	for _, id := range d.order {
		e := d.byIdentifier[id]
		errs.Add(e.Revision().ID, e.Close())
	}
	return errs.ErrorOrNil()
}
