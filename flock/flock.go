// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package flock implements the cross-process advisory lock on a
// store's .purge file. Readers take a shared lock for the duration of
// a session to prevent a concurrent garbage collector from deleting
// chunks still in use; a purger takes an exclusive lock. The contract
// is advisory only and fails fast: callers never block waiting for
// the lock, since a live restore session should never stall behind a
// purge.
package flock

import (
	"github.com/grailbio/chunkrestore/errors"
)

// FileLock is a POSIX advisory lock on a single file.
type FileLock interface {
	// LockShared attempts to acquire a shared (reader) lock without
	// blocking. It returns an errors.Lock error if the lock is held
	// exclusively by another process.
	LockShared() error
	// LockExclusive attempts to acquire an exclusive (purger) lock
	// without blocking. It returns an errors.Lock error if the lock is
	// held, shared or exclusive, by another process.
	LockExclusive() error
	// Unlock releases a lock previously acquired by LockShared or
	// LockExclusive.
	Unlock() error
}

// New returns a FileLock for the given path. The file is created if
// it does not already exist.
func New(path string) FileLock {
	return &flockT{name: path}
}

func lockErr(path string, err error) error {
	return errors.E(errors.Lock, "lock "+path, err)
}
