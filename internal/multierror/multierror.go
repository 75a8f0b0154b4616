// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package multierror gathers the errors returned by closing a
// Directory's revision engines into one labeled error value.
package multierror

import (
	"fmt"
	"strings"
	"sync"
)

// MultiError captures one error per labeled revision close, e.g.:
//
//	errs := NewMultiError(len(ids))
//	for _, id := range ids {
//	    errs.Add(id, engines[id].Close())
//	}
//	return errs.ErrorOrNil()
//
// The label identifies which revision produced the error, so a
// failure closing one engine doesn't get confused for another's.
type MultiError struct {
	labels []string
	errs   []error
	mu     sync.Mutex
}

// NewMultiError creates a MultiError sized for up to max labeled
// errors.
func NewMultiError(max int) *MultiError {
	return &MultiError{labels: make([]string, 0, max), errs: make([]error, 0, max)}
}

// Add records err under label if err is non-nil. Add is safe to call
// concurrently.
func (me *MultiError) Add(label string, err error) {
	if err == nil || me == nil {
		return
	}
	me.mu.Lock()
	defer me.mu.Unlock()
	me.labels = append(me.labels, label)
	me.errs = append(me.errs, err)
}

// Error returns one "label: err" line per captured error, joined by
// newlines and wrapped in brackets when there's more than one.
func (me *MultiError) Error() string {
	if me == nil {
		return ""
	}
	me.mu.Lock()
	defer me.mu.Unlock()
	if len(me.errs) == 0 {
		return ""
	}
	if len(me.errs) == 1 {
		return fmt.Sprintf("%s: %v", me.labels[0], me.errs[0])
	}
	s := make([]string, len(me.errs))
	for i, e := range me.errs {
		s[i] = fmt.Sprintf("%s: %v", me.labels[i], e)
	}
	return fmt.Sprintf("[%s]", strings.Join(s, "\n"))
}

// ErrorOrNil returns nil if no errors were captured, me otherwise.
func (me *MultiError) ErrorOrNil() error {
	if me == nil {
		return nil
	}
	me.mu.Lock()
	defer me.mu.Unlock()
	if len(me.errs) == 0 {
		return nil
	}
	return me
}
