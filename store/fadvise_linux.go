// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package store

import (
	"os"

	"github.com/grailbio/chunkrestore/log"
	"golang.org/x/sys/unix"
)

// adviseDontNeed hints the kernel that the chunk file's pages are no
// longer needed, so decoding a large sequential restore does not
// evict useful pages from the page cache. This is a performance
// concern, not a correctness one; failures are logged and ignored.
func adviseDontNeed(f *os.File) {
	if err := unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_DONTNEED); err != nil {
		log.Debug.Printf("fadvise DONTNEED %s: %v", f.Name(), err)
	}
}
