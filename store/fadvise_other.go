// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

//go:build !linux

package store

import "os"

// adviseDontNeed is a no-op on platforms without posix_fadvise.
func adviseDontNeed(*os.File) {}
