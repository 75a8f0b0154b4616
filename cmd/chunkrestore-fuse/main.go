// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command chunkrestore-fuse mounts a chunk store's revisions as a
// flat FUSE directory of regular files, each readable and writable
// at arbitrary offsets through a per-revision copy-on-write cache.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/grailbio/chunkrestore/chunkcodec"
	"github.com/grailbio/chunkrestore/fsnode"
	"github.com/grailbio/chunkrestore/log"
	"github.com/grailbio/chunkrestore/randomaccess"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), `Usage:
%s [flags...] STOREDIR MOUNTDIR

Mounts every revision in STOREDIR as a regular file under MOUNTDIR.
To unmount, run "fusermount -u MOUNTDIR".
`, os.Args[0])
		flag.PrintDefaults()
	}
	chunkSizeFlag := flag.Int("chunk-size", chunkcodec.DefaultChunkSize, "Chunk size in bytes; must match the store's chunk size")
	cacheBytesFlag := flag.Int64("cache-bytes", 256<<20, "Per-revision read-only cache budget, in bytes")
	log.AddFlags()
	log.SetFlags(log.Lmicroseconds | log.Lshortfile)
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		flag.Usage()
		os.Exit(2)
	}
	storeDir, mountDir := args[0], args[1]

	dir, err := randomaccess.Init(storeDir, *cacheBytesFlag, *chunkSizeFlag)
	if err != nil {
		log.Panicf("open store %s: %v", storeDir, err)
	}
	defer dir.Close()

	if err := os.MkdirAll(mountDir, 0700); err != nil {
		log.Panicf("mkdir %s: %v", mountDir, err)
	}

	root := fsnode.NewRoot(dir)
	server, err := fs.Mount(mountDir, root, &fs.Options{
		MountOptions: fuse.MountOptions{
			FsName:        "chunkrestore",
			DisableXAttrs: true,
			Debug:         log.At(log.Debug),
		},
	})
	if err != nil {
		log.Panicf("mount %s: %v", mountDir, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Print("received shutdown signal, unmounting")
		server.Unmount()
	}()

	server.Wait()
}
