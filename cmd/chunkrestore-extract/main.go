// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command chunkrestore-extract performs a bulk restore of one
// revision from a chunk store, writing the reconstructed disk image
// either to stdout (stream-ordered) or to a file or block device at a
// fixed offset (random-access, potentially sparse).
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/grailbio/chunkrestore/chunkcodec"
	"github.com/grailbio/chunkrestore/extract"
	"github.com/grailbio/chunkrestore/log"
	"golang.org/x/term"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), `Usage:
%s [flags...] REVISION_FILE [OUTPUT]

Restores the disk image named by REVISION_FILE. If OUTPUT is absent
or "-", the image is streamed to stdout in sequence order. Otherwise
it is written directly to the named file or block device at its
final offset, which may be faster and may produce a sparse file.
`, os.Args[0])
		flag.PrintDefaults()
	}
	threadsFlag := flag.Int("threads", 0, "Worker count; 0 uses max(1, min(60, NumCPU/2))")
	chunkSizeFlag := flag.Int("chunk-size", chunkcodec.DefaultChunkSize, "Chunk size in bytes; must match the store's chunk size")
	progressFlag := flag.Bool("progress", false, "Report progress to stderr")
	sparseFlag := flag.String("sparse", "auto", `Sparse-file mode for OUTPUT: "auto", "never", or "always"; ignored for stdout`)
	log.AddFlags()
	log.SetFlags(log.Lmicroseconds | log.Lshortfile)
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 || len(args) > 2 {
		flag.Usage()
		os.Exit(2)
	}
	output := ""
	if len(args) == 2 {
		output = args[1]
	}

	sparse, err := parseSparseMode(*sparseFlag)
	if err != nil {
		log.Print(err)
		os.Exit(2)
	}

	e, err := extract.Init(args[0])
	if err != nil {
		log.Print(err)
		os.Exit(1)
	}
	defer e.Close()
	e.Threads(*threadsFlag)

	var build extract.WriterBuilder
	if output == "" || output == "-" {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			log.Print("refusing to stream a disk image to a terminal; redirect stdout or name an output file")
			os.Exit(1)
		}
		build = extract.NewStreamWriterBuilder(os.Stdout, *chunkSizeFlag)
	} else {
		build = extract.NewPositionalWriterBuilder(output, sparse, *chunkSizeFlag)
	}

	start := time.Now()
	var total int64
	if *progressFlag {
		e.Progress(true)
		e.OnProgress(func(written, totalSize int64) {
			total = totalSize
			elapsed := time.Since(start).Seconds()
			rate := float64(written) / max(elapsed, 0.001)
			fmt.Fprintf(os.Stderr, "\rrestoring: %d/%d bytes (%.1f MiB/s)", written, totalSize, rate/(1<<20))
		})
	}

	if err := e.Extract(*chunkSizeFlag, build); err != nil {
		if *progressFlag {
			fmt.Fprintln(os.Stderr)
		}
		log.Print(err)
		os.Exit(1)
	}
	if *progressFlag {
		elapsed := time.Since(start).Seconds()
		rate := float64(total) / max(elapsed, 0.001)
		fmt.Fprintf(os.Stderr, "\nfinished in %.1fs (%.1f MiB/s)\n", elapsed, rate/(1<<20))
	}
}

func parseSparseMode(s string) (extract.SparseMode, error) {
	switch s {
	case "auto":
		return extract.SparseAuto, nil
	case "never":
		return extract.SparseNever, nil
	case "always":
		return extract.SparseAlways, nil
	}
	return 0, fmt.Errorf("invalid -sparse value %q: want auto, never, or always", s)
}
