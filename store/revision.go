// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package store

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grailbio/chunkrestore/errors"
	"gopkg.in/yaml.v3"
)

// timestampLayouts are tried in order; the revision descriptor's
// timestamp is documented as "%Y-%m-%d %H:%M:%S%.f%z", whose
// fractional-seconds component is optional.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999-0700",
	"2006-01-02 15:04:05-0700",
}

// Revision is a parsed revision descriptor document (the `<rev>.rev`
// file).
type Revision struct {
	ID             string
	BackendType    string
	Parent         string
	Timestamp      time.Time
	Trust          string
	UUID           string
	BytesWritten   uint64
	DurationSecond float64
}

type revisionDoc struct {
	BackendType string `yaml:"backend_type"`
	Parent      string `yaml:"parent"`
	Timestamp   string `yaml:"timestamp"`
	Trust       string `yaml:"trust"`
	UUID        string `yaml:"uuid"`
	Stats       struct {
		BytesWritten uint64  `yaml:"bytes_written"`
		Duration     float64 `yaml:"duration"`
	} `yaml:"stats"`
}

// LoadRevision reads and parses the revision descriptor for revID
// in dir (the file "<dir>/<revID>.rev"). It requires backend_type to
// be "chunked"; any other value fails with errors.WrongType.
func LoadRevision(dir, revID string) (*Revision, error) {
	path := filepath.Join(dir, revID+".rev")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.E(errors.Io, "load revision "+revID, err)
	}
	var doc revisionDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.E(errors.ParseRev, path, err)
	}
	if doc.BackendType != "chunked" {
		return nil, errors.E(errors.WrongType, "revision "+revID+" has backend_type "+doc.BackendType)
	}
	ts, err := parseTimestamp(doc.Timestamp)
	if err != nil {
		return nil, errors.E(errors.ParseRev, path, err)
	}
	return &Revision{
		ID:             revID,
		BackendType:    doc.BackendType,
		Parent:         doc.Parent,
		Timestamp:      ts,
		Trust:          doc.Trust,
		UUID:           doc.UUID,
		BytesWritten:   doc.Stats.BytesWritten,
		DurationSecond: doc.Stats.Duration,
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

// ListRevisions returns the revision IDs (filename stems) present in
// dir: every file named "*.rev".
func ListRevisions(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.E(errors.Io, "list revisions in "+dir, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".rev") {
			ids = append(ids, strings.TrimSuffix(name, ".rev"))
		}
	}
	return ids, nil
}
