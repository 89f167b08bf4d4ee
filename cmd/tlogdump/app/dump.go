// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package app implements the tlogdump tool: it verifies that committed
// transmission-log artifact pairs agree with each other and prints their
// rows for operators and compliance staff.
package app

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/retrovue/playout/pkg/translog"
)

// Options are the parsed command-line options.
type Options struct {
	Paths      []string
	VerifyOnly bool
	LogFormat  string
	LogLevel   string
	Version    bool
}

// Pair is one artifact pair on disk.
type Pair struct {
	Tlog  string
	JSONL string
}

// CollectPairs expands the given paths into artifact pairs. A directory
// is walked for *.tlog files; a file must be the .tlog of a pair. The
// JSONL sidecar must sit next to its .tlog.
func CollectPairs(paths []string) ([]Pair, error) {
	var pairs []Pair
	add := func(tlogPath string) {
		pairs = append(pairs, Pair{Tlog: tlogPath, JSONL: tlogPath + ".jsonl"})
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if !strings.HasSuffix(p, ".tlog") {
				return nil, fmt.Errorf("%s: not a .tlog artifact", p)
			}
			add(p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".tlog") {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Tlog < pairs[j].Tlog })
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no .tlog artifacts under %s", strings.Join(paths, ", "))
	}
	return pairs, nil
}

// verifyConcurrency bounds parallel artifact verification; dump output
// stays in path order regardless.
const verifyConcurrency = 4

// Run verifies every pair and, unless VerifyOnly is set, prints their
// rows to w in path order.
func Run(o *Options, w io.Writer) error {
	pairs, err := CollectPairs(o.Paths)
	if err != nil {
		return err
	}

	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(verifyConcurrency)
	for _, p := range pairs {
		g.Go(func() error {
			if err := translog.VerifyBijection(p.Tlog, p.JSONL); err != nil {
				return fmt.Errorf("%s: %w", p.Tlog, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if o.VerifyOnly {
		fmt.Fprintf(w, "%d artifact pair(s) verified\n", len(pairs))
		return nil
	}
	for _, p := range pairs {
		if err := dumpPair(p, w); err != nil {
			return err
		}
	}
	return nil
}

func dumpPair(p Pair, w io.Writer) error {
	rows, err := translog.ReadJSONL(p.JSONL)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# %s (%d rows, verified)\n", p.Tlog, len(rows))
	for _, r := range rows {
		asset := r.AssetURI
		if asset == "" {
			asset = "-"
		}
		fmt.Fprintf(w, "%s  %-8s  %-8s  %-32s  %s\n",
			r.Start.Format(translog.TimeLayout),
			translog.FormatHMS(r.DurationMS),
			r.Type, r.EventID, asset)
	}
	return nil
}
