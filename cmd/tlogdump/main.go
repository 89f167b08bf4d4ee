// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/retrovue/playout/cmd/tlogdump/app"
	"github.com/retrovue/playout/internal"
	"github.com/retrovue/playout/pkg/logging"
)

var usg = `Usage of %s:

%s reads committed transmission-log artifact pairs (.tlog and .tlog.jsonl),
verifies that the pair carries the same events with identical types, and
prints the rows.

Pass one or more .tlog files or directories to walk. With --verify the tool
only reports whether every pair is consistent.
`

func parseOptions() *app.Options {
	name := os.Args[0]
	o := app.Options{}
	flag.BoolVarP(&o.VerifyOnly, "verify", "c", false, "verify pairs without dumping rows")
	lf := strings.Join(logging.LogFormats, ", ")
	flag.StringVarP(&o.LogFormat, "logformat", "", "text", fmt.Sprintf("log format [%s]", lf))
	flag.StringVarP(&o.LogLevel, "loglevel", "", "info", "initial log level")
	flag.BoolVarP(&o.Version, "version", "v", false, "print version and date")
	flag.CommandLine.SortFlags = false // keep help output order as declared

	flag.Usage = func() {
		parts := strings.Split(name, "/")
		name := parts[len(parts)-1]
		fmt.Fprintf(os.Stderr, usg, name, name)
		fmt.Fprintf(os.Stderr, "\nRun as %s [options] path...\n\n", name)
		flag.PrintDefaults()
		os.Exit(2)
	}

	flag.Parse()
	internal.CheckVersion(o.Version)

	if len(flag.Args()) == 0 {
		flag.Usage()
	}

	o.Paths = flag.Args()

	return &o
}

func main() {
	o := parseOptions()

	if err := logging.InitSlog(o.LogLevel, o.LogFormat); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := app.Run(o, os.Stdout); err != nil {
		slog.Error("tlogdump failed", "err", err)
		os.Exit(1)
	}
}
