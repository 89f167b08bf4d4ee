// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/spf13/pflag"

	"github.com/retrovue/playout/pkg/logging"
)

// ChannelConfig describes one linear channel the core plays out.
// A channel without an explicit filler never pads short blocks, so in
// practice every production channel sets one.
type ChannelConfig struct {
	ID                  string `json:"id"`
	Timezone            string `json:"timezone"`
	DayStartHour        int    `json:"daystarthour"`
	LockedWindowMin     int    `json:"lockedwindowmin"`
	FillerURI           string `json:"filleruri"`
	FillerDurationMS    int64  `json:"fillerdurationms"`
	MinEPGDays          int    `json:"minepgdays"`
	MinExecutionHours   int    `json:"minexecutionhours"`
	EvaluationIntervalS int    `json:"evaluationintervals"`
	AirAddr             string `json:"airaddr"`
}

// LockedWindow returns the channel's locked horizon as a duration.
func (c ChannelConfig) LockedWindow() time.Duration {
	if c.LockedWindowMin <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.LockedWindowMin) * time.Minute
}

type ServerConfig struct {
	LogFormat    string `json:"logformat"`
	LogLevel     string `json:"loglevel"`
	Port         int    `json:"port"`
	EvidencePort int    `json:"evidenceport"`
	TimeoutS     int    `json:"timeoutS"`

	DataDir       string `json:"datadir"`
	ArtifactDir   string `json:"artifactdir"`
	AsRunDir      string `json:"asrundir"`
	DirectiveRoot string `json:"directiveroot"`
	LibraryRoot   string `json:"libraryroot"`

	HLSTargetDurationS int `json:"hlstargetdurationS"`
	HLSMaxSegments     int `json:"hlsmaxsegments"`

	Tier2RetentionDays int `json:"tier2retentiondays"`
	PurgeIntervalMin   int `json:"purgeintervalmin"`

	Channels []ChannelConfig `json:"channels"`
}

var DefaultConfig = ServerConfig{
	LogFormat:          "text",
	LogLevel:           "info",
	Port:               8870,
	EvidencePort:       8871,
	TimeoutS:           60,
	DataDir:            "./data",
	ArtifactDir:        "./artifacts",
	AsRunDir:           "./asrun",
	DirectiveRoot:      "./directives",
	LibraryRoot:        "./library",
	HLSTargetDurationS: 6,
	HLSMaxSegments:     6,
	Tier2RetentionDays: 90,
	PurgeIntervalMin:   60,
}

// LoadConfig loads defaults, config file, command line, and finally applies
// environment variables.
//
// Directory paths are made absolute relative to cwd. Channels can only be
// declared in the config file or environment; there is no flag for them.
func LoadConfig(args []string, cwd string) (*ServerConfig, error) {
	// First set default values
	k := koanf.New(".")
	defaults := DefaultConfig
	k.Load(structs.Provider(defaults, "json"), nil)

	f := pflag.NewFlagSet("retrovue-core", pflag.ContinueOnError)
	f.Usage = func() {
		parts := strings.Split(args[0], "/")
		name := parts[len(parts)-1]
		fmt.Fprintf(os.Stderr, "Run as %s [options]:\n", name)
		f.PrintDefaults()
	}
	cfgFile := f.String("cfg", "", "path to a JSON config file")
	f.Int("port", k.Int("port"), "HTTP port (operator API + HLS)")
	f.Int("evidenceport", k.Int("evidenceport"), "gRPC port for the AIR evidence stream")
	lf := strings.Join(logging.LogFormats, ", ")
	f.String("logformat", k.String("logformat"), fmt.Sprintf("log format [%s]", lf))
	ll := strings.Join(logging.LogLevels, ", ")
	f.String("loglevel", k.String("loglevel"), fmt.Sprintf("log level [%s]", ll))
	f.String("datadir", k.String("datadir"), "state directory (sqlite, badger, ack files)")
	f.String("artifactdir", k.String("artifactdir"), "transmission log artifact directory")
	f.String("asrundir", k.String("asrundir"), "as-run artifact directory")
	f.String("directiveroot", k.String("directiveroot"), "day directive root directory")
	f.String("libraryroot", k.String("libraryroot"), "asset library sidecar root directory")
	f.Int("timeout", k.Int("timeoutS"), "timeout for all requests (seconds)")
	if err := f.Parse(args[1:]); err != nil {
		return nil, fmt.Errorf("command line parse: %w", err)
	}

	// Load the config file provided on the command line.
	if *cfgFile != "" {
		cf := file.Provider(*cfgFile)
		if err := k.Load(cf, json.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	// Possibly override config file with commandline parameters
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("parsing cli: %v", err)
	}

	// Overload with environment variables
	k.Load(env.Provider("RETROVUE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "RETROVUE_")), "_", ".", -1)
	}), nil)

	// Make directory paths absolute in case they are not already.
	abs := map[string]any{}
	for _, key := range []string{"datadir", "artifactdir", "asrundir", "directiveroot", "libraryroot"} {
		v := k.String(key)
		if v != "" && !path.IsAbs(v) {
			abs[key] = path.Join(cwd, v)
		}
	}
	if len(abs) > 0 {
		k.Load(confmap.Provider(abs, "."), nil)
	}

	// Unmarshal into cfg
	var cfg ServerConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validateConfig(cfg *ServerConfig) error {
	seen := make(map[string]bool, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		if ch.ID == "" {
			return fmt.Errorf("channel without id in config")
		}
		if seen[ch.ID] {
			return fmt.Errorf("duplicate channel id %q", ch.ID)
		}
		seen[ch.ID] = true
		if _, err := time.LoadLocation(tzOrUTC(ch.Timezone)); err != nil {
			return fmt.Errorf("channel %s: %w", ch.ID, err)
		}
		if ch.DayStartHour < 0 || ch.DayStartHour > 23 {
			return fmt.Errorf("channel %s: day start hour %d out of range", ch.ID, ch.DayStartHour)
		}
		// As-run day routing and retention sweep one station zone; a
		// channel on another zone would file evidence under the wrong
		// broadcast day, so refuse the config outright.
		first := cfg.Channels[0]
		if i > 0 && (tzOrUTC(ch.Timezone) != tzOrUTC(first.Timezone) || ch.DayStartHour != first.DayStartHour) {
			return fmt.Errorf("channel %s: timezone/day start %s/%d differs from channel %s (%s/%d); all channels must share the station zone",
				ch.ID, tzOrUTC(ch.Timezone), ch.DayStartHour,
				first.ID, tzOrUTC(first.Timezone), first.DayStartHour)
		}
	}
	return nil
}

func tzOrUTC(tz string) string {
	if tz == "" {
		return "UTC"
	}
	return tz
}
