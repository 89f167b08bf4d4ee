// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package schedule

import (
	"encoding/json"
	"fmt"
	"time"
)

// PlayMode selects episode ordering for a PlayProgram directive.
type PlayMode string

const (
	PlaySequential PlayMode = "sequential"
	PlayRandom     PlayMode = "random"
)

// ZoneDirective is the closed set of scheduling instructions a zone may
// carry. The concrete types are PlaySingle, PlayProgram, MovieMarathon and
// ProgramReference.
type ZoneDirective interface {
	directiveKind() string
}

// PlaySingle schedules one named asset at the zone cursor.
type PlaySingle struct {
	AssetID string `json:"asset_id"`
}

func (PlaySingle) directiveKind() string { return "play_single" }

// PlayProgram fills the zone with episodes of a program, in library order or
// deterministically shuffled, until the zone end is reached.
type PlayProgram struct {
	ProgramID string   `json:"program_id"`
	PlayMode  PlayMode `json:"play_mode"`
}

func (PlayProgram) directiveKind() string { return "play_program" }

// MovieMarathon runs a pool of movies back to back over its own window.
// With AllowBleed each movie's declared start follows the previous movie's
// actual runtime, so slots overlap on paper and the compactor pushes them
// apart; without it movies are spaced by their ceiled slots.
type MovieMarathon struct {
	Start      time.Time    `json:"start"`
	End        time.Time    `json:"end"`
	Pool       PoolSelector `json:"pool"`
	AllowBleed bool         `json:"allow_bleed"`
}

func (MovieMarathon) directiveKind() string { return "movie_marathon" }

// ProgramReference schedules one specific episode (zero-based) of a program.
type ProgramReference struct {
	ProgramID string `json:"program_id"`
	Episode   int    `json:"episode"`
}

func (ProgramReference) directiveKind() string { return "program_reference" }

// Zone is a contiguous window of the broadcast day owned by an ordered list
// of directives. Start and End must be grid-aligned UTC instants.
type Zone struct {
	Name       string
	Start      time.Time
	End        time.Time
	Directives []ZoneDirective
}

type zoneJSON struct {
	Name       string            `json:"name"`
	Start      time.Time         `json:"start"`
	End        time.Time         `json:"end"`
	Directives []json.RawMessage `json:"directives"`
}

type directiveEnvelope struct {
	Kind string `json:"kind"`
}

// UnmarshalJSON decodes the zone's directives by their kind tag. An unknown
// kind is a hard error, never skipped.
func (z *Zone) UnmarshalJSON(data []byte) error {
	var raw zoneJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	z.Name = raw.Name
	z.Start = raw.Start
	z.End = raw.End
	z.Directives = z.Directives[:0]
	for i, msg := range raw.Directives {
		var env directiveEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			return fmt.Errorf("zone %q directive %d: %w", raw.Name, i, err)
		}
		var (
			d   ZoneDirective
			err error
		)
		switch env.Kind {
		case "play_single":
			var v PlaySingle
			err = json.Unmarshal(msg, &v)
			d = v
		case "play_program":
			var v PlayProgram
			err = json.Unmarshal(msg, &v)
			d = v
		case "movie_marathon":
			var v MovieMarathon
			err = json.Unmarshal(msg, &v)
			d = v
		case "program_reference":
			var v ProgramReference
			err = json.Unmarshal(msg, &v)
			d = v
		default:
			return fmt.Errorf("zone %q directive %d: unknown kind %q", raw.Name, i, env.Kind)
		}
		if err != nil {
			return fmt.Errorf("zone %q directive %d (%s): %w", raw.Name, i, env.Kind, err)
		}
		z.Directives = append(z.Directives, d)
	}
	return nil
}

// MarshalJSON encodes each directive with its kind tag so the zone round
// trips through storage.
func (z Zone) MarshalJSON() ([]byte, error) {
	raw := zoneJSON{Name: z.Name, Start: z.Start, End: z.End}
	for i, d := range z.Directives {
		body, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("zone %q directive %d: %w", z.Name, i, err)
		}
		tagged, err := json.Marshal(struct {
			Kind string `json:"kind"`
		}{Kind: d.directiveKind()})
		if err != nil {
			return nil, err
		}
		// Splice the kind tag into the directive object.
		if string(body) == "{}" {
			raw.Directives = append(raw.Directives, tagged)
			continue
		}
		merged := append([]byte(`{"kind":"`+d.directiveKind()+`",`), body[1:]...)
		raw.Directives = append(raw.Directives, merged)
	}
	return json.Marshal(raw)
}

// DayDirective is the operator-authored plan for one channel broadcast day.
type DayDirective struct {
	ChannelID     string `json:"channel_id"`
	BroadcastDate string `json:"broadcast_date"`
	GridMinutes   int    `json:"grid_minutes"`
	DayStartHour  int    `json:"day_start_hour"`
	Timezone      string `json:"timezone"`
	Zones         []Zone `json:"zones"`
}
