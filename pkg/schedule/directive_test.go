// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package schedule

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZoneDirectiveRoundTrip(t *testing.T) {
	z := Zone{
		Name:  "primetime",
		Start: utc(18, 0),
		End:   utc(22, 0),
		Directives: []ZoneDirective{
			PlaySingle{AssetID: "news-open"},
			PlayProgram{ProgramID: "sitcom", PlayMode: PlayRandom},
			MovieMarathon{
				Start: utc(20, 0), End: utc(22, 0),
				Pool:       PoolSelector{Match: map[string]string{"genre": "horror"}},
				AllowBleed: true,
			},
			ProgramReference{ProgramID: "drama", Episode: 3},
		},
	}
	data, err := json.Marshal(z)
	require.NoError(t, err)

	var back Zone
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back.Directives, 4)
	assert.Equal(t, z.Directives[0], back.Directives[0])
	assert.Equal(t, z.Directives[1], back.Directives[1])
	assert.Equal(t, PlayRandom, back.Directives[1].(PlayProgram).PlayMode)

	mm := back.Directives[2].(MovieMarathon)
	assert.True(t, mm.AllowBleed)
	assert.True(t, utc(20, 0).Equal(mm.Start))
	assert.Equal(t, "horror", mm.Pool.Match["genre"])

	pr := back.Directives[3].(ProgramReference)
	assert.Equal(t, 3, pr.Episode)
}

func TestZoneUnknownDirectiveKindFails(t *testing.T) {
	raw := `{
		"name": "bad",
		"start": "2025-03-01T06:00:00Z",
		"end": "2025-03-01T08:00:00Z",
		"directives": [{"kind": "play_everything"}]
	}`
	var z Zone
	err := json.Unmarshal([]byte(raw), &z)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "play_everything")
}

func TestDayDirectiveDecode(t *testing.T) {
	raw := `{
		"channel_id": "wxrv",
		"broadcast_date": "2025-03-01",
		"grid_minutes": 30,
		"day_start_hour": 6,
		"timezone": "America/New_York",
		"zones": [{
			"name": "morning",
			"start": "2025-03-01T11:00:00Z",
			"end": "2025-03-01T15:00:00Z",
			"directives": [
				{"kind": "play_program", "program_id": "cartoons", "play_mode": "sequential"}
			]
		}]
	}`
	var d DayDirective
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	assert.Equal(t, "wxrv", d.ChannelID)
	assert.Equal(t, 30, d.GridMinutes)
	require.Len(t, d.Zones, 1)
	require.Len(t, d.Zones[0].Directives, 1)
	pp := d.Zones[0].Directives[0].(PlayProgram)
	assert.Equal(t, "cartoons", pp.ProgramID)
	assert.Equal(t, PlaySequential, pp.PlayMode)
}
