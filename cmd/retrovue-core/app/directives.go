// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/retrovue/playout/pkg/schedule"
)

// FileDirectives serves operator-authored day directives from disk, one
// JSON file per channel and broadcast date at
// {root}/{channel_id}/{date}.json. A missing file means traffic has not
// authored that day yet; the planner treats it as exhaustion and the
// horizon loop retries on a later tick.
type FileDirectives struct {
	Root string
}

func (d FileDirectives) Directive(_ context.Context, channelID, date string) (schedule.DayDirective, error) {
	path := filepath.Join(d.Root, channelID, date+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return schedule.DayDirective{}, fmt.Errorf("directive %s/%s: %w", channelID, date, err)
	}
	var dir schedule.DayDirective
	if err := json.Unmarshal(data, &dir); err != nil {
		return schedule.DayDirective{}, fmt.Errorf("directive %s/%s: %w", channelID, date, err)
	}
	if dir.ChannelID == "" {
		dir.ChannelID = channelID
	}
	if dir.BroadcastDate == "" {
		dir.BroadcastDate = date
	}
	if dir.ChannelID != channelID || dir.BroadcastDate != date {
		return schedule.DayDirective{}, fmt.Errorf("directive %s/%s: file claims %s/%s",
			channelID, date, dir.ChannelID, dir.BroadcastDate)
	}
	return dir, nil
}
