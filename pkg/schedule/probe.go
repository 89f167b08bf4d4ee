// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package schedule

import (
	"fmt"
	"os"

	"github.com/Eyevinn/mp4ff/bits"
	"github.com/Eyevinn/mp4ff/mp4"
)

// ProbeDurationMS reads the mvhd duration of a local mp4 file and returns
// it in milliseconds.
func ProbeDurationMS(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	sr := bits.NewFixedSliceReader(data)
	f, err := mp4.DecodeFileSR(sr)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}
	moov := f.Moov
	if moov == nil && f.Init != nil {
		moov = f.Init.Moov
	}
	if moov == nil || moov.Mvhd == nil {
		return 0, fmt.Errorf("%s: no mvhd box", path)
	}
	mvhd := moov.Mvhd
	if mvhd.Timescale == 0 {
		return 0, fmt.Errorf("%s: mvhd timescale is zero", path)
	}
	return int64(mvhd.Duration) * 1000 / int64(mvhd.Timescale), nil
}
