// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package horizon

import (
	"testing"

	"go.uber.org/goleak"
)

// The horizon loop must not leak its tick goroutine after cancellation.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
