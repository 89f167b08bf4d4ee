// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package schedule

import "fmt"

// Compile error codes. Compilation is all-or-nothing: any violation fails
// the whole day and nothing is published.
const (
	CodeGridViolation     = "GRID_VIOLATION"
	CodeIllegalOverlap    = "ILLEGAL_OVERLAP"
	CodeNotUTC            = "NOT_UTC"
	CodeEmptyPool         = "EMPTY_POOL"
	CodeAssetUnresolvable = "ASSET_UNRESOLVABLE"
)

// CompileError is the typed failure returned by Compile. Code is one of the
// Code* constants; Detail names the offending directive or block.
type CompileError struct {
	Code   string
	Detail string
	err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *CompileError) Unwrap() error { return e.err }

func compileErrf(code string, format string, args ...any) *CompileError {
	return &CompileError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

func compileErrWrap(code string, err error, format string, args ...any) *CompileError {
	return &CompileError{Code: code, Detail: fmt.Sprintf(format, args...), err: err}
}
