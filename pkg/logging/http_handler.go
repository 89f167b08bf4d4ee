// Copyright 2024, RetroVue Project. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package logging

import (
	"fmt"
	"net/http"
)

// Route is one handler the servers mount alongside their own routes.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// LogRoutes exposes the runtime log level: GET reads it, POST changes
// it, e.g. curl -F level=debug <server>/loglevel.
var LogRoutes = [2]Route{
	{"GET", "/loglevel", handleLogLevelGet},
	{"POST", "/loglevel", handleLogLevelSet},
}

func handleLogLevelGet(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, LogLevel())
}

func handleLogLevelSet(w http.ResponseWriter, r *http.Request) {
	prev := LogLevel()
	if err := r.ParseMultipartForm(128); err != nil {
		// Plain form posts are fine too.
		if err := r.ParseForm(); err != nil {
			http.Error(w, "incorrect form data", http.StatusBadRequest)
			return
		}
	}
	level := r.FormValue("level")
	if err := SetLogLevel(level); err != nil {
		http.Error(w, fmt.Sprintf("incorrect log level %q", level), http.StatusBadRequest)
		return
	}
	fmt.Fprintf(w, "%q -> %q\n", prev, LogLevel())
}
