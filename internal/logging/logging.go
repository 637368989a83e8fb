// Copyright (c) 2026 RISE Team
// RISE - remote infrastructure service engine
// This source code is licensed under the MIT license found in the LICENSE file.

// Package logging wraps charmbracelet/log behind a small helper surface so
// the rest of the tree never imports the logging library directly.
package logging

import (
	"fmt"

	clog "github.com/charmbracelet/log"
)

// L is the package-level logger.
var L = clog.New()

// SetDebug toggles debug-level output.
func SetDebug(enabled bool) {
	if enabled {
		L.SetLevel(clog.DebugLevel)
	} else {
		L.SetLevel(clog.InfoLevel)
	}
}

func Debugf(format string, v ...interface{}) { L.Debug(fmt.Sprintf(format, v...)) }
func Infof(format string, v ...interface{})  { L.Info(fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...interface{})  { L.Warn(fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...interface{}) { L.Error(fmt.Sprintf(format, v...)) }
