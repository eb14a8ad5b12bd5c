// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 MIT Haystack Observatory
//
// afectl - AFE instrument controller
//
// Controller for the GNSS antenna front end: runs the instrument
// executive, and provides host-side monitor and link-test utilities.

package main

import (
	"os"

	"github.com/mithaystack/afectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
