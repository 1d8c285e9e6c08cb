// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// exstat - Jeti EX Bus Link Analyzer
//
// A CLI tool for decoding and diagnosing Jeti EX Bus receiver links.

package main

import (
	"os"

	"github.com/Thermoquad/exstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
