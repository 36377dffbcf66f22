// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Fieldlink - farm sensor link bridge
//
// Serves the sensor microcontroller's serial link, stores its readings
// against the current user and runs the soil moisture watering cycle.

package main

import (
	"os"

	"github.com/pifarm/fieldlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
