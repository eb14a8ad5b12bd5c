// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 MIT Haystack Observatory

package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Host-side serial link (commands in, telemetry and relayed GNSS out)
	hostPort string
	hostBaud int

	// GNSS receiver serial link
	gnssPort string
	gnssBaud int
)

var rootCmd = &cobra.Command{
	Use:   "afectl",
	Short: "AFE instrument controller",
	Long: `afectl - controller for the GNSS antenna front end.

Runs the instrument executive: relays GNSS receiver output to the host,
services $PMIT command sentences, samples the magnetometer and IMU, and
emits periodic telemetry.

Connections:
  Host link: --host /dev/ttyAMA0 [--host-baud 115200]
  GNSS link: --gnss /dev/ttyAMA1 [--gnss-baud 9600]`,
	Version: "1.2.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&hostPort, "host", "p", "", "Host-side serial port device")
	rootCmd.PersistentFlags().IntVar(&hostBaud, "host-baud", 115200, "Host link baud rate")
	rootCmd.PersistentFlags().StringVarP(&gnssPort, "gnss", "g", "", "GNSS receiver serial port device")
	rootCmd.PersistentFlags().IntVar(&gnssBaud, "gnss-baud", 9600, "GNSS link baud rate")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
