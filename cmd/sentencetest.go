// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 MIT Haystack Observatory

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/mithaystack/afectl/pkg/nmea"
	"github.com/spf13/cobra"
)

var sentenceTestTimeout int

var sentenceTestCmd = &cobra.Command{
	Use:   "sentencetest",
	Short: "Test connection by waiting for a valid sentence",
	Long: `Wait for a valid checksum-framed sentence on the host link until
timeout.

This command connects to the host-side serial port and waits for any
sentence that passes checksum validation. It ignores invalid bytes and
sentences with bad checksums.

Exit codes:
  0 - Valid sentence received before timeout
  1 - Timeout reached without a valid sentence
  2 - Connection error

Useful for checking cabling and baud rate against a running instrument.`,
	RunE: runSentenceTest,
}

func init() {
	rootCmd.AddCommand(sentenceTestCmd)
	sentenceTestCmd.Flags().IntVar(&sentenceTestTimeout, "timeout", 10, "Timeout in seconds to wait for a sentence")
}

func runSentenceTest(cmd *cobra.Command, args []string) error {
	if hostPort == "" {
		fmt.Fprintf(os.Stderr, "Connection error: --host must be specified\n")
		os.Exit(2)
	}

	conn, err := OpenSerialConnection(hostPort, hostBaud)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("afectl - Sentence Test\n")
	fmt.Printf("Serial: %s @ %d baud\n", hostPort, hostBaud)
	fmt.Printf("Timeout: %d seconds\n", sentenceTestTimeout)
	fmt.Printf("Waiting for valid sentence...\n\n")

	sentenceChan := make(chan string, 1)
	errChan := make(chan error, 1)

	go func() {
		decoder := nmea.NewDecoder()
		buf := make([]byte, 128)
		invalid := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				raw, decodeErr := decoder.DecodeByte(buf[i])
				if decodeErr != nil {
					invalid++
					continue
				}
				if raw == "" {
					continue
				}
				if _, err := nmea.Validate(raw); err != nil {
					invalid++
					continue
				}
				if invalid > 0 {
					fmt.Printf("(skipped %d invalid bytes before sync)\n", invalid)
				}
				sentenceChan <- raw
				return
			}
		}
	}()

	select {
	case raw := <-sentenceChan:
		body, _ := nmea.Validate(raw)
		fmt.Printf("SUCCESS: Received valid sentence\n")
		fmt.Printf("  Talker: %s\n", nmea.Prefix(body))
		fmt.Printf("  Fields: %d\n", len(nmea.Fields(body)))
		fmt.Printf("  Raw: %s\n", raw)
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(sentenceTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid sentence received within %d seconds\n", sentenceTestTimeout)
		os.Exit(1)
	}

	return nil
}
