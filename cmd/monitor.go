// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 MIT Haystack Observatory

package cmd

import (
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/mithaystack/afectl/pkg/nmea"
	"github.com/spf13/cobra"
)

var monitorListen string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Log instrument output and relay it to WebSocket clients",
	Long: `Connect to the instrument's host-side serial port, validate each
sentence, print it with its validation status, and relay validated
sentences to any connected WebSocket clients.

Invalid sentences are logged but not relayed.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorListen, "listen", ":8080", "WebSocket listen address")
}

// wsHub fans validated sentences out to every connected client. A client
// that cannot keep up is dropped rather than allowed to stall the relay.
type wsHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func newWSHub() *wsHub {
	return &wsHub{clients: make(map[*websocket.Conn]bool)}
}

func (h *wsHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = true
}

func (h *wsHub) broadcast(sentence string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(sentence)); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

var wsUpgrader = websocket.Upgrader{
	// the relay is one-way telemetry on a trusted network
	CheckOrigin: func(r *http.Request) bool { return true },
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if hostPort == "" {
		return fmt.Errorf("--host must be specified")
	}

	conn, err := OpenSerialConnection(hostPort, hostBaud)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("afectl monitor\n")
	fmt.Printf("Serial: %s @ %d baud\n", hostPort, hostBaud)
	fmt.Printf("WebSocket relay: %s\n", monitorListen)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	hub := newWSHub()
	http.HandleFunc("/telemetry", func(w http.ResponseWriter, r *http.Request) {
		ws, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade: %v", err)
			return
		}
		hub.add(ws)
	})
	go func() {
		if err := http.ListenAndServe(monitorListen, nil); err != nil {
			log.Fatalf("websocket listen: %v", err)
		}
	}()

	decoder := nmea.NewDecoder()
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			log.Printf("Read error: %v", err)
			continue
		}

		for i := 0; i < n; i++ {
			raw, err := decoder.DecodeByte(buf[i])
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if raw == "" {
				continue
			}
			if _, err := nmea.Validate(raw); err != nil {
				fmt.Printf("[INVALID] %s: %v\n", raw, err)
				continue
			}
			fmt.Println(raw)
			hub.broadcast(raw)
		}
	}
}
