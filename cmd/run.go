// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 MIT Haystack Observatory

package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/mithaystack/afectl/pkg/afe"
	"github.com/mithaystack/afectl/pkg/ism330"
	"github.com/mithaystack/afectl/pkg/maxio"
	"github.com/mithaystack/afectl/pkg/rm3100"
	"github.com/mithaystack/afectl/pkg/timesync"
	"github.com/spf13/cobra"
)

var (
	magSpidev  string
	imuSpidev  string
	miscSpidev string
	txSpidev   string
	rxSpidev   string
	spiSpeedHz uint32

	switcherADCPath string
	magADCPath      string
	ocxoPinPath     string

	restartDelay time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the instrument executive loop",
	Long: `Run the AFE executive: GNSS relay, command servicing, sensor
sampling, and telemetry, under a supervisor that restarts the loop after
any uncaught fault.

Each SPI chip select is one spidev node. The housekeeping temperatures
come from IIO sysfs raw channels and the OCXO lock from a GPIO value
file.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&magSpidev, "mag-spidev", "/dev/spidev0.0", "Magnetometer chip select")
	runCmd.Flags().StringVar(&imuSpidev, "imu-spidev", "/dev/spidev0.1", "IMU chip select")
	runCmd.Flags().StringVar(&miscSpidev, "misc-spidev", "/dev/spidev0.2", "Misc expander chip select")
	runCmd.Flags().StringVar(&txSpidev, "tx-spidev", "/dev/spidev1.0", "TX expander chain chip select")
	runCmd.Flags().StringVar(&rxSpidev, "rx-spidev", "/dev/spidev1.1", "RX expander chain chip select")
	runCmd.Flags().Uint32Var(&spiSpeedHz, "spi-speed", 1000000, "SPI clock rate in Hz")

	runCmd.Flags().StringVar(&switcherADCPath, "switcher-adc",
		"/sys/bus/iio/devices/iio:device0/in_voltage0_raw", "Switcher temperature ADC channel")
	runCmd.Flags().StringVar(&magADCPath, "mag-adc",
		"/sys/bus/iio/devices/iio:device0/in_voltage1_raw", "Magnetometer temperature ADC channel")
	runCmd.Flags().StringVar(&ocxoPinPath, "ocxo-pin",
		"/sys/class/gpio/gpio21/value", "OCXO lock pin value file")

	runCmd.Flags().DurationVar(&restartDelay, "restart-delay", 2*time.Second,
		"Delay before restarting the loop after a fault")
}

func runRun(cmd *cobra.Command, args []string) error {
	if hostPort == "" || gnssPort == "" {
		return fmt.Errorf("both --host and --gnss must be specified")
	}

	log.Printf("afectl run: host %s @ %d, gnss %s @ %d", hostPort, hostBaud, gnssPort, gnssBaud)

	// Supervisor: the executive carries no state across a fault, so a
	// restart rebuilds everything from the hardware up.
	for {
		err := runOnce()
		log.Printf("executive fault: %v; restarting in %s", err, restartDelay)
		time.Sleep(restartDelay)
	}
}

// runOnce builds a fresh controller and runs it until something panics.
func runOnce() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	host, err := OpenSerialConnection(hostPort, hostBaud)
	if err != nil {
		return err
	}
	defer host.Close()

	gnss, err := OpenSerialConnection(gnssPort, gnssBaud)
	if err != nil {
		return err
	}
	defer gnss.Close()

	ports := make([]*SpidevPort, 0, 5)
	defer func() {
		for _, p := range ports {
			p.Close()
		}
	}()
	openPort := func(path string) (*SpidevPort, error) {
		p, err := OpenSpidev(path, spiSpeedHz)
		if err != nil {
			return nil, err
		}
		ports = append(ports, p)
		return p, nil
	}

	magPort, err := openPort(magSpidev)
	if err != nil {
		return err
	}
	imuPort, err := openPort(imuSpidev)
	if err != nil {
		return err
	}
	miscPort, err := openPort(miscSpidev)
	if err != nil {
		return err
	}
	txPort, err := openPort(txSpidev)
	if err != nil {
		return err
	}
	rxPort, err := openPort(rxSpidev)
	if err != nil {
		return err
	}

	ctl := afe.New(afe.Config{
		Host: host,
		GNSS: gnss,
		Board: &SysfsBoard{
			SwitcherPath: switcherADCPath,
			MagPath:      magADCPath,
			OCXOPath:     ocxoPinPath,
		},
		Bank:  maxio.NewBank(miscPort, txPort, rxPort),
		Mag:   rm3100.New(magPort),
		IMU:   ism330.New(imuPort),
		Clock: &timesync.OffsetClock{},
	})

	if err := ctl.Init(); err != nil {
		// degraded devices are reported in housekeeping; keep running
		log.Printf("init: %v", err)
	}

	ctl.Run()
	return nil
}
