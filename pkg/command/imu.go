// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 MIT Haystack Observatory

package command

import (
	"fmt"
	"strings"

	"github.com/mithaystack/afectl/pkg/ism330"
	"github.com/mithaystack/afectl/pkg/nmea"
)

// IMU command error codes
const (
	errIMUChecksum = -10
	errIMUTooFew   = -1
	errIMUAccName  = -2
	errIMUGyrName  = -3
	errIMUHPFlag   = -5
	errIMUULPFlag  = -6
	errIMUGLPFlag  = -7
	errIMUInit     = -30
	errIMUVector   = -30
)

// handleIMU covers the $PMITIM family:
//
//	$PMITIMU,<accRate>,<gyrRate>,<hp>,<ulp>,<glp> reconfigure both sensors
//	$PMITIM?                                      query the configuration
//
// Rates are selected by profile name. The three flags are 0/1: accel high
// performance, accel ultra low power, gyro low power.
func (r *Router) handleIMU(raw string) string {
	vector := slice(raw, 7, 8)
	code := "IM" + vector

	body, err := nmea.Validate(raw)
	if err != nil {
		return errResp(code, errIMUChecksum)
	}

	switch vector {
	case "U":
		cfg, perr := parseIMUParams(body, r.IMU.Config().Activity)
		if perr != 0 {
			return errResp(code, perr)
		}
		if err := r.IMU.Configure(cfg); err != nil {
			return errResp(code, errIMUInit)
		}
		if err := r.IMU.ConfigureFIFO(); err != nil {
			return errResp(code, errIMUInit)
		}
		return okResp(code, echoParams(body))

	case "?":
		cfg := r.IMU.Config()
		payload := fmt.Sprintf("%s,%s,%d,%d,%d",
			cfg.Accel.Name, cfg.Gyro.Name,
			boolDigit(cfg.HighPerf), boolDigit(cfg.ULP), boolDigit(cfg.GyroLP))
		return okResp(code, payload)
	}

	return errResp(code, errIMUVector)
}

func boolDigit(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseIMUParams(body string, activity ism330.ActivityMode) (ism330.Config, int) {
	var cfg ism330.Config

	fields := strings.Split(body, ",")
	if len(fields) < 6 {
		return cfg, errIMUTooFew
	}

	acc, ok := ism330.LookupProfile(fields[1])
	if !ok {
		return cfg, errIMUAccName
	}
	gyr, ok := ism330.LookupProfile(fields[2])
	if !ok {
		return cfg, errIMUGyrName
	}

	hp, ok := parseFlag(fields[3])
	if !ok {
		return cfg, errIMUHPFlag
	}
	ulp, ok := parseFlag(fields[4])
	if !ok {
		return cfg, errIMUULPFlag
	}
	glp, ok := parseFlag(fields[5])
	if !ok {
		return cfg, errIMUGLPFlag
	}

	cfg = ism330.Config{
		Accel:    acc,
		Gyro:     gyr,
		HighPerf: hp,
		ULP:      ulp,
		GyroLP:   glp,
		Activity: activity,
	}
	return cfg, 0
}

func parseFlag(s string) (bool, bool) {
	switch s {
	case "0":
		return false, true
	case "1":
		return true, true
	}
	return false, false
}
