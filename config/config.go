// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config holds the core's configuration record (spec §6: "The
// core accepts a configuration record...") and the four ADA_STARTUP_*
// environment knobs read once at init (spec §6).
package config

import (
	"os"
	"strconv"
	"time"
)

// Trigger is one entry of the trigger list (spec §6): either a symbol
// name, "crash", or a time offset in seconds.
type Trigger struct {
	Symbol   string // qualified symbol name; empty unless Kind == TriggerSymbol
	Kind     TriggerKind
	TimeSecs int // seconds; only meaningful when Kind == TriggerTime
}

// TriggerKind discriminates a Trigger's variant.
type TriggerKind int

const (
	TriggerSymbol TriggerKind = iota
	TriggerCrash
	TriggerTime
)

// Config is the configuration record consumed (not produced) by the
// core, per spec §6's "CLI surface (consumed, not defined here)".
type Config struct {
	OutputDir          string
	SessionDuration     time.Duration // 0 = infinite
	PreRoll             time.Duration
	PostRoll            time.Duration
	StackCaptureBytes   int // 0-512, spec §6
	Triggers            []Trigger
	ModuleExcludeList   []string
}

// StartupCalibration is the controller-side startup deadline calibration
// the core reads once at init via the four ADA_STARTUP_* environment
// variables (spec §6).
type StartupCalibration struct {
	Timeout           time.Duration
	WarmUpDuration    time.Duration
	PerSymbolCost     time.Duration
	TimeoutTolerance  time.Duration
}

// defaultStartupCalibration mirrors values a systems tracer of this
// shape would ship as conservative defaults before any env override.
func defaultStartupCalibration() StartupCalibration {
	return StartupCalibration{
		Timeout:          30 * time.Second,
		WarmUpDuration:   2 * time.Second,
		PerSymbolCost:    50 * time.Microsecond,
		TimeoutTolerance: 5 * time.Second,
	}
}

// LoadStartupCalibration reads ADA_STARTUP_TIMEOUT, ADA_STARTUP_WARM_UP_DURATION,
// ADA_STARTUP_PER_SYMBOL_COST, ADA_STARTUP_TIMEOUT_TOLERANCE (spec §6),
// each a decimal count of milliseconds, falling back to defaults when
// unset or unparsable. Four scalar knobs read once at init don't justify
// a config-framework dependency (SPEC_FULL.md §D).
func LoadStartupCalibration() StartupCalibration {
	c := defaultStartupCalibration()
	c.Timeout = envMillis("ADA_STARTUP_TIMEOUT", c.Timeout)
	c.WarmUpDuration = envMillis("ADA_STARTUP_WARM_UP_DURATION", c.WarmUpDuration)
	c.PerSymbolCost = envMillis("ADA_STARTUP_PER_SYMBOL_COST", c.PerSymbolCost)
	c.TimeoutTolerance = envMillis("ADA_STARTUP_TIMEOUT_TOLERANCE", c.TimeoutTolerance)
	return c
}

func envMillis(name string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return fallback
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms < 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
