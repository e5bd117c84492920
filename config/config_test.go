// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config_test

import (
	"testing"
	"time"

	"code.hybscloud.com/adatrace/config"
)

func TestLoadStartupCalibrationDefaults(t *testing.T) {
	clearStartupEnv(t)
	c := config.LoadStartupCalibration()
	if c.Timeout != 30*time.Second {
		t.Fatalf("Timeout default: got %v, want 30s", c.Timeout)
	}
}

func TestLoadStartupCalibrationOverride(t *testing.T) {
	clearStartupEnv(t)
	t.Setenv("ADA_STARTUP_TIMEOUT", "5000")
	t.Setenv("ADA_STARTUP_WARM_UP_DURATION", "250")
	c := config.LoadStartupCalibration()
	if c.Timeout != 5*time.Second {
		t.Fatalf("Timeout override: got %v, want 5s", c.Timeout)
	}
	if c.WarmUpDuration != 250*time.Millisecond {
		t.Fatalf("WarmUpDuration override: got %v, want 250ms", c.WarmUpDuration)
	}
}

func TestLoadStartupCalibrationBadValueFallsBack(t *testing.T) {
	clearStartupEnv(t)
	t.Setenv("ADA_STARTUP_TIMEOUT", "not-a-number")
	c := config.LoadStartupCalibration()
	if c.Timeout != 30*time.Second {
		t.Fatalf("Timeout on bad value: got %v, want fallback 30s", c.Timeout)
	}
}

// clearStartupEnv clears the ADA_STARTUP_* vars for the test's duration
// via t.Setenv so TestMain ordering/parallelism can't leak values
// between these cases.
func clearStartupEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"ADA_STARTUP_TIMEOUT",
		"ADA_STARTUP_WARM_UP_DURATION",
		"ADA_STARTUP_PER_SYMBOL_COST",
		"ADA_STARTUP_TIMEOUT_TOLERANCE",
	} {
		t.Setenv(name, "")
	}
}
