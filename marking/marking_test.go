// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package marking_test

import (
	"testing"

	"code.hybscloud.com/adatrace/marking"
)

func TestLiteralMatch(t *testing.T) {
	p := marking.NewPolicy([]marking.Rule{
		{Target: marking.TargetSymbol, Match: marking.MatchLiteral, Pattern: "panic"},
	})
	if !p.Match(marking.Probe{SymbolName: "runtime.gopanic"}) {
		t.Fatal("want literal substring match on SymbolName")
	}
	if p.Match(marking.Probe{SymbolName: "runtime.gc"}) {
		t.Fatal("want no match for unrelated symbol")
	}
}

func TestLiteralMatchCaseInsensitiveByDefault(t *testing.T) {
	p := marking.NewPolicy([]marking.Rule{
		{Target: marking.TargetSymbol, Match: marking.MatchLiteral, Pattern: "PANIC"},
	})
	if !p.Match(marking.Probe{SymbolName: "gopanic"}) {
		t.Fatal("want case-insensitive literal match")
	}
}

func TestRegexMatch(t *testing.T) {
	p := marking.NewPolicy([]marking.Rule{
		{Target: marking.TargetMessage, Match: marking.MatchRegex, Pattern: `^fatal: .+`},
	})
	if !p.Match(marking.Probe{Message: "fatal: out of memory"}) {
		t.Fatal("want regex match")
	}
	if p.Match(marking.Probe{Message: "info: ok"}) {
		t.Fatal("want no regex match")
	}
}

func TestRegexCompileFailureDegradesToLiteral(t *testing.T) {
	p := marking.NewPolicy([]marking.Rule{
		{Target: marking.TargetMessage, Match: marking.MatchRegex, Pattern: "[unterminated"},
	})
	// An uncompilable pattern must never fail open to match-all; it
	// degrades to a literal substring check on the same raw pattern text.
	if p.Match(marking.Probe{Message: "anything at all"}) {
		t.Fatal("degraded literal match must not match unrelated text")
	}
	if !p.Match(marking.Probe{Message: "contains [unterminated here"}) {
		t.Fatal("degraded literal match should still match the literal pattern text")
	}
}

func TestModuleFilter(t *testing.T) {
	p := marking.NewPolicy([]marking.Rule{
		{Target: marking.TargetSymbol, Match: marking.MatchLiteral, Pattern: "foo", Module: "mymodule"},
	})
	if p.Match(marking.Probe{SymbolName: "foo", ModuleName: "othermodule"}) {
		t.Fatal("want no match when ModuleName disagrees with Rule.Module")
	}
	if !p.Match(marking.Probe{SymbolName: "foo", ModuleName: "mymodule"}) {
		t.Fatal("want match when ModuleName agrees with Rule.Module")
	}
}

func TestEnabledGating(t *testing.T) {
	p := marking.NewPolicy([]marking.Rule{
		{Target: marking.TargetSymbol, Match: marking.MatchLiteral, Pattern: "foo"},
	})
	if !p.Enabled() {
		t.Fatal("NewPolicy should start enabled")
	}
	p.Disable()
	if p.Match(marking.Probe{SymbolName: "foo"}) {
		t.Fatal("Match must return false while disabled, even on a matching rule")
	}
	p.Enable()
	if !p.Match(marking.Probe{SymbolName: "foo"}) {
		t.Fatal("Match should resume matching once re-enabled")
	}
}
