// Copyright 2026 Hayabusa Cloud Co., Ltd. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package marking implements the probe-matching policy described in
// spec §4.6 (component C6): literal or regex rules evaluated against a
// call-site probe, gated by an atomic enable flag.
package marking

import (
	"regexp"
	"strings"

	"code.hybscloud.com/atomix"
)

// Target names which probe field a Rule matches against.
type Target int

const (
	TargetSymbol Target = iota
	TargetMessage
)

// MatchKind selects literal or regex comparison.
type MatchKind int

const (
	MatchLiteral MatchKind = iota
	MatchRegex
)

// Rule is one entry of the marking policy (spec §4.6).
type Rule struct {
	Target        Target
	Match         MatchKind
	CaseSensitive bool
	Pattern       string
	Module        string // optional; empty means "any module"

	compiled *regexp.Regexp // set by compile(); nil means fall back to literal
}

// compile prepares r for repeated matching. A regex whose compilation
// fails degrades to literal matching rather than failing open to
// "match all" (spec §4.6).
func (r *Rule) compile() {
	if r.Match != MatchRegex {
		return
	}
	pattern := r.Pattern
	if !r.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		r.compiled = nil
		return
	}
	r.compiled = re
}

func (r *Rule) matches(value string) bool {
	if r.Match == MatchRegex && r.compiled != nil {
		return r.compiled.MatchString(value)
	}
	// Literal comparison, also the degraded path for an uncompilable regex.
	if r.CaseSensitive {
		return strings.Contains(value, r.Pattern)
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(r.Pattern))
}

// Probe is the call-site context a rule is evaluated against.
type Probe struct {
	SymbolName string
	ModuleName string
	Message    string
}

func (r *Rule) value(p Probe) string {
	switch r.Target {
	case TargetMessage:
		return p.Message
	default:
		return p.SymbolName
	}
}

// Policy is the thread-shared set of marking rules plus its enable flag.
// Rules are read-only after NewPolicy compiles them; only the enabled flag is mutated
// concurrently with Match calls.
type Policy struct {
	rules   []Rule
	enabled atomix.Bool
}

// NewPolicy compiles rules and returns a policy with matching enabled.
func NewPolicy(rules []Rule) *Policy {
	p := &Policy{rules: make([]Rule, len(rules))}
	copy(p.rules, rules)
	for i := range p.rules {
		p.rules[i].compile()
	}
	p.enabled.StoreRelease(true)
	return p
}

// Enable turns matching on.
func (p *Policy) Enable() { p.enabled.StoreRelease(true) }

// Disable turns matching off; Match then always returns false
// regardless of rules (spec §4.6).
func (p *Policy) Disable() { p.enabled.StoreRelease(false) }

// Enabled reports the current enable flag.
func (p *Policy) Enabled() bool { return p.enabled.LoadAcquire() }

// Match reports whether any rule matches the probe (spec §4.6).
func (p *Policy) Match(probe Probe) bool {
	if !p.enabled.LoadAcquire() {
		return false
	}
	for i := range p.rules {
		r := &p.rules[i]
		if r.Module != "" && r.Module != probe.ModuleName {
			continue
		}
		if r.matches(r.value(probe)) {
			return true
		}
	}
	return false
}
