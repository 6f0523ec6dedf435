// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"errors"
	"strings"
)

// PatternMatcher matches audit record types against subscription patterns.
type PatternMatcher struct{}

// NewPatternMatcher creates a new pattern matcher.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{}
}

// Match reports whether recordType satisfies pattern. Patterns support
// wildcards: "instance.*" matches "instance.spawn", "*.error" matches
// "message.error", and "*" matches everything.
func (pm *PatternMatcher) Match(recordType, pattern string) bool {
	if pattern == "" || recordType == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if pattern == recordType {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		return strings.HasPrefix(recordType, prefix+".")
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := strings.TrimPrefix(pattern, "*.")
		return strings.HasSuffix(recordType, "."+suffix)
	}
	return false
}

// Compile pre-compiles a pattern for repeated matching.
func (pm *PatternMatcher) Compile(pattern string) (CompiledPattern, error) {
	if pattern == "" {
		return nil, errors.New("empty pattern")
	}
	return &compiledPattern{pattern: pattern, matcher: pm}, nil
}

// CompiledPattern is a pre-compiled pattern.
type CompiledPattern interface {
	Match(recordType string) bool
}

type compiledPattern struct {
	pattern string
	matcher *PatternMatcher
}

func (cp *compiledPattern) Match(recordType string) bool {
	return cp.matcher.Match(recordType, cp.pattern)
}
