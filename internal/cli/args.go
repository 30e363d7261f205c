// Argument parsing utilities shared by command handlers.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strconv"
	"strings"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// ArgParser provides structured access to a command's arguments.
// Long flags may appear as --flag value or --flag=value; a flag with
// no value is boolean. Everything else is positional, in order.
type ArgParser struct {
	args       []string
	flags      map[string]string
	boolFlags  map[string]bool
	positional []string
}

// NewArgParser creates a parser from raw arguments.
func NewArgParser(args []string) *ArgParser {
	p := &ArgParser{
		args:      args,
		flags:     make(map[string]string),
		boolFlags: make(map[string]bool),
	}
	p.parse()
	return p
}

func (p *ArgParser) parse() {
	for i := 0; i < len(p.args); i++ {
		arg := p.args[i]
		if !strings.HasPrefix(arg, "--") {
			p.positional = append(p.positional, arg)
			continue
		}

		name := strings.TrimPrefix(arg, "--")
		if idx := strings.Index(name, "="); idx >= 0 {
			value := name[idx+1:]
			name = name[:idx]
			// --flag=true and --flag=false are boolean, not string values.
			if value == "true" || value == "false" {
				p.boolFlags[name] = value == "true"
			} else {
				p.flags[name] = value
			}
			continue
		}

		if i+1 < len(p.args) && !strings.HasPrefix(p.args[i+1], "-") {
			p.flags[name] = p.args[i+1]
			i++
		} else {
			p.boolFlags[name] = true
		}
	}
}

// Flag returns the value of a string flag and whether it was set.
func (p *ArgParser) Flag(name string) (string, bool) {
	v, ok := p.flags[name]
	return v, ok
}

// FlagOrDefault returns the value of a string flag, or def when unset.
func (p *ArgParser) FlagOrDefault(name, def string) string {
	if v, ok := p.flags[name]; ok {
		return v
	}
	return def
}

// BoolFlag reports whether a boolean flag is set to true.
func (p *ArgParser) BoolFlag(name string) bool {
	return p.boolFlags[name]
}

// HasFlag reports whether a flag was given in either form.
func (p *ArgParser) HasFlag(name string) bool {
	if _, ok := p.flags[name]; ok {
		return true
	}
	_, ok := p.boolFlags[name]
	return ok
}

// Positional returns the i-th positional argument and whether it exists.
func (p *ArgParser) Positional(i int) (string, bool) {
	if i < 0 || i >= len(p.positional) {
		return "", false
	}
	return p.positional[i], true
}

// PositionalFrom returns all positional arguments starting at index i.
func (p *ArgParser) PositionalFrom(i int) []string {
	if i < 0 || i >= len(p.positional) {
		return nil
	}
	return p.positional[i:]
}

// PositionalCount returns the number of positional arguments.
func (p *ArgParser) PositionalCount() int {
	return len(p.positional)
}

// Raw returns the original argument slice.
func (p *ArgParser) Raw() []string {
	return p.args
}

// =============================================================================
// VALUE PARSING
// =============================================================================

// ParseChatID parses a chat ID argument into a row ID.
func ParseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id < 1 {
		return 0, NewValidationError("chat ID", s, "must be a positive integer")
	}
	return id, nil
}

// JoinPositionalArgs joins positional arguments into a single string.
// Lets users type multi-word titles without quoting.
func JoinPositionalArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
