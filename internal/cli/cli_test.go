// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/attach"
	"github.com/jeranaias/parley/internal/session"
	"github.com/jeranaias/parley/internal/store"
)

// =============================================================================
// COMMAND PARSING TESTS
// =============================================================================

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCmd  Command
		validate func(t *testing.T, args Args)
	}{
		{
			name:    "no args defaults to chat",
			args:    []string{},
			wantCmd: CmdChat,
		},
		{
			name:    "explicit chat command",
			args:    []string{"chat"},
			wantCmd: CmdChat,
		},
		{
			name:    "chat alias",
			args:    []string{"c"},
			wantCmd: CmdChat,
		},
		{
			name:    "chat with resume flag",
			args:    []string{"chat", "--chat", "12"},
			wantCmd: CmdChat,
			validate: func(t *testing.T, args Args) {
				if args.Chat != "12" {
					t.Errorf("Expected Chat '12', got %q", args.Chat)
				}
			},
		},
		{
			name:    "implicit chat from leading flag",
			args:    []string{"--chat", "3"},
			wantCmd: CmdChat,
			validate: func(t *testing.T, args Args) {
				if args.Chat != "3" {
					t.Errorf("Expected Chat '3', got %q", args.Chat)
				}
			},
		},
		{
			name:    "list command",
			args:    []string{"list"},
			wantCmd: CmdList,
		},
		{
			name:    "list alias",
			args:    []string{"ls"},
			wantCmd: CmdList,
		},
		{
			name:    "commands are case insensitive",
			args:    []string{"LIST"},
			wantCmd: CmdList,
		},
		{
			name:    "new with title words",
			args:    []string{"new", "api", "design"},
			wantCmd: CmdNew,
			validate: func(t *testing.T, args Args) {
				if got := strings.Join(args.Raw, " "); got != "api design" {
					t.Errorf("Expected raw title args 'api design', got %q", got)
				}
			},
		},
		{
			name:    "rename keeps raw args",
			args:    []string{"rename", "3", "new", "title"},
			wantCmd: CmdRename,
			validate: func(t *testing.T, args Args) {
				if len(args.Raw) != 3 {
					t.Errorf("Expected 3 raw args, got %d: %v", len(args.Raw), args.Raw)
				}
			},
		},
		{
			name:    "delete command",
			args:    []string{"delete", "7"},
			wantCmd: CmdDelete,
		},
		{
			name:    "delete alias rm",
			args:    []string{"rm", "7"},
			wantCmd: CmdDelete,
		},
		{
			name:    "setup command",
			args:    []string{"setup"},
			wantCmd: CmdSetup,
		},
		{
			name:    "version command",
			args:    []string{"version"},
			wantCmd: CmdVersion,
		},
		{
			name:    "version flag short",
			args:    []string{"-v"},
			wantCmd: CmdVersion,
		},
		{
			name:    "version flag long",
			args:    []string{"--version"},
			wantCmd: CmdVersion,
		},
		{
			name:    "help command",
			args:    []string{"help"},
			wantCmd: CmdHelp,
		},
		{
			name:    "help flag",
			args:    []string{"-h"},
			wantCmd: CmdHelp,
		},
		{
			name:    "quiet global flag",
			args:    []string{"-q", "list"},
			wantCmd: CmdList,
			validate: func(t *testing.T, args Args) {
				if !args.Quiet {
					t.Error("Expected Quiet to be set")
				}
			},
		},
		{
			name:    "verbose global flag after command",
			args:    []string{"chat", "--verbose"},
			wantCmd: CmdChat,
			validate: func(t *testing.T, args Args) {
				if !args.Verbose {
					t.Error("Expected Verbose to be set")
				}
			},
		},
		{
			name:    "unknown command",
			args:    []string{"frobnicate"},
			wantCmd: CmdUnknown,
			validate: func(t *testing.T, args Args) {
				if len(args.Raw) == 0 || args.Raw[0] != "frobnicate" {
					t.Errorf("Expected raw args to start with the unknown word, got %v", args.Raw)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := parseArgs(tt.args)
			if cmd != tt.wantCmd {
				t.Errorf("Expected command %d, got %d", tt.wantCmd, cmd)
			}
			if tt.validate != nil {
				tt.validate(t, args)
			}
		})
	}
}

func TestParse_UsesOSArgs(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"parley", "list"}
	cmd, _ := Parse()
	if cmd != CmdList {
		t.Errorf("Expected CmdList from os.Args, got %d", cmd)
	}

	os.Args = []string{"parley", "chat", "--chat", "42"}
	cmd, args := Parse()
	if cmd != CmdChat {
		t.Errorf("Expected CmdChat from os.Args, got %d", cmd)
	}
	if args.Chat != "42" {
		t.Errorf("Expected Chat '42', got %q", args.Chat)
	}
}

// =============================================================================
// ARG PARSER TESTS
// =============================================================================

func TestArgParser(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		validate func(t *testing.T, p *ArgParser)
	}{
		{
			name: "flag with separate value",
			args: []string{"--chat", "12"},
			validate: func(t *testing.T, p *ArgParser) {
				v, ok := p.Flag("chat")
				if !ok || v != "12" {
					t.Errorf("Expected chat flag '12', got %q (ok=%v)", v, ok)
				}
			},
		},
		{
			name: "flag with equals value",
			args: []string{"--chat=12"},
			validate: func(t *testing.T, p *ArgParser) {
				v, ok := p.Flag("chat")
				if !ok || v != "12" {
					t.Errorf("Expected chat flag '12', got %q (ok=%v)", v, ok)
				}
			},
		},
		{
			name: "bare flag is boolean",
			args: []string{"--confirm"},
			validate: func(t *testing.T, p *ArgParser) {
				if !p.BoolFlag("confirm") {
					t.Error("Expected confirm to be true")
				}
			},
		},
		{
			name: "equals true is boolean",
			args: []string{"--confirm=true"},
			validate: func(t *testing.T, p *ArgParser) {
				if !p.BoolFlag("confirm") {
					t.Error("Expected confirm=true to parse as boolean")
				}
				if _, ok := p.Flag("confirm"); ok {
					t.Error("Expected confirm to be absent from string flags")
				}
			},
		},
		{
			name: "equals false is boolean false",
			args: []string{"--confirm=false"},
			validate: func(t *testing.T, p *ArgParser) {
				if p.BoolFlag("confirm") {
					t.Error("Expected confirm=false to be false")
				}
				if !p.HasFlag("confirm") {
					t.Error("Expected confirm to still be present")
				}
			},
		},
		{
			name: "flag before another flag is boolean",
			args: []string{"--confirm", "--chat", "3"},
			validate: func(t *testing.T, p *ArgParser) {
				if !p.BoolFlag("confirm") {
					t.Error("Expected confirm to be boolean when followed by a flag")
				}
				if v, _ := p.Flag("chat"); v != "3" {
					t.Errorf("Expected chat '3', got %q", v)
				}
			},
		},
		{
			name: "positionals interleaved with flags",
			args: []string{"7", "--confirm=true", "extra"},
			validate: func(t *testing.T, p *ArgParser) {
				if p.PositionalCount() != 2 {
					t.Fatalf("Expected 2 positionals, got %d", p.PositionalCount())
				}
				first, _ := p.Positional(0)
				if first != "7" {
					t.Errorf("Expected first positional '7', got %q", first)
				}
				if !p.BoolFlag("confirm") {
					t.Error("Expected confirm to be boolean")
				}
			},
		},
		{
			name: "bare flag before a positional captures it as value",
			args: []string{"--confirm", "extra"},
			validate: func(t *testing.T, p *ArgParser) {
				// Without a declared schema the parser cannot tell a bool
				// flag from one awaiting its value; commands document
				// flag-last usage for this reason.
				if v, ok := p.Flag("confirm"); !ok || v != "extra" {
					t.Errorf("Expected confirm to capture 'extra', got %q (ok=%v)", v, ok)
				}
			},
		},
		{
			name: "positional from index",
			args: []string{"3", "multi", "word", "title"},
			validate: func(t *testing.T, p *ArgParser) {
				rest := p.PositionalFrom(1)
				if got := strings.Join(rest, " "); got != "multi word title" {
					t.Errorf("Expected 'multi word title', got %q", got)
				}
				if p.PositionalFrom(10) != nil {
					t.Error("Expected nil for out-of-range start index")
				}
			},
		},
		{
			name: "flag or default",
			args: []string{},
			validate: func(t *testing.T, p *ArgParser) {
				if got := p.FlagOrDefault("chat", "none"); got != "none" {
					t.Errorf("Expected default 'none', got %q", got)
				}
			},
		},
		{
			name: "positional out of range",
			args: []string{"one"},
			validate: func(t *testing.T, p *ArgParser) {
				if _, ok := p.Positional(5); ok {
					t.Error("Expected out-of-range positional to report !ok")
				}
				if _, ok := p.Positional(-1); ok {
					t.Error("Expected negative index to report !ok")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validate(t, NewArgParser(tt.args))
		})
	}
}

func TestParseChatID(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"12", 12, false},
		{" 7 ", 7, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
		{"", 0, true},
		{"12.5", 0, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("input %q", tt.input), func(t *testing.T) {
			got, err := ParseChatID(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q, got id %d", tt.input, got)
				}
				var valErr *ValidationError
				if err != nil && !errors.As(err, &valErr) {
					t.Errorf("Expected ValidationError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error for %q: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestJoinPositionalArgs(t *testing.T) {
	if got := JoinPositionalArgs([]string{"kernel", "notes"}); got != "kernel notes" {
		t.Errorf("Expected 'kernel notes', got %q", got)
	}
	if got := JoinPositionalArgs(nil); got != "" {
		t.Errorf("Expected empty string for nil args, got %q", got)
	}
}

// =============================================================================
// EXIT CODE TESTS
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil error", nil, ExitSuccess},
		{"validation error", NewValidationError("chat ID", "abc", "must be a positive integer"), ExitUsage},
		{"not found error", NewNotFoundError("chat", "9"), ExitNotFound},
		{"command error carries its code", NewCommandError("chat", errors.New("boom"), ExitConfig), ExitConfig},
		{"tty required", &TTYRequiredError{Command: "setup"}, ExitUsage},
		{"store chat not found", store.ErrChatNotFound, ExitNotFound},
		{"wrapped store error", fmt.Errorf("delete: %w", store.ErrChatNotFound), ExitNotFound},
		{"auth failure", api.ErrAuthFailed, ExitAuth},
		{"not configured", api.ErrNotConfigured, ExitAuth},
		{"rate limited", &api.RateLimitError{RetryAfter: time.Second}, ExitRateLimited},
		{"model not found", api.ErrModelNotFound, ExitNotFound},
		{"canceled", context.Canceled, ExitCanceled},
		{"busy", session.ErrBusy, ExitGeneral},
		{"plain error", errors.New("mystery"), ExitGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.want {
				t.Errorf("Expected exit code %d, got %d", tt.want, got)
			}
		})
	}
}

func TestStructuredErrorMessages(t *testing.T) {
	valErr := NewValidationError("chat ID", "abc", "must be a positive integer")
	if msg := valErr.Error(); !strings.Contains(msg, "chat ID") || !strings.Contains(msg, "abc") {
		t.Errorf("ValidationError message missing context: %q", msg)
	}

	nfErr := NewNotFoundError("chat", "42")
	if msg := nfErr.Error(); msg != "chat not found: 42" {
		t.Errorf("Unexpected NotFoundError message: %q", msg)
	}

	cmdErr := NewCommandError("list", errors.New("db locked"), ExitGeneral)
	if msg := cmdErr.Error(); !strings.Contains(msg, "list") || !strings.Contains(msg, "db locked") {
		t.Errorf("CommandError message missing context: %q", msg)
	}
	if !errors.Is(cmdErr, cmdErr.Err) {
		t.Error("Expected CommandError to unwrap to its cause")
	}
}

// =============================================================================
// TURN ERROR FORMATTING TESTS
// =============================================================================

func TestFormatTurnError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"auth points at setup", api.ErrAuthFailed, "parley setup"},
		{"rate limit includes retry delay", &api.RateLimitError{RetryAfter: 30 * time.Second}, "30s"},
		{"rate limit without delay", api.ErrRateLimited, "Wait a moment"},
		{"unsupported attachment lists accepted types", attach.ErrUnsupportedType, "PDFs"},
		{"oversized attachment names the config key", attach.ErrTooLarge, "max_attachment_mb"},
		{"canceled is quiet", context.Canceled, "Canceled."},
		{"model not found", api.ErrModelNotFound, "model name"},
		{"busy mentions the stream", session.ErrBusy, "already streaming"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatTurnError(tt.err)
			if !strings.Contains(got, tt.want) {
				t.Errorf("Expected message to contain %q, got %q", tt.want, got)
			}
		})
	}
}

// =============================================================================
// TERMINAL HELPERS TESTS
// =============================================================================

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  string
	}{
		{
			name:  "wraps at word boundary",
			text:  "the quick brown fox jumps",
			width: 10,
			want:  "the quick\nbrown fox\njumps",
		},
		{
			name:  "short text unchanged",
			text:  "hello",
			width: 40,
			want:  "hello",
		},
		{
			name:  "long word kept intact",
			text:  "see supercalifragilistic now",
			width: 8,
			want:  "see\nsupercalifragilistic\nnow",
		},
		{
			name:  "existing newlines preserved",
			text:  "one two\nthree four",
			width: 40,
			want:  "one two\nthree four",
		},
		{
			name:  "zero width passes through",
			text:  "anything at all",
			width: 0,
			want:  "anything at all",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WrapText(tt.text, tt.width); got != tt.want {
				t.Errorf("WrapText(%q, %d)\n  got:  %q\n  want: %q", tt.text, tt.width, got, tt.want)
			}
		})
	}
}

func TestMaskKey(t *testing.T) {
	if got := maskKey("AIzaSyExampleExampleKey0"); got != "AIza...Key0" {
		t.Errorf("Expected 'AIza...Key0', got %q", got)
	}
	if got := maskKey("short"); got != "****" {
		t.Errorf("Expected short keys fully masked, got %q", got)
	}
}

// =============================================================================
// BENCHMARKS
// =============================================================================

func BenchmarkParseArgs(b *testing.B) {
	args := []string{"chat", "--chat", "12", "--verbose"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		parseArgs(args)
	}
}

func BenchmarkArgParser(b *testing.B) {
	args := []string{"--chat", "12", "--confirm", "title", "words", "here"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NewArgParser(args)
	}
}
