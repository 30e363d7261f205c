// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/config"
)

// =============================================================================
// SETUP WIZARD
// =============================================================================

// connectionTestTimeout bounds the optional end-of-wizard API probe.
const connectionTestTimeout = 15 * time.Second

// HandleSetup runs the setup wizard and exits.
func HandleSetup(args Args) {
	err := HandleSetupCommand(args)
	if err != nil {
		DisplayError(err)
	}
	os.Exit(GetExitCode(err))
}

// HandleSetupCommand walks through endpoint, key, and model configuration
// and writes the result to the user config file.
func HandleSetupCommand(args Args) error {
	if err := RequiresTTY("setup"); err != nil {
		return err
	}

	printSetupHeader()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (starting from defaults)\n", err)
		cfg = config.Default()
	}

	// Step 1: API key
	printStep(1, "API Key")
	fmt.Println("Gemini keys come from https://aistudio.google.com/apikey.")
	fmt.Println("Any OpenAI-compatible endpoint's key works here.")
	if cfg.APIKey != "" {
		fmt.Printf("A key is already configured (%s). Press Enter to keep it.\n", maskKey(cfg.APIKey))
	}
	key, err := promptSecure("API key (input hidden): ")
	if err != nil {
		return NewCommandError("setup", err, ExitGeneral)
	}
	if key != "" {
		cfg.APIKey = key
	}
	if cfg.APIKey == "" {
		fmt.Println(WarningStyle.Render("No API key set. Requests will fail until one is configured."))
	}

	// Step 2: Model
	printStep(2, "Model")
	cfg.Model = promptInputWithDefault("Model", cfg.Model)

	// Step 3: Endpoint
	printStep(3, "Endpoint")
	fmt.Println("The base URL of an OpenAI-compatible chat completions API.")
	cfg.BaseURL = promptInputWithDefault("Base URL", cfg.BaseURL)

	if err := cfg.Validate(); err != nil {
		return NewCommandError("setup", err, ExitConfig)
	}

	fmt.Println()
	if cfg.APIKey != "" && promptYesNo("Test the connection now?", true) {
		testConnection(cfg)
	}

	if err := config.Save(cfg); err != nil {
		return NewCommandError("setup", err, ExitConfig)
	}
	config.SetGlobal(cfg)

	path, _ := config.ConfigPath()
	fmt.Println()
	fmt.Println(RenderStatus(true, "Configuration saved to "+path))
	fmt.Println("Run 'parley' to start chatting.")
	return nil
}

// testConnection sends a one-shot request to verify the endpoint and key.
// Failures are reported but never abort the wizard; the settings still save.
func testConnection(cfg *config.Config) {
	client := api.NewClient(cfg.APIKey).
		WithBaseURL(cfg.BaseURL).
		WithModel(cfg.Model)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTestTimeout)
	defer cancel()

	fmt.Print("Testing connection... ")
	resp, err := client.Chat(ctx, []api.ChatMessage{api.NewUserMessage("Reply with OK.")})
	if err != nil {
		fmt.Println(RenderStatus(false, FormatTurnError(err)))
		fmt.Println(DimStyle.Render("Settings save anyway; fix the key or endpoint and re-run 'parley setup'."))
		return
	}

	reply := strings.TrimSpace(resp.GetContent())
	if reply == "" {
		reply = "(empty response)"
	}
	fmt.Println(RenderStatus(true, "model responded: "+firstLine(reply)))
}

// firstLine returns the first line of a possibly multi-line reply.
func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// maskKey shows enough of a key to recognize it without exposing it.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// =============================================================================
// WIZARD OUTPUT
// =============================================================================

func printSetupHeader() {
	title := "parley Setup Wizard"
	fmt.Println()
	fmt.Println(TitleStyle.Render(title))
	fmt.Println(SeparatorStyle.Render(strings.Repeat("=", len(title))))
	fmt.Println()
	fmt.Println("This wizard configures the endpoint, API key, and model.")
	fmt.Println("Settings are saved to your user config directory.")
}

func printStep(n int, title string) {
	heading := fmt.Sprintf("Step %d: %s", n, title)
	fmt.Println()
	fmt.Println(LabelStyle.Render(heading))
	fmt.Println(SeparatorStyle.Render(strings.Repeat("-", len(heading))))
}

// =============================================================================
// INPUT HELPERS
// =============================================================================

// Shared stdin reader. Prompts must go through one buffered reader or
// buffered bytes from a previous prompt get lost.
var (
	inputReader *bufio.Reader
	inputMutex  sync.Mutex
)

func getInputReader() *bufio.Reader {
	inputMutex.Lock()
	defer inputMutex.Unlock()
	if inputReader == nil {
		inputReader = bufio.NewReader(os.Stdin)
	}
	return inputReader
}

// promptInput reads one line of input after printing a prompt.
func promptInput(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := getInputReader().ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptInputWithDefault reads a line, returning def on empty input.
func promptInputWithDefault(prompt, def string) string {
	line, err := promptInput(fmt.Sprintf("%s [%s]: ", prompt, def))
	if err != nil || line == "" {
		return def
	}
	return line
}

// promptSecure reads input with terminal echo disabled.
func promptSecure(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// promptYesNo asks a yes/no question; empty input takes the default.
func promptYesNo(prompt string, defaultYes bool) bool {
	suffix := "[Y/n]"
	if !defaultYes {
		suffix = "[y/N]"
	}
	line, err := promptInput(fmt.Sprintf("%s %s: ", prompt, suffix))
	if err != nil || line == "" {
		return defaultYes
	}
	answer := strings.ToLower(line)
	return answer == "y" || answer == "yes"
}
