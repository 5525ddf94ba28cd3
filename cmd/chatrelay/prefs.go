package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mattjoyce/chatrelay/internal/backend"
	"github.com/mattjoyce/chatrelay/internal/log"
)

func runPrefsNoun(args []string) int {
	if len(args) < 1 {
		printPrefsNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printPrefsNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "get":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: chatrelay prefs get <user_id> [--config PATH]")
			return 0
		}
		return runPrefs(actionArgs, false)
	case "set":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: chatrelay prefs set <user_id> --language CODE [--config PATH]")
			fmt.Println("An empty --language clears the stored response language.")
			return 0
		}
		return runPrefs(actionArgs, true)
	default:
		fmt.Fprintf(os.Stderr, "Unknown prefs action: %s\n", action)
		return 1
	}
}

func printPrefsNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: chatrelay prefs <action> <user_id> [flags]")
	fmt.Fprintln(w, "Actions: get, set")
}

func runPrefs(args []string, update bool) int {
	fs := flag.NewFlagSet("prefs", flag.ContinueOnError)
	configPath, envFile := configFlags(fs)
	language := fs.String("language", "", "Response language code (set only)")
	if err := fs.Parse(reorderPositional(args)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		printPrefsNounHelp(os.Stderr)
		return 1
	}
	userID := fs.Arg(0)

	cfg, err := loadConfigForTool(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	backendCfg, err := backend.FromGlobalConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	client := backend.New(backendCfg, log.WithComponent("prefs"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var prefs *backend.Preferences
	if update {
		var p backend.Preferences
		if *language != "" {
			p.ResponseLanguage = language
		}
		prefs, err = client.UpdatePreferences(ctx, userID, p)
	} else {
		prefs, err = client.GetPreferences(ctx, userID)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	data, _ := json.MarshalIndent(prefs, "", "  ")
	fmt.Println(string(data))
	return 0
}
