package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattjoyce/chatrelay/internal/config"
	"github.com/mattjoyce/chatrelay/internal/log"
)

const version = "0.1.0"

const (
	defaultConfigPath = "config.yaml"
	defaultEnvFile    = ".env"
	configPathEnv     = "CHATRELAY_CONFIG"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "start":
		os.Exit(runStart(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "prefs":
		os.Exit(runPrefsNoun(args))
	case "version":
		fmt.Printf("chatrelay version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`chatrelay - WhatsApp webhook relay for an asynchronous chat engine

Usage:
  chatrelay <command> [flags]

Commands:
  start                 Start the gateway in the foreground
  config check          Validate configuration and integrity
  config lock           Record the config file hash in .checksums
  config get <path>     Read one resolved value (secrets redacted)
  prefs get <user>      Show a user's engine preferences
  prefs set <user>      Update a user's engine preferences
  version               Show version information
  help                  Show this help message

Common flags:
  --config PATH         Config file or directory (default: $CHATRELAY_CONFIG or config.yaml)
  --env-file PATH       Dotenv file loaded before the config (default: .env)
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

// configFlags registers the flags every config-reading command shares.
func configFlags(fs *flag.FlagSet) (configPath, envFile *string) {
	def := os.Getenv(configPathEnv)
	if def == "" {
		def = defaultConfigPath
	}
	configPath = fs.String("config", def, "Path to configuration file or directory")
	envFile = fs.String("env-file", defaultEnvFile, "Dotenv file loaded before the configuration")
	return configPath, envFile
}

func loadConfigForTool(configPath, envFile string) (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	return config.Load(configPath)
}

func runStart(args []string) int {
	if hasHelpFlag(args) {
		fmt.Println("Usage: chatrelay start [--config PATH] [--env-file PATH]")
		fmt.Println("Start the gateway service in the foreground.")
		return 0
	}

	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath, envFile := configFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfigForTool(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	log.SetPseudonymSecret(cfg.Service.LogPseudonymSecret)
	logger := log.WithComponent("main")
	logger.Info("chatrelay starting", "version", version, "config", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer a.close()

	if err := a.run(ctx); err != nil {
		logger.Error("chatrelay stopped with error", "error", err)
		return 1
	}

	logger.Info("chatrelay stopped")
	return 0
}
