package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"trade-journal/internal/cli"
	"trade-journal/internal/config"
	"trade-journal/internal/logging"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(configDirFromArgs(os.Args[1:]))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLoggerWithConfig(logging.FromConfig(cfg.Logging))

	if err := cli.NewRootCmd(cfg, logger).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configDirFromArgs finds --config before cobra parses flags, since the
// config has to be loaded to build the command tree.
func configDirFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	if dir := os.Getenv("JOURNAL_CONFIG_DIR"); dir != "" {
		return dir
	}
	return ""
}
