package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"chunkplan/internal/project"
)

// loadConfig reads --config or searches upwards from the working directory.
func loadConfig(cmd *cobra.Command, logger *log.Logger) (project.Config, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return project.Config{}, err
	}
	if path != "" {
		return project.LoadConfig(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return project.Config{}, err
	}
	cfg, ok, err := project.Load(wd)
	if err != nil {
		return project.Config{}, err
	}
	if !ok {
		logger.Debug("no "+project.ConfigFileName+" found, using defaults", "dir", wd)
	} else {
		logger.Debug("loaded config", "path", cfg.Path)
	}
	return cfg, nil
}

// newLogger builds the stderr logger from --log-level.
func newLogger(cmd *cobra.Command) (*log.Logger, error) {
	levelStr, err := cmd.Root().PersistentFlags().GetString("log-level")
	if err != nil {
		return nil, err
	}
	level, err := log.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelStr, err)
	}
	return log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
		Prefix: "chunkplan",
		Level:  level,
	}), nil
}

// useColor resolves --color against the terminal state of stdout.
func useColor(cmd *cobra.Command) (bool, error) {
	colorFlag, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return false, err
	}
	switch colorFlag {
	case "on":
		color.NoColor = false
		return true, nil
	case "off":
		color.NoColor = true
		return false, nil
	case "auto":
		on := isTerminal(os.Stdout)
		color.NoColor = !on
		return on, nil
	default:
		return false, fmt.Errorf("invalid --color %q (expected: auto|on|off)", colorFlag)
	}
}
