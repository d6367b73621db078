// Package app provides the shared entry point for the larkbridge binary.
package app

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/flemzord/larkbridge/internal/config"
	"github.com/flemzord/larkbridge/internal/core"
	"github.com/flemzord/larkbridge/internal/security"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level
}

// Run loads configuration, starts all modules, and blocks until a shutdown
// signal is received.
func Run(params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	// Initialize credential store and redactor (security foundation).
	credStore := security.NewCredentialStore()
	redactor := security.NewRedactor()

	// Wrap the text handler in a redacting handler to prevent secret leakage in logs.
	innerHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: params.LogLevel,
	})
	logger := slog.New(security.NewRedactingHandler(innerHandler, redactor))

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	appCtx := core.NewAppContext(logger, dataDir)
	appCtx = appCtx.WithModuleConfigs(cfg.Modules)

	// Register security services for cross-module discovery.
	appCtx.RegisterService("security.credentials", credStore)
	appCtx.RegisterService("security.redactor", redactor)

	// Register the config path so modules can discover it.
	appCtx.RegisterService("config.path", cfgPath)

	application := core.NewApp(appCtx)
	moduleIDs := config.Resolve(cfg)
	ids := make([]string, len(moduleIDs))
	for i, id := range moduleIDs {
		ids[i] = string(id)
	}
	if err := application.LoadModules(ids); err != nil {
		return err
	}

	// Wire the bridge between LoadModules and Start: discover channels,
	// create the dispatcher and router, connect them to the gateway
	// session, and append the router to the app lifecycle.
	if err := wireBridge(application, appCtx, ids, cfg.Bridge, logger); err != nil {
		return err
	}

	if err := application.Start(); err != nil {
		return err
	}

	logger.Info("larkbridge started",
		"version", params.Version,
		"modules", len(ids),
	)

	// Sync the redactor with all credentials registered by modules during
	// Start, so runtime secrets are scrubbed from logs going forward.
	redactor.SyncCredentials(credStore)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	logger.Info("shutdown signal received", "signal", sig.String())
	application.Stop()
	logger.Info("shutdown complete")
	return nil
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/larkbridge/larkbridge.yaml →
// ~/.config/larkbridge/larkbridge.yaml → ./larkbridge.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "larkbridge", "larkbridge.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "larkbridge", "larkbridge.yaml"))
	}

	candidates = append(candidates, "larkbridge.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/larkbridge if set, otherwise ~/.local/share/larkbridge
// per the XDG spec.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "larkbridge")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "larkbridge")
}
