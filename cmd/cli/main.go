package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fsindex/internal/config"
	"fsindex/internal/fscache"
	"fsindex/internal/logging"
	"fsindex/internal/volume"
)

// Set at build time with -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	cacheDir   string
	logLevel   string
	roots      []string
	workers    int
)

// formatSize formats file size in human-readable form
func formatSize(size uint64) string {
	switch {
	case size >= 1024*1024*1024*1024:
		return fmt.Sprintf("%.2f TB", float64(size)/(1024*1024*1024*1024))
	case size >= 1024*1024*1024:
		return fmt.Sprintf("%.2f GB", float64(size)/(1024*1024*1024))
	case size >= 1024*1024:
		return fmt.Sprintf("%.2f MB", float64(size)/(1024*1024))
	case size >= 1024:
		return fmt.Sprintf("%.2f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d B", size)
	}
}

// openFileLocation opens file location in explorer
func openFileLocation(path string) error {
	path = filepath.Clean(path)
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmdPath := os.Getenv("COMSPEC")
		if cmdPath == "" {
			cmdPath = `C:\Windows\System32\cmd.exe`
		}
		cmd = exec.Command(cmdPath, "/c", "explorer", "/select,", path)
	case "darwin":
		cmd = exec.Command("open", "-R", path)
	default:
		cmd = exec.Command("xdg-open", filepath.Dir(path))
	}

	return cmd.Run()
}

// setup loads the configuration, applies command-line overrides and builds
// the logger.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("cache-dir") {
		cfg.CacheDir = cacheDir
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("roots") {
		cfg.Roots = roots
	}
	if flags.Changed("workers") && workers > 0 {
		cfg.Workers = workers
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newEnumerator(cfg *config.Config, state *fscache.State, logger *zap.Logger, progress func(int)) *volume.Enumerator {
	return volume.NewEnumerator(state, fscache.NewVolumeStore(cfg.VolumeSnapshotPath()), volume.Options{
		Roots:         cfg.Roots,
		Workers:       cfg.Workers,
		FlushDelay:    cfg.FlushDelay,
		FlushInterval: cfg.FlushInterval,
		IndexInterval: cfg.IndexInterval,
		Progress:      progress,
	}, logger)
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "fsindex",
		Short: "Indexed fuzzy file search across volumes",
		Long: `fsindex keeps an in-memory index of every file and folder on the
mounted volumes, persists it between runs and keeps it current from
filesystem notifications.
Example: fsindex search "quarterly report.pdf"`,
		Version:       fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	pf.StringVar(&cacheDir, "cache-dir", "", "Directory holding the snapshots")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringSliceVarP(&roots, "roots", "r", nil, "Index these directories instead of the OS volumes")
	pf.IntVarP(&workers, "workers", "w", 0, "Number of scan workers (default: number of CPU cores)")

	rootCmd.AddCommand(
		volumesCmd(),
		indexCmd(),
		searchCmd(),
		serveCmd(),
		tagsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
