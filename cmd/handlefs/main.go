//go:build linux

package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/handlefs/internal/logger"
	"github.com/marmos91/handlefs/pkg/config"
	"github.com/marmos91/handlefs/pkg/vfs"
	"github.com/marmos91/handlefs/pkg/vfs/local"
)

// reportMaxEntries caps the root listing done at startup
const reportMaxEntries = 1000

func main() {
	configPath := flag.String("config", "", fmt.Sprintf("Path to config file (default %s)", config.GetDefaultConfigPath()))
	exportPath := flag.String("export", "", "Directory to export (overrides export.path)")
	logLevel := flag.String("log-level", "", "Log level (DEBUG, INFO, WARN, ERROR), overrides logging.level")
	probe := flag.Bool("probe", false, "Open the export, print the report and exit")
	flag.Parse()

	// Flags are the highest-precedence source; route them through the
	// environment so config.Load validates the merged result.
	if *exportPath != "" {
		_ = os.Setenv("HANDLEFS_EXPORT_PATH", *exportPath)
	}
	if *logLevel != "" {
		_ = os.Setenv("HANDLEFS_LOGGING_LEVEL", *logLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("HandleFS - stable-handle local filesystem export")
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	m := config.InitializeMetrics(cfg)

	fs, err := local.New(cfg.LocalOptions(m.VFS))
	if err != nil {
		logger.Error("Failed to open export: %v", err)
		os.Exit(1)
	}

	if err := report(ctx, fs, cfg); err != nil {
		logger.Error("Export report failed: %v", err)
		closeExport(fs)
		os.Exit(1)
	}

	if *probe {
		closeExport(fs)
		return
	}

	serverDone := make(chan error, 1)
	if m.Server != nil {
		go func() {
			serverDone <- m.Server.Start(ctx)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Export %s is open. Press Ctrl+C to stop.", cfg.Export.Path)

	exitCode := 0
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
		cancel()

		if m.Server != nil {
			select {
			case err := <-serverDone:
				if err != nil {
					logger.Error("Metrics server shutdown error: %v", err)
					exitCode = 1
				}
			case <-time.After(cfg.Server.ShutdownTimeout):
				logger.Warn("Metrics server did not stop within %v", cfg.Server.ShutdownTimeout)
			}
		}

	case err := <-serverDone:
		if err != nil {
			logger.Error("Metrics server error: %v", err)
			exitCode = 1
		}
	}

	closeExport(fs)
	logger.Info("Export closed")
	os.Exit(exitCode)
}

// report logs the root handle and filesystem usage of the export.
func report(ctx context.Context, fs *local.FS, cfg *config.Config) error {
	root := fs.RootHandle()
	logger.Info("Export configuration:")
	logger.Info("  Path: %s", cfg.Export.Path)
	logger.Info("  Root handle: %s (%d bytes)", hex.EncodeToString(root), len(root))
	logger.Info("  Descriptor caches: data %d, traversal %d", cfg.Cache.DataDescriptors, cfg.Cache.TraversalDescriptors)
	logger.Info("  Dirent buffer: %s", cfg.IO.DirentBufferSize)
	if cfg.IO.CopyBandwidth > 0 {
		logger.Info("  Copy bandwidth: %s/s (%d concurrent)", cfg.IO.CopyBandwidth, cfg.IO.MaxConcurrentCopies)
	} else {
		logger.Info("  Copy bandwidth: unlimited (%d concurrent)", cfg.IO.MaxConcurrentCopies)
	}

	attr, err := fs.GetAttr(ctx, root)
	if err != nil {
		return fmt.Errorf("getattr root: %w", err)
	}
	logger.Info("  Root: mode %04o, owner %d:%d, modified %s",
		attr.Mode, attr.UID, attr.GID, attr.ModTime().Format(time.RFC3339))

	st, err := fs.StatFS(ctx)
	if err != nil {
		return fmt.Errorf("statfs: %w", err)
	}
	logger.Info("  Space: %s used of %s, %s available",
		humanize.IBytes(st.UsedBytes()), humanize.IBytes(st.TotalBytes), humanize.IBytes(st.AvailBytes))
	logger.Info("  Files: %s used of %s",
		humanize.Comma(int64(st.UsedFiles())), humanize.Comma(int64(st.TotalFiles)))

	page, err := fs.ReadDir(ctx, root, 0, reportMaxEntries, false)
	if err != nil {
		return fmt.Errorf("readdir root: %w", err)
	}
	more := ""
	if !page.EOF {
		more = "+"
	}
	logger.Info("  Root entries: %d%s", len(page.Entries), more)
	return nil
}

func closeExport(fs vfs.FileSystem) {
	if err := fs.Close(); err != nil {
		logger.Error("Failed to close export: %v", err)
	}
}
