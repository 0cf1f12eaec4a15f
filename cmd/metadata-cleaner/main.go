package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"metadata-cleaner/internal/batch"
	"metadata-cleaner/internal/config"
	"metadata-cleaner/internal/inspect"
	"metadata-cleaner/internal/logger"
	"metadata-cleaner/internal/naming"
	"metadata-cleaner/internal/stripper"
	"metadata-cleaner/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	outputDir  string
	overwrite  bool
	workers    int
	backend    string
	jsonOutput bool
	verbose    bool
	quiet      bool
	port       int
)

// errPartialFailure marks a batch that ran but had at least one failed file.
var errPartialFailure = errors.New("one or more files could not be cleaned")

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "metadata-cleaner [paths...]",
	Short: "Strip metadata from files in batch",
	Long: `metadata-cleaner removes embedded metadata (EXIF, XMP, IPTC and similar)
from files without touching the originals unless asked to.

By default every cleaned file is written under a "cleaned" folder next to its
source with a freshly generated name. Use --out to collect everything in one
directory, or --overwrite to strip in place and rename the original.

Directory arguments are expanded recursively using the configured extensions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClean(cmd, args)
	},
}

// serveCmd starts the web collaborator surface.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP/WebSocket interface",
	Long: `Starts an HTTP server that accepts batches on POST /api/process and
streams per-file progress to WebSocket clients on /ws.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

// inspectCmd prints the EXIF tags found in a file.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show EXIF tags found in a file",
	Long: `Decodes and lists the EXIF tags of a single file. Useful for checking
a cleaned file by hand.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "stripping backend: exiftool or reencode")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 1, "number of files processed concurrently")

	rootCmd.Flags().StringVar(&outputDir, "out", "", "write all cleaned files to this directory")
	rootCmd.Flags().BoolVar(&overwrite, "overwrite", false, "strip originals in place and rename them")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	serveCmd.Flags().IntVar(&port, "port", 0, "port to run web server on (default from config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
}

// runClean runs one batch over the given paths and reports the outcomes.
func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)

	paths, err := collectInputs(args, cfg)
	if err != nil {
		return err
	}

	proc, closeBackend, err := buildProcessor(cfg, log)
	if err != nil {
		return err
	}
	defer closeBackend()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := batch.Options{OutputDir: cfg.OutputDirectory, Overwrite: cfg.Overwrite}
	result, err := proc.Run(ctx, paths, opts, func(p batch.Progress) {
		if !quiet {
			fmt.Fprintf(os.Stderr, "(%d/%d) Cleaning: %s\n", p.Index, p.Total, p.File)
		}
	})
	if err != nil {
		if jsonOutput {
			printJSON(web.ProcessResponse{Error: err.Error()})
		}
		return err
	}

	if jsonOutput {
		snap := result.Stats.Snapshot()
		printJSON(web.ProcessResponse{OK: true, Results: result.Outcomes(), Statistics: &snap})
	} else {
		printOutcomes(result)
		if !quiet {
			fmt.Println("\n" + result.Stats.GetSummary())
		}
	}

	if result.Failed() > 0 {
		return errPartialFailure
	}
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	log := setupLogger(cfg)
	proc, closeBackend, err := buildProcessor(cfg, log)
	if err != nil {
		return err
	}
	defer closeBackend()

	server := web.NewServer(cfg, log, proc)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(port); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	fmt.Printf("metadata-cleaner listening on http://localhost:%d (backend: %s)\n", port, cfg.Stripper.Backend)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed to start: %w", err)
	case <-sigChan:
	}
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped gracefully")
	return nil
}

// runInspect prints the EXIF report for one file.
func runInspect(filePath string) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	report, err := inspect.Inspect(filePath)
	if err != nil {
		return err
	}
	fmt.Println(report.String())
	return nil
}

// loadConfig loads configuration and applies CLI overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if outputDir != "" {
		cfg.OutputDirectory = outputDir
	}
	if flags.Changed("overwrite") {
		cfg.Overwrite = overwrite
	}
	if flags.Changed("workers") {
		cfg.Processing.Workers = workers
	}
	if backend != "" {
		cfg.Stripper.Backend = backend
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildProcessor wires the namer, the configured backend and the batch processor.
// The returned func releases the backend.
func buildProcessor(cfg *config.Config, log *logrus.Logger) (*batch.Processor, func(), error) {
	b, err := stripper.NewBackend(cfg.Stripper.Backend, cfg.Stripper.ExiftoolPath, cfg.Stripper.JPEGQuality)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start %s backend: %w", cfg.Stripper.Backend, err)
	}
	log.WithField("backend", b.Name()).Debug("Stripping backend ready")

	closeBackend := func() {
		if err := b.Close(); err != nil {
			log.Warnf("Failed to close backend: %v", err)
		}
	}

	proc := batch.NewProcessor(
		naming.NewNamer(cfg.DefaultSubfolder),
		stripper.NewMetadataStripper(b, log),
		log,
		cfg.Processing.Workers,
	)
	return proc, closeBackend, nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    verbose,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err == nil {
		return log
	}

	// An unusable log file should not stop a batch; keep logging on stderr.
	fmt.Fprintf(os.Stderr, "Warning: file logging disabled: %v\n", err)
	loggerCfg.FilePath = ""
	loggerCfg.Console = true
	if log, err = logger.NewLogger(loggerCfg); err != nil {
		log = logrus.New()
		log.SetOutput(os.Stderr)
	}
	return log
}

func printOutcomes(result *batch.Result) {
	for _, job := range result.Jobs {
		if job.Status == batch.StatusSuccess {
			fmt.Printf("✔ %s → %s\n", job.SourcePath, job.FinalPath)
			continue
		}
		fmt.Printf("✖ %s — %s\n", job.SourcePath, job.Message())
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to encode output: %v\n", err)
	}
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errPartialFailure) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
