package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	kmlsummary "github.com/mumuon/drivefinder/kml-summary"
)

func main() {
	configPath := flag.String("config", ".env", "Path to config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	help := flag.Bool("help", false, "Show help message")
	flag.Parse()

	args := flag.Args()
	if *help || len(args) == 0 {
		showHelp()
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	command := args[0]
	switch command {
	case "process":
		cmdProcess(args[1:], configPath)
	case "export":
		cmdExport(args[1:])
	case "serve":
		cmdServe(args[1:], configPath)
	case "history":
		cmdHistory(args[1:], configPath)
	case "help":
		showHelp()
	default:
		slog.Error("unknown command", "command", command)
		showHelp()
		os.Exit(1)
	}
}

// backends holds the optional report store and publisher.
type backends struct {
	store     kmlsummary.ReportStore
	publisher kmlsummary.ReportPublisher
	db        *kmlsummary.Database
}

func (b *backends) Close() {
	if b.db != nil {
		b.db.Close()
	}
}

// openBackends connects to the configured database and bucket. Either may be
// missing: the service then skips the matching side effect.
func openBackends(ctx context.Context, cfg *kmlsummary.Config) *backends {
	b := &backends{}

	if cfg.Database.Enabled() {
		db, err := kmlsummary.NewDatabase(cfg.Database)
		if err != nil {
			slog.Warn("failed to connect to database (continuing without report history)", "error", err)
		} else if err := db.EnsureSchema(ctx); err != nil {
			slog.Warn("failed to prepare report table (continuing without report history)", "error", err)
			db.Close()
		} else {
			b.db = db
			b.store = db
		}
	}

	if cfg.S3.Enabled() {
		s3Client, err := kmlsummary.NewS3Client(cfg.S3)
		if err != nil {
			slog.Warn("failed to initialize S3 client (continuing without publishing)", "error", err)
		} else {
			b.publisher = s3Client
		}
	}

	return b
}

func loadConfig(configPath *string) *kmlsummary.Config {
	cfg, err := kmlsummary.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	return cfg
}

// cmdProcess summarizes one or more documents
func cmdProcess(args []string, configPath *string) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	formatName := fs.String("format", "txt", "Output format: txt, json, csv or xlsx")
	outDir := fs.String("out", "", "Write one file per document into this directory instead of stdout")
	persist := fs.Bool("persist", false, "Save each run to the report history")
	publish := fs.Bool("publish", false, "Upload csv, xlsx and txt exports to the bucket")
	workers := fs.Int("workers", 1, "Number of documents processed in parallel")
	fs.Parse(reorderFlagsFirst(args))

	files := fs.Args()
	if len(files) == 0 {
		slog.Error("at least one KML or KMZ file required")
		os.Exit(1)
	}

	format, err := kmlsummary.ParseExportFormat(*formatName)
	if err != nil {
		slog.Error("invalid format", "error", err)
		os.Exit(1)
	}
	if format == kmlsummary.FormatXLSX && *outDir == "" {
		slog.Error("xlsx output requires -out")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var b *backends
	if *persist || *publish {
		b = openBackends(ctx, loadConfig(configPath))
	} else {
		b = &backends{}
	}
	defer b.Close()

	service := kmlsummary.NewReportService(b.store, b.publisher, slog.Default())
	opts := kmlsummary.RunOptions{Persist: *persist, Publish: *publish, Output: format}

	numWorkers := max(1, min(*workers, len(files)))
	workChan := make(chan string, len(files))
	for _, file := range files {
		workChan <- file
	}
	close(workChan)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failed []string

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for file := range workChan {
				if ctx.Err() != nil {
					return
				}

				logger := slog.With("worker", workerID, "file", file)
				err := processFile(ctx, service, file, format, *outDir, opts, &mu)

				mu.Lock()
				if err != nil {
					logger.Error("document failed", "error", err)
					failed = append(failed, file)
				}
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if ctx.Err() != nil {
		slog.Info("interrupted")
		os.Exit(1)
	}
	if len(failed) > 0 {
		slog.Error("failed documents", "files", failed)
		os.Exit(1)
	}
}

// processFile runs one document. Writes to stdout are serialized through mu.
func processFile(ctx context.Context, service *kmlsummary.ReportService, file string, format kmlsummary.ExportFormat, outDir string, opts kmlsummary.RunOptions, mu *sync.Mutex) error {
	content, err := kmlsummary.ReadDocumentFile(file)
	if err != nil {
		return err
	}

	result, err := service.Run(ctx, filepath.Base(file), content, opts)
	if err != nil {
		return err
	}
	for _, obj := range result.Exports {
		slog.Info("export published", "file", file, "format", obj.Format, "url", obj.URL)
	}

	data := result.Output

	if outDir == "" {
		mu.Lock()
		defer mu.Unlock()
		_, err := os.Stdout.Write(data)
		return err
	}

	outPath := filepath.Join(outDir, kmlsummary.ExportStem(file)+"."+string(format))
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outPath, err)
	}
	slog.Info("summary written", "file", file, "output", outPath)
	return nil
}

// cmdExport writes csv, xlsx and txt reports of a document next to each other
func cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	outDir := fs.String("out", ".", "Output directory")
	fs.Parse(reorderFlagsFirst(args))

	if fs.NArg() != 1 {
		slog.Error("exactly one KML or KMZ file required")
		os.Exit(1)
	}
	file := fs.Arg(0)

	content, err := kmlsummary.ReadDocumentFile(file)
	if err != nil {
		slog.Error("failed to read document", "error", err)
		os.Exit(1)
	}

	summary, err := kmlsummary.Process(filepath.Base(file), content)
	if err != nil {
		slog.Error("failed to process document", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		slog.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}

	stem := kmlsummary.ExportStem(file)
	for _, format := range kmlsummary.PublishedFormats {
		data, err := kmlsummary.RenderExportBytes(summary, format)
		if errors.Is(err, kmlsummary.ErrNothingToExport) {
			slog.Warn("no data to export", "format", format)
			continue
		}
		if err != nil {
			slog.Error("failed to render export", "format", format, "error", err)
			os.Exit(1)
		}

		outPath := filepath.Join(*outDir, stem+"."+string(format))
		if err := os.WriteFile(outPath, data, 0644); err != nil {
			slog.Error("failed to write export", "path", outPath, "error", err)
			os.Exit(1)
		}
		slog.Info("export written", "path", outPath)
	}
}

// cmdServe starts the REST API server
func cmdServe(args []string, configPath *string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.Int("port", 0, "Port to listen on (default from PORT, 8080)")
	fs.Parse(args)

	cfg := loadConfig(configPath)
	if *port != 0 {
		cfg.Server.Port = *port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b := openBackends(ctx, cfg)
	defer b.Close()

	service := kmlsummary.NewReportService(b.store, b.publisher, slog.Default())
	apiServer := kmlsummary.NewAPIServer(service, cfg.Server, slog.Default())

	slog.Info("report backends", "history", b.store != nil, "publishing", b.publisher != nil)
	if err := apiServer.Start(ctx, cfg.Server.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// cmdHistory lists stored reports or shows one of them
func cmdHistory(args []string, configPath *string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Number of reports to list")
	verify := fs.Bool("verify", false, "Check that published exports still exist")
	fs.Parse(reorderFlagsFirst(args))

	cfg := loadConfig(configPath)
	if !cfg.Database.Enabled() {
		slog.Error("report history requires DB_PASSWORD to be configured")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	b := openBackends(ctx, cfg)
	defer b.Close()
	service := kmlsummary.NewReportService(b.store, b.publisher, slog.Default())

	var records []*kmlsummary.ReportRecord
	if fs.NArg() > 0 {
		rec, err := service.Report(ctx, fs.Arg(0))
		if err != nil {
			slog.Error("failed to load report", "id", fs.Arg(0), "error", err)
			os.Exit(1)
		}
		if err := kmlsummary.WriteTextReport(os.Stdout, rec.Summary); err != nil {
			slog.Error("failed to write report", "error", err)
			os.Exit(1)
		}
		records = append(records, rec)
	} else {
		var err error
		records, err = service.History(ctx, *limit)
		if err != nil {
			slog.Error("failed to list reports", "error", err)
			os.Exit(1)
		}
		for _, rec := range records {
			fmt.Printf("%s  %s  %-30s features=%d length=%.0fm warnings=%d exports=%d\n",
				rec.ID, rec.CreatedAt.Local().Format(time.DateTime), rec.Document,
				rec.Features, rec.LengthMeters, rec.Warnings, len(rec.Exports))
		}
	}

	if !*verify {
		return
	}
	if b.publisher == nil {
		slog.Error("verifying exports requires S3 to be configured")
		os.Exit(1)
	}

	missingTotal := 0
	for _, rec := range records {
		missing, err := service.MissingExports(ctx, rec)
		if err != nil {
			slog.Error("failed to verify exports", "id", rec.ID, "error", err)
			os.Exit(1)
		}
		for _, obj := range missing {
			slog.Warn("export missing from bucket", "id", rec.ID, "key", obj.Key)
		}
		missingTotal += len(missing)
	}
	if missingTotal > 0 {
		os.Exit(1)
	}
	slog.Info("all exports present", "reports", len(records))
}

// reorderFlagsFirst moves flag arguments before positional arguments so
// "process trail.kml -format csv" works like "process -format csv trail.kml".
func reorderFlagsFirst(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			positional = append(positional, arg)
			continue
		}
		flags = append(flags, arg)
		// "-key value" form: boolean flags take no value
		name := strings.TrimLeft(arg, "-")
		if !strings.Contains(name, "=") && !isBoolFlag(name) && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	return append(flags, positional...)
}

func isBoolFlag(name string) bool {
	switch name {
	case "persist", "publish", "verify":
		return true
	}
	return false
}

func showHelp() {
	help := `KML Summary - Count and measure Placemark features in KML documents

Usage:
  kml-summary [global options] <command> [command options] [arguments]

Global Options:
  -config string        Path to .env configuration file (default ".env")
  -debug                Enable debug logging
  -help                 Show this help message

Commands:
  process               Summarize one or more KML/KMZ documents
  export                Write csv, xlsx and txt reports of a document
  serve                 Start the REST API server
  history               List stored reports or show one
  help                  Show this help message

Process Command:
  Usage: kml-summary process [options] <file> [file2] ...

  Options:
    -format string        Output format: txt, json, csv or xlsx (default "txt")
    -out string           Write <stem>.<format> files into this directory instead of stdout
    -persist              Save each run to the report history (requires database)
    -publish              Upload csv, xlsx and txt exports (requires S3)
    -workers int          Number of documents processed in parallel (default 1)

Export Command:
  Usage: kml-summary export [options] <file>

  Options:
    -out string           Output directory (default ".")

Serve Command:
  Usage: kml-summary serve [options]

  Options:
    -port int             Port to listen on (default from PORT, 8080)

  Endpoints:
    POST /api/process     Raw document body or multipart field "file"
                          ?name=<document name>&format=json|csv|xlsx|txt
    GET  /api/reports     Recent reports (?limit=20)
    GET  /api/reports/id  One stored report
    GET  /health          Health check

History Command:
  Usage: kml-summary history [options] [report-id]

  Options:
    -limit int            Number of reports to list (default 20)
    -verify               Check that published exports still exist in the bucket

Environment:
  DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME, DB_SSLMODE
                        Report history; disabled when DB_PASSWORD is empty
  S3_ENDPOINT, S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY, S3_REGION,
  S3_BUCKET, S3_BUCKET_PATH, S3_PUBLIC_URL
                        Export publishing; disabled without bucket and keys
  PORT, MAX_UPLOAD_BYTES
                        API server settings (defaults 8080, 52428800)
`
	fmt.Print(help)
}
