package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/wordcrawl/pkg/config"
	"github.com/Sriram-PR/wordcrawl/pkg/crawler"
	"github.com/Sriram-PR/wordcrawl/pkg/fetch"
	wclog "github.com/Sriram-PR/wordcrawl/pkg/log"
	"github.com/Sriram-PR/wordcrawl/pkg/report"
	"github.com/Sriram-PR/wordcrawl/pkg/utils"
)

const version = "0.1.0"

const visitedLogFilename = "visited.txt"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "crawl":
		runCrawl(os.Args[2:], false)
	case "resume":
		runCrawl(os.Args[2:], true)
	case "validate":
		runValidate(os.Args[2:])
	case "version":
		fmt.Printf("wordcrawl %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `wordcrawl - Depth-limited crawler that counts words

Usage:
  wordcrawl <command> [options]

Commands:
  crawl       Start a fresh crawl
  resume      Resume an interrupted crawl (requires persistent_visited)
  validate    Validate configuration file
  version     Show version info

Run 'wordcrawl <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file
func loadConfig(path string) (*config.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config.AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config YAML: %w", utils.ErrParsing, err)
	}

	return &cfg, nil
}

// crawlOptions carries the command-line settings of crawl and resume
type crawlOptions struct {
	configFile      string
	maxDepth        int // Negative keeps the configured value
	logLevel        string
	writeVisitedLog bool
	resume          bool
}

// runCrawl handles both crawl and resume subcommands
func runCrawl(args []string, isResume bool) {
	cmdName := "crawl"
	if isResume {
		cmdName = "resume"
	}

	fs := flag.NewFlagSet(cmdName, flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	maxDepth := fs.Int("max-depth", -1, "Override max_depth from config (0 = start URLs only)")
	logLevel := fs.String("loglevel", "info", "Log level (trace, debug, info, warn, error)")
	writeVisitedLog := fs.Bool("write-visited-log", false, "Write visited URLs log to output_dir on completion")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: wordcrawl %s [options]\n\nOptions:\n", cmdName)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  wordcrawl %s -config crawl.yaml\n", cmdName)
		fmt.Fprintf(os.Stderr, "  wordcrawl %s -config crawl.yaml -max-depth 2 -loglevel debug\n", cmdName)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Channel to listen for OS signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				fmt.Fprintf(os.Stderr, "PANIC in signal handler: %v\n", r)
			}
		}()
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "Received signal: %v. Initiating graceful shutdown...\n", sig)
		cancel()

		select {
		case sig = <-sigChan:
			fmt.Fprintf(os.Stderr, "Received second signal: %v. Forcing exit.\n", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			fmt.Fprintln(os.Stderr, "Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	exitCode := doCrawl(ctx, crawlOptions{
		configFile:      *configFile,
		maxDepth:        *maxDepth,
		logLevel:        *logLevel,
		writeVisitedLog: *writeVisitedLog,
		resume:          isResume,
	}, os.Stderr)
	os.Exit(exitCode)
}

// doCrawl runs one crawl session and writes its report.
// Returns exit code (0 = success or graceful cancel, 1 = error).
func doCrawl(ctx context.Context, opts crawlOptions, logOut io.Writer) int {
	logger, err := wclog.New(opts.logLevel, logOut)
	if err != nil {
		logger.Warnf("%v, using default 'info'", err)
	} else {
		logger.Infof("Setting log level to: %s", logger.GetLevel().String())
	}

	logger.Infof("Loading configuration from %s", opts.configFile)
	appCfg, err := loadConfig(opts.configFile)
	if err != nil {
		logger.Errorf("Config error: %v", err)
		return 1
	}
	if opts.maxDepth >= 0 {
		appCfg.SetMaxDepth(opts.maxDepth)
		logger.Infof("max_depth overridden via CLI flag: %d", opts.maxDepth)
	}

	warnings, err := appCfg.Validate()
	if err != nil {
		logger.Errorf("Config error: %v", err)
		return 1
	}
	for _, w := range warnings {
		logger.Warn(w)
	}
	logAppConfig(appCfg, logger)

	// ===========================================================
	// == Initialize Components ==
	// ===========================================================
	logger.Info("Initializing components...")
	logEntry := logger.WithField("component", "crawl")

	session, err := crawler.NewSession(ctx, appCfg, opts.resume, logEntry)
	if err != nil {
		logger.Errorf("Failed to initialize crawl session: %v", err)
		return 1
	}
	defer session.Close()

	httpClient := fetch.NewClient(appCfg.HTTPClientSettings, logEntry)
	fetcher := fetch.NewFetcher(httpClient, appCfg, logEntry)

	// ===========================================================
	// == Start Crawler Execution ==
	// ===========================================================
	summary, crawlErr := crawler.NewCrawler(session, fetcher).Run(ctx, opts.resume)

	// ===========================================================
	// == Post-Crawl Actions ==
	// ===========================================================
	snapshot := session.Frequencies.Snapshot()
	summary.TopWords = report.TopWords(snapshot, appCfg.TopWords)
	if err := report.Write(appCfg.OutputDir, snapshot, summary, logEntry); err != nil {
		logger.Errorf("Failed to write report: %v", err)
		return 1
	}

	if opts.writeVisitedLog {
		visitedPath := filepath.Join(appCfg.OutputDir, visitedLogFilename)
		if err := session.WriteVisitedLog(visitedPath); err != nil {
			logger.Errorf("Error writing final visited log: %v", err)
		}
	}

	if crawlErr != nil {
		switch {
		case errors.Is(crawlErr, context.Canceled):
			logger.Warn("Crawl cancelled gracefully. Partial results written.")
			return 0
		case errors.Is(crawlErr, context.DeadlineExceeded):
			logger.Error("Crawl timed out (global timeout). Partial results written.")
			return 1
		default:
			logger.Errorf("Crawl finished with error: %v", crawlErr)
			return 1
		}
	}

	logger.Info("Crawl completed successfully.")
	return 0
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: wordcrawl validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doValidate(*configFile, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := appCfg.Validate()
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	fmt.Fprintf(stdout, "OK: %d start URL(s), max_depth %d\n", len(appCfg.StartURLs), appCfg.GetEffectiveMaxDepth())

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// logAppConfig logs the effective configuration
func logAppConfig(appCfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Config: StartURLs:%v, MaxDepth:%d, Workers:%d, TopWords:%d",
		appCfg.StartURLs, appCfg.GetEffectiveMaxDepth(), appCfg.NumWorkers, appCfg.TopWords)
	log.Infof("Config: PersistentVisited:%t, StateDir:%s, OutputDir:%s, MaxPageSize:%d bytes",
		appCfg.PersistentVisited, appCfg.StateDir, appCfg.OutputDir, appCfg.MaxPageSizeBytes)
	log.Infof("Config Retries: Max:%d, InitialDelay:%v, MaxDelay:%v",
		appCfg.MaxRetries, appCfg.InitialRetryDelay, appCfg.MaxRetryDelay)
	log.Infof("Config Timeouts: GlobalCrawl:%v, PerPage:%v", appCfg.GlobalCrawlTimeout, appCfg.PerPageTimeout)
	log.Infof("Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d, IdleTimeout:%v, TLSTimeout:%v, DialerTimeout:%v, MaxRedirects:%d",
		appCfg.HTTPClientSettings.Timeout, appCfg.HTTPClientSettings.MaxIdleConns, appCfg.HTTPClientSettings.MaxIdleConnsPerHost,
		appCfg.HTTPClientSettings.IdleConnTimeout, appCfg.HTTPClientSettings.TLSHandshakeTimeout, appCfg.HTTPClientSettings.DialerTimeout,
		appCfg.HTTPClientSettings.MaxRedirects)
}
