package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fabfab/filing-agent/agent"
	"github.com/fabfab/filing-agent/api"
	"github.com/fabfab/filing-agent/config"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Printf("load .env: %v", err)
	}
	cfg := config.Load()

	switch os.Args[1] {
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "ask":
		askCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// parseFlags parses args and applies the optional -config YAML overlay.
func parseFlags(flags *flag.FlagSet, cfg config.Config, logger *log.Logger, args []string) config.Config {
	configPath := flags.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file overlaid on the environment")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse %s flags: %v", flags.Name(), err)
	}

	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath, cfg)
		if err != nil {
			logger.Fatalf("config: %v", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}
	return cfg
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	dataDir := flags.String("dir", cfg.DataDir, "path to directory containing 10-K filings (.htm, .html, .pdf)")
	force := flags.Bool("force", false, "re-ingest even when the vector store is already populated")
	mode := flags.String("mode", "", "segmentation mode: section or page (overrides configuration)")
	cfg = parseFlags(flags, cfg, logger, args)
	if *mode != "" {
		cfg.Segmentation.Mode = strings.ToLower(*mode)
		if err := cfg.Validate(); err != nil {
			logger.Fatalf("invalid configuration: %v", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer a.Close()

	svc, err := a.ingester()
	if err != nil {
		logger.Fatalf("%v", err)
	}

	logger.Printf("ingesting filings from %s by %s using %s/%s embeddings", *dataDir, cfg.Segmentation.Mode, strings.ToUpper(cfg.Embeddings.Provider), cfg.Embeddings.Model)
	if _, err := svc.IngestDirectory(ctx, *dataDir, *force); err != nil {
		logger.Fatalf("ingestion failed: %v", err)
	}
}

func askCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ask", flag.ExitOnError)
	question := flags.String("question", "", "question to ask the agent; prompts when empty")
	interactive := flags.Bool("interactive", false, "keep asking questions until an empty line or EOF")
	showSteps := flags.Bool("steps", true, "print the tools used to answer")
	cfg = parseFlags(flags, cfg, logger, args)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer a.Close()

	orchestrator, err := a.orchestrator()
	if err != nil {
		logger.Fatalf("%v", err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	ask := func(q string) {
		answer, err := orchestrator.Ask(ctx, q)
		if err != nil {
			if errors.Is(err, agent.ErrEmptyQuestion) {
				logger.Println("question cannot be empty")
				return
			}
			logger.Fatalf("ask failed: %v", err)
		}
		if *showSteps {
			for _, step := range answer.Steps {
				fmt.Printf("Used tool %s: %s\n", step.Tool, step.Reason)
			}
			fmt.Println()
		}
		fmt.Println(answer.Text())
	}

	if strings.TrimSpace(*question) != "" && !*interactive {
		ask(*question)
		return
	}
	if strings.TrimSpace(*question) != "" {
		ask(*question)
	}

	for {
		fmt.Print("Enter your question: ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read question: %v", err)
			}
			return
		}
		q := strings.TrimSpace(scanner.Text())
		if q == "" {
			return
		}
		ask(q)
		if !*interactive || ctx.Err() != nil {
			return
		}
	}
}

func clearCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	cfg = parseFlags(flags, cfg, logger, args)

	if !*confirmed {
		fmt.Printf("This will permanently delete ingested filings from the %s vector store", cfg.VectorStore.Backend)
		if cfg.GraphEnabled {
			fmt.Print(" and Neo4j")
		}
		fmt.Print(". Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read confirmation: %v", err)
			}
			logger.Println("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Println("clear aborted")
			return
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer a.Close()

	if err := a.clear(ctx); err != nil {
		logger.Fatalf("%v", err)
	}
	logger.Println("filing data removed")
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.HTTPAddr, "listen address")
	cfg = parseFlags(flags, cfg, logger, args)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer a.Close()

	ingester, err := a.ingester()
	if err != nil {
		logger.Fatalf("%v", err)
	}
	orchestrator, err := a.orchestrator()
	if err != nil {
		logger.Fatalf("%v", err)
	}

	server := &http.Server{
		Addr: *addr,
		Handler: api.New(api.Deps{
			Ingester: ingester,
			Asker:    orchestrator,
			Clear:    a.clear,
			DataDir:  cfg.DataDir,
		}, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}()

	logger.Printf("listening on %s", *addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("serve: %v", err)
	}
}

func printUsage() {
	fmt.Println("Usage: filing-agent <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  ingest   Ingest 10-K filings into the vector store (use --dir to override the data directory, --force to re-ingest)")
	fmt.Println("  ask      Ask a financial question about the ingested filings")
	fmt.Println("  clear    Remove ingested filings from the vector store and graph")
	fmt.Println("  serve    Run the HTTP API")
}
