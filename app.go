package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/filing-agent/agent"
	"github.com/fabfab/filing-agent/config"
	"github.com/fabfab/filing-agent/database"
	"github.com/fabfab/filing-agent/embeddings"
	"github.com/fabfab/filing-agent/filing"
	"github.com/fabfab/filing-agent/ingestion"
	"github.com/fabfab/filing-agent/knowledge"
	"github.com/fabfab/filing-agent/llm"
	"github.com/fabfab/filing-agent/retrieval"
	"github.com/fabfab/filing-agent/vectorstore"
)

// app holds the connections shared by every command.
type app struct {
	cfg    config.Config
	logger *log.Logger

	pool   *pgxpool.Pool
	driver neo4j.DriverWithContext
	store  vectorstore.Store

	closers []func() error
}

// openApp connects the configured backends. Postgres is only dialed for the
// postgres vector store and Neo4j only when the filing graph is enabled.
func openApp(ctx context.Context, cfg config.Config, logger *log.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if cfg.VectorStore.Backend == config.BackendPostgres {
		pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		a.pool = pool
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
	}

	if cfg.GraphEnabled {
		driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("neo4j connection: %w", err)
		}
		a.driver = driver
		a.closers = append(a.closers, func() error {
			return driver.Close(context.Background())
		})
	}

	store, closeStore, err := vectorstore.Open(cfg, a.pool, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	if err := store.Init(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("init vector store: %w", err)
	}
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Printf("close: %v", err)
		}
	}
	a.closers = nil
}

func (a *app) ingester() (*ingestion.Service, error) {
	embedder, err := embeddings.NewEmbedder(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("embedder setup: %w", err)
	}
	mode, err := filing.ParseMode(a.cfg.Segmentation.Mode)
	if err != nil {
		return nil, err
	}

	var graph knowledge.Syncer
	if a.driver != nil {
		graph = knowledge.NewNeo4jSyncer(a.driver, a.logger)
	}

	return ingestion.NewService(a.store, embedder, graph, ingestion.Options{
		Mode:         mode,
		ChunkSize:    a.cfg.Segmentation.ChunkSize,
		ChunkOverlap: a.cfg.Segmentation.ChunkOverlap,
	}, a.logger), nil
}

func (a *app) orchestrator() (*agent.Orchestrator, error) {
	embedder, err := embeddings.NewEmbedder(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("embedder setup: %w", err)
	}
	client, err := llm.NewClient(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("llm setup: %w", err)
	}

	var graph retrieval.GraphStore
	if a.driver != nil {
		graph = retrieval.NewNeo4jGraphStore(a.driver)
	}
	retriever := retrieval.NewRetriever(embedder, a.store, graph, a.logger)

	return agent.NewOrchestrator(client, retriever, agent.Options{
		MaxSteps:        a.cfg.Agent.MaxSteps,
		SimilarityLimit: a.cfg.Agent.SimilarityLimit,
		Parallel:        a.cfg.Agent.Parallel,
	}, a.logger), nil
}

// clear empties the vector store and, when enabled, the filing graph.
func (a *app) clear(ctx context.Context) error {
	var errs []error
	if err := a.store.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear vector store: %w", err))
	} else {
		a.logger.Printf("cleared %s vector store", a.cfg.VectorStore.Backend)
	}
	if a.driver != nil {
		if err := knowledge.Purge(ctx, a.driver); err != nil {
			errs = append(errs, fmt.Errorf("clear neo4j: %w", err))
		} else {
			a.logger.Println("Neo4j filings and chunks cleared")
		}
	}
	return errors.Join(errs...)
}
