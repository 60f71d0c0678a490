package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/docuquery/docuquery/internal/config"
	"github.com/docuquery/docuquery/internal/core"
	db "github.com/docuquery/docuquery/internal/core/database"
	"github.com/docuquery/docuquery/internal/core/ingestion_engine"
	"github.com/docuquery/docuquery/internal/core/llm"
	objectclient "github.com/docuquery/docuquery/internal/core/object-client"
	"github.com/docuquery/docuquery/internal/core/retrieval"
	"github.com/docuquery/docuquery/internal/services"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	DocProcessor ingestion_engine.Ingestor
	Retriever    *retrieval.Engine
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	geminiEmbedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm, %w", err)
	}

	documentExtractor := ingestion_engine.NewDocconvExtractor(cfg.MinExtractChars)
	tracker := ingestion_engine.NewStatusTracker()

	ingCfg := &ingestion_engine.IngestConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		EmbedBatch:   16,
		Workers:      cfg.WorkerCount,
	}
	docIngestor := ingestion_engine.NewDocumentIngestor(dbClient, objClient, geminiEmbedder, documentExtractor, tracker, ingCfg)

	retriever := retrieval.NewEngine(
		retrieval.NewPgLexicalIndex(dbClient),
		retrieval.NewPgSemanticIndex(dbClient, geminiEmbedder),
		retrieval.Config{
			LexicalWeight:  cfg.LexicalWeight,
			SemanticWeight: cfg.SemanticWeight,
			AdapterTimeout: cfg.RetrievalTimeout,
		},
	)

	docService := services.NewDocumentService(dbClient, objClient, cfg.BucketName)

	server := NewServer(cfg, dbClient, docService, docIngestor, tracker, retriever, llmProvider)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		DocProcessor: docIngestor,
		Retriever:    retriever,
		Server:       server,
	}, nil
}

func (a *App) Close() {
	if a.DocProcessor != nil {
		a.DocProcessor.Stop()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
