package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/docuquery/docuquery/internal/api/handlers"
	appMiddleware "github.com/docuquery/docuquery/internal/api/middlewares"
	"github.com/docuquery/docuquery/internal/config"
	"github.com/docuquery/docuquery/internal/core"
	ingestor "github.com/docuquery/docuquery/internal/core/ingestion_engine"
	"github.com/docuquery/docuquery/internal/core/retrieval"
	"github.com/docuquery/docuquery/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, db core.DbClient, docs *services.DocumentService, ing ingestor.Ingestor, tracker *ingestor.StatusTracker, retriever *retrieval.Engine, llm core.LLMProvider) *Server {
	authHandler := handlers.NewAuthHandler(db)
	docHandler := handlers.NewDocumentHandler(db, docs, ing, tracker, cfg)
	chatHandler := handlers.NewChatHandler(db, retriever, llm, cfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware)
			protected.Post("/documents/upload", docHandler.UploadDocument)
			protected.Post("/documents/batch/upload", docHandler.UploadDocumentsBatch)
			protected.Get("/documents", docHandler.GetDocuments)
			protected.Get("/documents/{documentID}/status", docHandler.GetDocumentStatus)
			protected.Get("/documents/{documentID}/chunks", docHandler.GetDocumentChunks)
			protected.Get("/documents/{documentID}/download", docHandler.DownloadDocument)

			protected.Post("/chat/query", chatHandler.Query)
			protected.Post("/chat/sessions", chatHandler.CreateSession)
			protected.Get("/chat/sessions", chatHandler.GetSessions)
			protected.Get("/chat/sessions/{sessionID}", chatHandler.GetSessionMessages)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
