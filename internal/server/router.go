package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/kbvec/internal/api"
	"github.com/cloo-solutions/kbvec/internal/api/handlers"
	"github.com/cloo-solutions/kbvec/internal/api/middleware"
)

type RouterConfig struct {
	DocumentHandler   *handlers.DocumentHandler
	EmbeddingHandler  *handlers.EmbeddingHandler
	SimilarityHandler *handlers.SimilarityHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// HTML bodies of long articles
	const maxBodyBytes int64 = 10 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/documents", func(r chi.Router) {
		r.Post("/", cfg.DocumentHandler.Create)
		r.Get("/", cfg.DocumentHandler.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", cfg.DocumentHandler.Get)
			r.Put("/", cfg.DocumentHandler.Update)
			r.Delete("/", cfg.DocumentHandler.Delete)

			r.Post("/embed", cfg.EmbeddingHandler.Embed)
			r.Delete("/embeddings", cfg.EmbeddingHandler.DeleteEmbeddings)
			r.Get("/chunks", cfg.EmbeddingHandler.ListChunks)
			r.Get("/similar", cfg.SimilarityHandler.Similar)
		})
	})

	r.Get("/similar-pairs", cfg.SimilarityHandler.Pairs)

	return r
}
