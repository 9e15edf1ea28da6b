package admin

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/kbvec/internal/api/handlers"
	"github.com/cloo-solutions/kbvec/internal/cli"
	"github.com/cloo-solutions/kbvec/internal/jobs"
	"github.com/cloo-solutions/kbvec/internal/server"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the kbvec API server and the background embedding worker",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides KB_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-worker", false, "Do not run the embedding job worker")
	cli.BindEnv(cmd, "port", "KB_PORT")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	a, err := loadApp(ctx, appOptions{migrate: !noMigrate})
	if err != nil {
		return err
	}
	defer a.Close()

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		a.cfg.Port = port
	}

	var embeddingWorker *jobs.Worker
	noWorker, _ := cmd.Flags().GetBool("no-worker")
	if !noWorker && a.cfg.HasOpenAI() {
		processor := jobs.NewEmbeddingWorker(a.stores.jobs, a.embedding, a.cfg.EmbedTimeout)
		embeddingWorker = jobs.NewWorker(processor, a.cfg.WorkerPollInterval)
		go embeddingWorker.Start(ctx)
		log.Println("embedding worker started")
	}

	router := server.NewRouter(server.RouterConfig{
		DocumentHandler:   handlers.NewDocumentHandler(a.documents),
		EmbeddingHandler:  handlers.NewEmbeddingHandler(a.documents, a.embedding),
		SimilarityHandler: handlers.NewSimilarityHandler(a.similarity, a.cfg.SimilarTopK, a.cfg.PairThreshold),
	})

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("starting server on port %s", a.cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	}
	log.Println("shutting down...")

	if embeddingWorker != nil {
		embeddingWorker.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}
