package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/kbvec/internal/domain"
	"github.com/cloo-solutions/kbvec/internal/service"
)

const defaultEmbedConcurrency = 4

type embedOptions struct {
	refs        []string
	all         bool
	rebuild     bool
	dryRun      bool
	limit       int
	concurrency int
	output      string
}

// EmbedCmd returns the embed command
func EmbedCmd() *cobra.Command {
	var opts embedOptions

	cmd := &cobra.Command{
		Use:   "embed [id...]",
		Short: "Chunk and embed documents",
		Long: `Chunk and embed the named documents, or every document with --all.

Documents are given by UUID or display id. Only chunks that are missing are
sent to the provider unless --rebuild is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.refs = args
			if len(opts.refs) == 0 && !opts.all {
				return fmt.Errorf("provide document ids or --all")
			}
			if len(opts.refs) > 0 && opts.all {
				return fmt.Errorf("document ids and --all are mutually exclusive")
			}

			a, err := loadApp(cmd.Context(), appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			return runEmbed(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.all, "all", false, "Embed every document")
	cmd.Flags().BoolVar(&opts.rebuild, "rebuild", false, "Discard stored chunks and embed from scratch")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Show what would be embedded without calling the provider")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "With --all, embed at most this many documents (0 = no limit)")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", defaultEmbedConcurrency, "Documents embedded in parallel")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Output format: text or json")

	return cmd
}

type embedResult struct {
	DocumentID string `json:"document_id"`
	DocID      int64  `json:"doc_id"`
	Title      string `json:"title"`
	Chunks     int    `json:"chunks"`
	Pending    []int  `json:"pending,omitempty"`
	Stale      int    `json:"stale,omitempty"`
	Embedded   int    `json:"embedded"`
	Error      string `json:"error,omitempty"`
}

type embedSummary struct {
	DryRun    bool          `json:"dry_run"`
	Rebuild   bool          `json:"rebuild"`
	Documents []embedResult `json:"documents"`
	Embedded  int           `json:"embedded"`
	Failed    int           `json:"failed"`
}

func runEmbed(ctx context.Context, a *app, opts embedOptions, out io.Writer) error {
	if opts.output != "text" && opts.output != "json" {
		return fmt.Errorf("unknown output format %q", opts.output)
	}
	if opts.concurrency <= 0 {
		opts.concurrency = defaultEmbedConcurrency
	}

	docs, err := selectDocuments(ctx, a.stores.documents, opts)
	if err != nil {
		return err
	}

	// each goroutine owns one slot
	results := make([]embedResult, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			results[i] = embedOne(gctx, a.embedding, doc, opts)
			return nil
		})
	}
	// per-document failures are recorded, never returned
	_ = g.Wait()

	summary := embedSummary{DryRun: opts.dryRun, Rebuild: opts.rebuild, Documents: results}
	for _, r := range results {
		summary.Embedded += r.Embedded
		if r.Error != "" {
			summary.Failed++
		}
	}

	if err := writeEmbedSummary(out, summary, opts.output); err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d documents failed to embed", summary.Failed, len(results))
	}
	return nil
}

func selectDocuments(ctx context.Context, repo documentStore, opts embedOptions) ([]*domain.Document, error) {
	if opts.all {
		docs, err := repo.List(ctx, opts.limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		return docs, nil
	}

	docs := make([]*domain.Document, 0, len(opts.refs))
	for _, ref := range opts.refs {
		doc, err := service.ResolveDocument(ctx, repo, ref)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", ref, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func embedOne(ctx context.Context, svc *service.EmbeddingService, doc *domain.Document, opts embedOptions) embedResult {
	res := embedResult{DocumentID: doc.ID, DocID: doc.DocID, Title: doc.Title}

	if opts.dryRun {
		plan, err := svc.Plan(ctx, doc.ID, opts.rebuild)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		res.Chunks = plan.ChunkCount
		res.Pending = plan.Pending
		res.Stale = plan.Stale
		return res
	}

	n, err := svc.EmbedDocument(ctx, doc.ID, opts.rebuild)
	res.Embedded = n
	if err != nil {
		log.Printf("embed: document %d failed: %v", doc.DocID, err)
		res.Error = err.Error()
	}
	return res
}

func writeEmbedSummary(out io.Writer, summary embedSummary, format string) error {
	if format == "json" {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	for _, r := range summary.Documents {
		switch {
		case r.Error != "":
			fmt.Fprintf(out, "FAIL  #%d %s: %s\n", r.DocID, r.Title, r.Error)
		case summary.DryRun:
			fmt.Fprintf(out, "PLAN  #%d %s: %d chunks, %d to embed, %d stale\n", r.DocID, r.Title, r.Chunks, len(r.Pending), r.Stale)
		default:
			fmt.Fprintf(out, "OK    #%d %s: %d chunks embedded\n", r.DocID, r.Title, r.Embedded)
		}
	}
	_, err := fmt.Fprintf(out, "\n%d documents, %d chunks embedded, %d failed\n", len(summary.Documents), summary.Embedded, summary.Failed)
	return err
}
