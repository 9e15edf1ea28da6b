package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/kbvec/internal/cli"
	"github.com/cloo-solutions/kbvec/internal/similarity"
	"github.com/cloo-solutions/kbvec/internal/storage"
)

// SimilarCmd returns the similar command
func SimilarCmd() *cobra.Command {
	var (
		limit  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "similar <id>",
		Short: "List the documents most similar to one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if limit <= 0 {
				limit = a.cfg.SimilarTopK
			}
			return runSimilar(cmd.Context(), a, args[0], limit, output, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of results (default KB_SIMILAR_TOP_K)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text or json")
	cli.BindEnv(cmd, "limit", "KB_SIMILAR_TOP_K")

	return cmd
}

type similarOutput struct {
	Source  similarRef   `json:"source"`
	Results []similarRow `json:"results"`
	Message string       `json:"message,omitempty"`
}

type similarRef struct {
	DocumentID string `json:"document_id"`
	DocID      int64  `json:"doc_id"`
	Title      string `json:"title"`
	Parent     string `json:"parent,omitempty"`
}

type similarRow struct {
	similarRef
	Similarity float64 `json:"similarity"`
}

func toSimilarRef(r similarity.Ref) similarRef {
	return similarRef{DocumentID: r.ID, DocID: r.DocID, Title: r.Title, Parent: r.Parent}
}

func runSimilar(ctx context.Context, a *app, ref string, limit int, format string, out io.Writer) error {
	res, err := a.similarity.FindSimilar(ctx, ref, limit)
	if err != nil {
		return err
	}

	result := similarOutput{
		Source: similarRef{
			DocumentID: res.Source.ID,
			DocID:      res.Source.DocID,
			Title:      res.Source.Title,
			Parent:     res.Source.Parent,
		},
		Results: make([]similarRow, 0, len(res.Matches)),
		Message: res.Status,
	}
	for _, m := range res.Matches {
		result.Results = append(result.Results, similarRow{
			similarRef: toSimilarRef(m.Ref),
			Similarity: similarity.Round(m.Similarity),
		})
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	case "text":
		fmt.Fprintf(out, "Similar to #%d %s\n", result.Source.DocID, result.Source.Title)
		if result.Message != "" {
			fmt.Fprintf(out, "  %s\n", result.Message)
		}
		for _, r := range result.Results {
			fmt.Fprintf(out, "  %.4f  #%d %s\n", r.Similarity, r.DocID, r.Title)
		}
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	return nil
}

// PairsCmd returns the pairs command
func PairsCmd() *cobra.Command {
	var (
		threshold float64
		upload    bool
		output    string
	)

	cmd := &cobra.Command{
		Use:   "pairs",
		Short: "List pairs of near-duplicate documents",
		Long: `List every pair of documents whose similarity is at or above the threshold.

With --upload the report is also written to the configured S3 bucket.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("threshold") {
				threshold = a.cfg.PairThreshold
			}
			if threshold < -1 || threshold > 1 {
				return fmt.Errorf("threshold must be in [-1, 1]")
			}

			var uploader reportUploader
			if upload {
				uploader, err = newReportUploader(cmd.Context(), a)
				if err != nil {
					return err
				}
			}
			return runPairs(cmd.Context(), a, threshold, uploader, output, cmd.OutOrStdout())
		},
	}

	cmd.Flags().Float64VarP(&threshold, "threshold", "t", similarity.DefaultPairThreshold, "Minimum similarity (default KB_PAIR_THRESHOLD)")
	cmd.Flags().BoolVar(&upload, "upload", false, "Upload the report to S3")
	cli.BindEnv(cmd, "threshold", "KB_PAIR_THRESHOLD")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text or json")

	return cmd
}

type reportUploader interface {
	storage.ObjectWriter
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
}

func newReportUploader(ctx context.Context, a *app) (reportUploader, error) {
	if !a.cfg.HasS3() {
		return nil, fmt.Errorf("--upload requires KB_S3_ENDPOINT, KB_S3_ACCESS_KEY_ID and KB_S3_SECRET_ACCESS_KEY")
	}

	client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        a.cfg.S3Endpoint,
		Region:          a.cfg.S3Region,
		AccessKeyID:     a.cfg.S3AccessKey,
		SecretAccessKey: a.cfg.S3SecretKey,
		Bucket:          a.cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	return client, nil
}

func runPairs(ctx context.Context, a *app, threshold float64, uploader reportUploader, format string, out io.Writer) error {
	pairs, err := a.similarity.FindSimilarPairs(ctx, threshold)
	if err != nil {
		return err
	}

	report := storage.NewPairReport(pairs, threshold, time.Now())

	switch format {
	case "json":
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	case "text":
		fmt.Fprintf(out, "%d pairs at or above %.2f\n", report.Count, threshold)
		for _, p := range report.Pairs {
			fmt.Fprintf(out, "  %.4f  #%d %s <-> #%d %s\n", p.Similarity, p.A.DocID, p.A.Title, p.B.DocID, p.B.Title)
		}
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	if uploader == nil {
		return nil
	}

	key, err := storage.UploadPairReport(ctx, uploader, report)
	if err != nil {
		return fmt.Errorf("failed to upload report: %w", err)
	}
	url, err := uploader.GenerateDownloadURL(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to sign report URL: %w", err)
	}
	// stdout stays parseable for -o json
	if format == "json" {
		log.Printf("uploaded report %s: %s", key, url)
		return nil
	}
	fmt.Fprintf(out, "uploaded %s\n%s\n", key, url)
	return nil
}
