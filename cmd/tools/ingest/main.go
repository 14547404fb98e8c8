// Package main 实现 ingest 命令行工具，把参考文档写入检索使用的
// chat_<metric> 向量集合。
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/IvaTomevska/loob-beta/internal/config"
	"github.com/IvaTomevska/loob-beta/internal/service/retrieval"
)

var (
	metric    string
	format    string
	backend   string
	batchSize int
	dryRun    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ingest <file|->",
	Short: "Embed documents and store them in a retrieval collection",
	Long: `Embed documents and store them in the chat_<metric> collection of the
configured vector backend.

Input is either plain text (one document per paragraph, paragraphs separated
by blank lines) or JSON lines with a "content" field.

Examples:
  # Load paragraphs into chat_cosine on the embedded chromem store
  ingest --metric cosine events.txt

  # Load JSON lines into Qdrant with the dot-product distance
  ingest --backend qdrant --metric dot_product --format jsonl docs.jsonl

  # Read from stdin
  cat notes.txt | ingest -`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.Flags().StringVar(&metric, "metric", retrieval.DefaultMetric, "similarity metric naming the collection")
	rootCmd.Flags().StringVar(&format, "format", "text", "input format: text or jsonl")
	rootCmd.Flags().StringVar(&backend, "backend", "", "vector backend override (chromem or qdrant)")
	rootCmd.Flags().IntVar(&batchSize, "batch-size", 32, "documents embedded per request")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse the input without embedding or writing")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
	defer cancel()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if backend != "" {
		cfg.Vector.Backend = backend
	}

	normalized, err := retrieval.NormalizeMetric(metric)
	if err != nil {
		return err
	}
	collection, err := retrieval.CollectionName(normalized)
	if err != nil {
		return err
	}

	in := os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		in = f
	}

	contents, err := readDocuments(in, format)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Ingest: %d documents -> %s (%s)\n", len(contents), collection, cfg.Vector.Backend)
	if dryRun || len(contents) == 0 {
		return nil
	}

	embedder, err := retrieval.NewOpenAIEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}
	index, err := retrieval.NewIndex(cfg.Vector)
	if err != nil {
		return err
	}
	defer index.Close()

	written, err := ingest(ctx, embedder, index, collection, normalized, contents, batchSize)
	fmt.Fprintf(out, "  Written: %d\n", written)
	return err
}

// ingest 分批向量化并写入文档，返回失败前已写入的文档数。
func ingest(ctx context.Context, embedder retrieval.Embedder, index retrieval.Index, collection, metric string, contents []string, batch int) (int, error) {
	if batch <= 0 {
		batch = 32
	}

	written := 0
	for start := 0; start < len(contents); start += batch {
		end := min(start+batch, len(contents))
		chunk := contents[start:end]

		vectors, err := embedder.EmbedDocuments(ctx, chunk)
		if err != nil {
			return written, fmt.Errorf("embedding batch at %d: %w", start, err)
		}
		if len(vectors) != len(chunk) {
			return written, fmt.Errorf("embedding batch at %d: got %d vectors for %d documents", start, len(vectors), len(chunk))
		}

		docs := make([]retrieval.Document, len(chunk))
		for i, content := range chunk {
			docs[i] = retrieval.Document{
				ID:        retrieval.DocumentID(content),
				Content:   content,
				Embedding: vectors[i],
			}
		}
		if err := index.Upsert(ctx, collection, metric, docs); err != nil {
			return written, err
		}
		written += len(docs)
	}
	return written, nil
}
