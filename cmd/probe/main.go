// Command probe embeds one query, searches the vector index and prints the
// nearest articles with their joined metadata. It reads the same NEWSFUSE_*
// environment as newsfuse and is meant for checking a store before a full run.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dshills/newsfuse/internal/config"
	"github.com/dshills/newsfuse/internal/embedder"
	"github.com/dshills/newsfuse/internal/storage"
	"github.com/dshills/newsfuse/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	dbPath := flag.String("db", "", "Database path (overrides config)")
	limit := flag.Int("n", 10, "Number of matches to print")
	flag.Parse()

	text := strings.Join(flag.Args(), " ")
	if text == "" {
		fmt.Fprintln(os.Stderr, "usage: probe [-config file] [-db path] [-n 10] query text")
		os.Exit(2)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		log.Fatalf("Failed to load config: %v", errs)
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if cfg.DatabasePath == "" {
		log.Fatal("no database: set -db or NEWSFUSE_DATABASE_PATH")
	}

	ctx := context.Background()
	store, err := storage.Open(ctx, storage.Options{
		Driver:  cfg.Driver,
		DSN:     cfg.DatabasePath,
		Migrate: cfg.Driver != storage.DriverPostgres,
	})
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer func() { _ = store.Close() }()

	emb, err := embedder.New(embedder.Config{
		Provider:  cfg.Embedding.Provider,
		Host:      cfg.Embedding.Host,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}
	defer func() { _ = emb.Close() }()

	vectors, err := store.VectorCount(ctx)
	if err != nil {
		log.Fatalf("Failed to count vectors: %v", err)
	}
	fmt.Printf("Store: %s (%s, %s build), %d vectors\n", cfg.DatabasePath, store.Driver(), storage.BuildMode, vectors)
	fmt.Printf("Embedder: %s/%s, %d dimensions\n", emb.Provider(), emb.Model(), emb.Dimension())

	e, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: cfg.Embedding.QueryPrefix + text})
	if err != nil {
		log.Fatalf("Failed to embed query: %v", err)
	}

	matches, err := store.Search(ctx, e.Vector, *limit, cfg.Exact)
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}

	keys := make([]string, len(matches))
	for i, m := range matches {
		keys[i] = m.Key
	}
	rows, err := store.JoinByVectorKeys(ctx, keys)
	if err != nil {
		log.Fatalf("Join failed: %v", err)
	}
	byKey := make(map[string][]types.JoinedRow, len(keys))
	for _, r := range rows {
		byKey[r.HashedID] = append(byKey[r.HashedID], r)
	}

	fmt.Printf("\nTop %d matches for %q:\n", len(matches), text)
	for i, m := range matches {
		linked := byKey[m.Key]
		if len(linked) == 0 {
			fmt.Printf("%3d. %.4f  %s  (not in store)\n", i+1, m.Distance, m.Key)
			continue
		}
		codes := make([]string, 0, len(linked))
		for _, r := range linked {
			codes = append(codes, r.Location.NUTS)
		}
		a := linked[0]
		fmt.Printf("%3d. %.4f  %s  %s  %s  [%s]\n", i+1, m.Distance, a.ID, a.Date, a.URL, strings.Join(codes, " "))
	}
}
