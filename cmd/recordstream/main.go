// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/recordstream"
	"github.com/poiesic/recordstream/config"
	"github.com/poiesic/recordstream/core"
	"github.com/poiesic/recordstream/reembed"
	"github.com/poiesic/recordstream/search"
	"github.com/poiesic/recordstream/storage"
	"github.com/urfave/cli/v2"
)

// newService is replaced in tests to inject an embedder.
var newService = recordstream.NewService

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "recordstream",
		Usage: "Index records announced on a message broker for semantic search",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Directory containing recordstream.yaml",
				EnvVars: []string{"RECORDSTREAM_CONFIG_DIR"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format (text, json)",
				Value: "text",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "consume",
				Usage:  "Consume record events until interrupted",
				Action: consumeCommand,
			},
			{
				Name:      "index",
				Usage:     "Process a single record event read from a file, or - for stdin",
				ArgsUsage: "<event.json>",
				Action:    indexCommand,
			},
			{
				Name:   "status",
				Usage:  "Print the indexing status of a record",
				Action: statusCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Record ID",
						Required: true,
					},
				},
			},
			{
				Name:   "replay",
				Usage:  "Process every deferred update that is due, then exit",
				Action: replayCommand,
			},
			{
				Name:   "reembed",
				Usage:  "Regenerate the vectors of every stored chunk with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL (overrides embedding.host)",
					},
					&cli.StringFlag{
						Name:  "embedding-model",
						Usage: "Embedding model name (overrides embedding.model)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to embed per request",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts for each embedding request",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Find indexed chunks similar to a query",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of hits",
						Value: 5,
					},
					&cli.Float64Flag{
						Name:  "min-similarity",
						Usage: "Lowest similarity score returned",
						Value: 0.6,
					},
				},
			},
		},
	}
}

func openService(c *cli.Context, overrides ...func(*config.Settings)) (*recordstream.Service, *config.Store, error) {
	store, err := config.NewStore(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	settings := *store.Settings()
	for _, override := range overrides {
		override(&settings)
	}
	svc, err := newService(c.Context, &settings,
		recordstream.WithStore(store),
		recordstream.WithServiceLogger(slog.Default()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start service: %w", err)
	}
	return svc, store, nil
}

func consumeCommand(c *cli.Context) error {
	svc, store, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	current := store.Settings().Admission
	store.Subscribe(func(s *config.Settings) {
		if s.Admission != current {
			slog.Warn("admission settings changed; restart to apply", "rate_limit", s.Admission.RateLimit,
				"max_concurrent_tasks", s.Admission.MaxConcurrentTasks)
		}
	})
	store.Watch()

	sigCtx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		// A second signal terminates the process.
		stop()
		slog.Info("shutting down, waiting for in-flight records")
		svc.Stop()
	}()

	// In-flight records run to completion on shutdown, so Run does not get
	// the signal context.
	if err := svc.Run(context.WithoutCancel(c.Context)); err != nil {
		return err
	}
	stats := svc.Stats()
	if stats == nil {
		slog.Info("consumer stopped before it started")
		return nil
	}
	slog.Info("consumer finished",
		"admitted", stats.Admitted.Load(),
		"duplicates", stats.Duplicates.Load(),
		"failed", stats.Failed.Load(),
		"panicked", stats.Panicked.Load(),
	)
	return nil
}

func indexCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("event file is required")
	}
	var in io.Reader = c.App.Reader
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	raw, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	event, err := core.DecodeEvent(raw)
	if err != nil {
		return err
	}

	svc, _, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	if !svc.Dispatch(c.Context, event) {
		return fmt.Errorf("record %s was not indexed", event.Payload.RecordID)
	}
	return printStatus(c, svc, event.Payload.RecordID)
}

func statusCommand(c *cli.Context) error {
	svc, _, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()
	return printStatus(c, svc, c.String("id"))
}

func printStatus(c *cli.Context, svc *recordstream.Service, id string) error {
	record, err := svc.Record(c.Context, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("record %s not found", id)
	}
	if err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "record:     %s\n", record.ID)
	fmt.Fprintf(w, "virtual:    %s\n", record.VirtualRecordID)
	fmt.Fprintf(w, "indexing:   %s\n", record.IndexingStatus)
	fmt.Fprintf(w, "extraction: %s\n", record.ExtractionStatus)
	if record.Reason != "" {
		fmt.Fprintf(w, "reason:     %s\n", record.Reason)
	}
	if !record.LastIndexedAt.IsZero() {
		fmt.Fprintf(w, "indexed at: %s\n", record.LastIndexedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}

func replayCommand(c *cli.Context) error {
	svc, _, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	n, err := svc.DrainDeferred(c.Context)
	if err != nil {
		return err
	}
	pending, err := svc.PendingDeferred(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "replayed %d deferred updates, %d still waiting\n", n, pending)
	return nil
}

func reembedCommand(c *cli.Context) error {
	cfg := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	svc, _, err := openService(c, func(s *config.Settings) {
		if host := c.String("embedding-host"); host != "" {
			s.Embedding.Host = host
		}
		if model := c.String("embedding-model"); model != "" {
			s.Embedding.Model = model
		}
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.NewReembedder(cfg, c.App.ErrWriter).Run(c.Context); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if query == "" {
		return errors.New("query is required")
	}

	svc, _, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	searcher, err := svc.NewSearcher(search.WithMinSimilarity(float32(c.Float64("min-similarity"))))
	if err != nil {
		return err
	}
	results, err := searcher.FindSimilar(c.Context, query, c.Int("limit"))
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Fprintf(w, "%d: %s#%d [%0.3f] %s\n", i, hit.Chunk.RecordID, hit.Chunk.Index, hit.Score, snippet(hit.Chunk.Text, 80))
	}
	return nil
}

func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(c.String("log-format")) {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", c.String("log-format"))
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
