package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"manual-qa-backend/internal/ai"
	"manual-qa-backend/internal/config"
	"manual-qa-backend/internal/logger"
	"manual-qa-backend/internal/store"
	"manual-qa-backend/models"
	"manual-qa-backend/services"
)

// One-shot index build: parse, chunk, embed, persist, exit. Useful for
// priming STORAGE_DIR in CI or before first deploy.
func main() {
	pdfPath := flag.String("pdf", "", "path to the manual PDF (default: PDF_PATH from env)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	path := *pdfPath
	if path == "" {
		path = cfg.PDFPath
	}
	if path == "" {
		log.Fatal("No PDF given: pass -pdf or set PDF_PATH")
	}

	embedder := ai.NewEmbeddingClient(cfg.GeminiAPIKey, cfg.EmbeddingModel)
	defer embedder.Close()

	st := store.New(cfg.StorageDir)
	indexer := services.NewEmbeddingIndexer(embedder)
	coordinator := services.NewCoordinator(cfg, indexer, st, nil)

	if err := coordinator.Start(path); err != nil {
		log.Fatal("Failed to start build:", err)
	}

	for {
		state := coordinator.Snapshot()
		fmt.Printf("\r%-10s %5.1f%%  %s", state.Status, state.Progress*100, state.Message)
		switch state.Status {
		case models.BuildReady:
			fmt.Println()
			pair := coordinator.Pair()
			fmt.Printf("Indexed %d sections, %d chunks into %s\n", len(pair.Sections), len(pair.Chunks), st.CurrentDir())
			return
		case models.BuildError:
			fmt.Println()
			fmt.Fprintln(os.Stderr, "Build failed:", state.LastError)
			os.Exit(1)
		}
		time.Sleep(500 * time.Millisecond)
	}
}
