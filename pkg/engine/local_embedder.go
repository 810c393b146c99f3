package engine

// local_embedder.go - Local ONNX embedding generation using Hugot
//
// Provides fully offline embeddings for the semantic stage and the learner.
// Uses ONNX Runtime when libonnxruntime is installed, otherwise falls back to
// the pure Go backend. Gracefully degrades to nil when no model is available.
//
// Build:
// - Standard: go build (uses Go backend, slower but no dependencies)
// - With ORT: go build -tags ORT (uses ONNX Runtime, faster)

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"
)

// ModelMiniLM is the default sentence-transformers embedding model
// (all-MiniLM-L6-v2, Apache 2.0, 384 dimensions, ~90MB).
const ModelMiniLM = "sentence-transformers/all-MiniLM-L6-v2"

const miniLMDimension = 384

// LocalEmbedder implements EmbeddingProvider with a local ONNX model.
type LocalEmbedder struct {
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
	mu       sync.RWMutex
	ready    bool
}

// LocalEmbedderConfig configures the local embedder.
type LocalEmbedderConfig struct {
	// ModelPath is the local path to the ONNX model directory.
	// If empty and ModelName is set, the model will be downloaded.
	ModelPath string

	// ModelName is the HuggingFace model name, used to download when
	// ModelPath is missing.
	ModelName string

	// OnnxLibraryPath is the directory containing libonnxruntime.
	OnnxLibraryPath string
}

// localModelSearchPaths lists where to look for an embedding model.
var localModelSearchPaths = []string{
	"./models/minilm",
	"./models/all-MiniLM-L6-v2",
}

// NewAutoDetectedLocalEmbedder creates a local embedder from the first model
// found on disk, downloading MiniLM when COGNIGUARD_AUTO_DOWNLOAD_MODEL is
// set. Returns nil when no model is available.
func NewAutoDetectedLocalEmbedder() *LocalEmbedder {
	if envPath := os.Getenv("COGNIGUARD_EMBED_MODEL_PATH"); envPath != "" {
		if _, err := os.Stat(filepath.Join(envPath, "model.onnx")); err == nil {
			if e, err := NewLocalEmbedder(LocalEmbedderConfig{ModelPath: envPath, OnnxLibraryPath: defaultOnnxPath()}); err == nil {
				return e
			}
		}
	}

	for _, path := range localModelSearchPaths {
		if _, err := os.Stat(filepath.Join(path, "model.onnx")); err == nil {
			e, err := NewLocalEmbedder(LocalEmbedderConfig{ModelPath: path, OnnxLibraryPath: defaultOnnxPath()})
			if err == nil {
				log.Printf("[embedder] Local ONNX embedder ready (model: %s)", path)
				return e
			}
			log.Printf("[embedder] Local embedder init failed for %s: %v", path, err)
		}
	}

	autoDownload := os.Getenv("COGNIGUARD_AUTO_DOWNLOAD_MODEL")
	if autoDownload == "true" || autoDownload == "1" {
		log.Printf("[embedder] No local embedding model found, downloading %s...", ModelMiniLM)
		e, err := NewLocalEmbedder(LocalEmbedderConfig{
			ModelName:       ModelMiniLM,
			ModelPath:       "./models/minilm",
			OnnxLibraryPath: defaultOnnxPath(),
		})
		if err != nil {
			log.Printf("[embedder] Auto-download failed: %v", err)
			return nil
		}
		return e
	}

	return nil
}

// defaultOnnxPath returns the ONNX Runtime library directory for this host.
func defaultOnnxPath() string {
	paths := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return filepath.Dir(p)
		}
	}
	return ""
}

// NewLocalEmbedder creates a local embedder with the given configuration.
func NewLocalEmbedder(cfg LocalEmbedderConfig) (*LocalEmbedder, error) {
	e := &LocalEmbedder{}

	session, err := createSession(cfg.OnnxLibraryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	e.session = session

	modelPath, err := resolveModelPath(cfg)
	if err != nil {
		_ = session.Destroy()
		return nil, fmt.Errorf("failed to resolve model path: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "message-embedder",
	}

	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		_ = session.Destroy()
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	e.pipeline = pipeline
	e.ready = true
	return e, nil
}

// createSession creates the Hugot session, preferring the ONNX Runtime
// backend and falling back to the pure Go backend.
func createSession(onnxLibraryPath string) (*hugot.Session, error) {
	if onnxLibraryPath != "" {
		session, err := hugot.NewORTSession(options.WithOnnxLibraryPath(onnxLibraryPath))
		if err == nil {
			log.Printf("[embedder] Using ONNX Runtime backend")
			return session, nil
		}
		log.Printf("[embedder] ONNX Runtime unavailable, falling back to Go backend: %v", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Go session: %w", err)
	}
	log.Printf("[embedder] Using pure Go backend (slower, consider installing ONNX Runtime)")
	return session, nil
}

// resolveModelPath ensures the model is available locally.
func resolveModelPath(cfg LocalEmbedderConfig) (string, error) {
	if cfg.ModelPath != "" {
		if _, err := os.Stat(cfg.ModelPath); err == nil {
			return cfg.ModelPath, nil
		}
	}

	if cfg.ModelName == "" {
		return "", fmt.Errorf("no model path or name specified")
	}

	modelsDir := "./models"
	if err := os.MkdirAll(modelsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create models directory: %w", err)
	}

	log.Printf("[embedder] Downloading model %s...", cfg.ModelName)
	modelPath, err := hugot.DownloadModel(cfg.ModelName, modelsDir, hugot.NewDownloadOptions())
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}

	log.Printf("[embedder] Model downloaded to %s", modelPath)
	return modelPath, nil
}

// IsReady reports whether the embedder can serve requests.
func (e *LocalEmbedder) IsReady() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

// Embed generates an embedding for a single text.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 || embeddings[0] == nil {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.ready || e.pipeline == nil {
		return nil, fmt.Errorf("local embedder not ready")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	result, err := e.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, fmt.Errorf("embedding inference failed: %w", err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	return result.Embeddings, nil
}

// Dimension returns the embedding dimension.
func (e *LocalEmbedder) Dimension() int {
	return miniLMDimension
}

// Close releases the underlying session.
func (e *LocalEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ready = false
	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
	}
	return nil
}
