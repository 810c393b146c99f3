package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cogniguard/cogniguard/pkg/config"
	"github.com/cogniguard/cogniguard/pkg/conversation"
	"github.com/cogniguard/cogniguard/pkg/engine"
	"github.com/cogniguard/cogniguard/pkg/learner"
)

const Version = "1.0.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		profile := ""
		if len(os.Args) > 2 {
			profile = os.Args[2]
		}
		runServer(profile)
	case "scan":
		if len(os.Args) < 3 {
			fmt.Println("Usage: cogniguard scan <text>")
			os.Exit(1)
		}
		runCLIScan(strings.Join(os.Args[2:], " "))
	case "version":
		fmt.Printf("CogniGuard v%s\n", Version)
		fmt.Println("Threat detection gateway for AI agent messages")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("CogniGuard v%s - AI agent message threat detection\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  cogniguard serve [profile]   Start HTTP gateway (profile: strict, balanced, permissive, local)")
	fmt.Println("  cogniguard scan <text>       Classify a single message")
	fmt.Println("  cogniguard version           Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  COGNIGUARD_LISTEN_ADDR       HTTP listen address (default: :8080)")
	fmt.Println("  COGNIGUARD_EMBEDDER          Embedding backend: local, http, none")
	fmt.Println("  COGNIGUARD_EMBED_API_KEY     API key for the http embedding backend")
	fmt.Println("  COGNIGUARD_STORE             Learned threat store: file, redis, postgres")
	fmt.Println("  COGNIGUARD_SEED_DIR          Directory of YAML exemplar seed files")
}

// buildPipeline wires the detection stages from configuration. Every
// optional stage degrades gracefully: init failures are logged and the
// pipeline runs without that stage.
func buildPipeline(cfg *config.Config) (*engine.Orchestrator, func(), error) {
	var opts []engine.OrchestratorOption
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	embedder, err := engine.NewEmbedder(engine.EmbedderConfig{
		Provider:  string(cfg.EmbedderProvider),
		APIKey:    cfg.EmbedderAPIKey,
		Model:     cfg.EmbedderModel,
		BaseURL:   cfg.EmbedderBaseURL,
		Dimension: cfg.EmbedderDim,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	if closer, ok := embedder.(interface{ Close() error }); ok {
		cleanups = append(cleanups, func() { _ = closer.Close() })
	}

	haveEmbeddings := true
	if _, noop := embedder.(*engine.NoOpEmbedder); noop {
		haveEmbeddings = false
	}

	if cfg.EnableSemantics && haveEmbeddings {
		semantic, err := engine.NewSemanticStage(embedder,
			engine.WithBands(cfg.SemanticCriticalBand, cfg.SemanticHighBand, cfg.SemanticMediumBand))
		if err != nil {
			log.Printf("○ Semantic stage disabled (init failed: %v)", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
			err := semantic.LoadExemplars(ctx, engine.CorpusExemplars())
			cancel()
			if err != nil {
				log.Printf("○ Semantic stage disabled (exemplar load failed: %v)", err)
			} else {
				opts = append(opts, engine.WithSemanticStage(semantic))
				log.Printf("✓ Semantic stage enabled (%d exemplars)", semantic.ExemplarCount())
			}
		}
	} else {
		log.Println("○ Semantic stage disabled")
	}

	if cfg.EnableConversation {
		tracker := conversation.NewTracker(
			conversation.WithMaxMessages(cfg.ConversationWindow),
			conversation.WithTTL(cfg.ConversationTTL),
			conversation.WithCleanupInterval(cfg.CleanupInterval),
		)
		cleanups = append(cleanups, tracker.Close)
		opts = append(opts, engine.WithTracker(tracker))
		log.Printf("✓ Conversation tracking enabled (window=%d, ttl=%s)",
			cfg.ConversationWindow, cfg.ConversationTTL)
	} else {
		log.Println("○ Conversation tracking disabled")
	}

	if cfg.EnableLearning {
		store, err := buildStore(cfg)
		if err != nil {
			log.Printf("○ Adaptive learning disabled (store init failed: %v)", err)
		} else {
			switch c := store.(type) {
			case interface{ Close() error }:
				cleanups = append(cleanups, func() { _ = c.Close() })
			case interface{ Close() }:
				cleanups = append(cleanups, c.Close)
			}
			var embed learner.Embedder
			if haveEmbeddings {
				embed = embedder
			}
			lrn, err := learner.New(context.Background(), store, embed,
				learner.WithThreshold(cfg.LearnerThreshold))
			if err != nil {
				log.Printf("○ Adaptive learning disabled (init failed: %v)", err)
			} else {
				opts = append(opts, engine.WithLearner(lrn))
				log.Printf("✓ Adaptive learning enabled (store=%s)", cfg.StoreBackend)
			}
		}
	} else {
		log.Println("○ Adaptive learning disabled")
	}

	return engine.NewOrchestrator(opts...), cleanup, nil
}

func buildStore(cfg *config.Config) (learner.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.StoreBackend {
	case config.StoreFile:
		return learner.NewFileStore(cfg.StorePath), nil
	case config.StoreRedis:
		return learner.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	case config.StorePostgres:
		return learner.NewPostgresStore(ctx, cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func runServer(profile string) {
	cfg, err := config.Profile(profile)
	if err != nil {
		log.Fatalf("[STARTUP] %v", err)
	}
	cfg.MustValidate()

	orch, cleanup, err := buildPipeline(cfg)
	if err != nil {
		log.Fatalf("[STARTUP] %v", err)
	}
	defer cleanup()

	app := newServer(orch, cfg)

	// Graceful shutdown on SIGINT/SIGTERM
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("[SHUTDOWN] Signal received, draining connections...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("[SHUTDOWN] Forced: %v", err)
		}
	}()

	log.Printf("CogniGuard v%s listening on %s", Version, cfg.ListenAddr)
	if err := app.Listen(cfg.ListenAddr); err != nil {
		log.Fatal(err)
	}
	log.Println("[SHUTDOWN] Server stopped")
}

func runCLIScan(text string) {
	cfg := config.NewDefaultConfig()
	orch, cleanup, err := buildPipeline(cfg)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	defer cleanup()

	result := orch.Detect(context.Background(), engine.Message{Text: text, SenderRole: "user"})
	output, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(output))
}
