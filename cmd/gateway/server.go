package main

import (
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/cogniguard/cogniguard/pkg/config"
	"github.com/cogniguard/cogniguard/pkg/engine"
)

type detectRequest struct {
	Text           string `json:"text"`
	SenderRole     string `json:"sender_role"`
	ReceiverRole   string `json:"receiver_role"`
	ConversationID string `json:"conversation_id"`
}

type feedbackRequest struct {
	Text       string `json:"text"`
	ThreatType string `json:"threat_type"`
	ReportedBy string `json:"reported_by"`
	Notes      string `json:"notes"`
}

// newServer builds the fiber app with all gateway routes.
func newServer(orch *engine.Orchestrator, cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "CogniGuard v" + Version,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": Version,
		})
	})

	app.Post("/v1/detect", func(c fiber.Ctx) error {
		var req detectRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}
		if req.Text == "" {
			return c.Status(400).JSON(fiber.Map{"error": "text is required"})
		}
		if len(req.Text) > cfg.MaxMessageBytes {
			return c.Status(400).JSON(fiber.Map{
				"error": fmt.Sprintf("text exceeds %d bytes", cfg.MaxMessageBytes),
			})
		}

		start := time.Now()
		result := orch.Detect(c.Context(), engine.Message{
			Text:           req.Text,
			SenderRole:     req.SenderRole,
			ReceiverRole:   req.ReceiverRole,
			ConversationID: req.ConversationID,
		})
		if result.Level >= engine.LevelHigh {
			log.Printf("[gateway] %s threat detected: category=%s confidence=%.2f (%.1fms)",
				result.Level, result.Category, result.Confidence,
				float64(time.Since(start).Microseconds())/1000)
		}
		return c.JSON(result)
	})

	app.Post("/v1/feedback", func(c fiber.Ctx) error {
		lrn := orch.Learner()
		if lrn == nil {
			return c.Status(503).JSON(fiber.Map{"error": "adaptive learning is disabled"})
		}
		var req feedbackRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}
		if req.Text == "" {
			return c.Status(400).JSON(fiber.Map{"error": "text is required"})
		}
		if req.ThreatType == "" {
			req.ThreatType = "prompt_injection"
		}
		added, err := lrn.ReportMiss(c.Context(), req.Text, req.ThreatType, req.ReportedBy, req.Notes)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		// Confirmed misses also enrich the semantic corpus
		if added && orch.Semantic() != nil {
			if err := orch.Semantic().AddExemplar(c.Context(), engine.ThreatExemplar{
				Text:     req.Text,
				Category: req.ThreatType,
				Severity: 0.9,
			}); err != nil {
				log.Printf("[gateway] Could not index reported threat as exemplar: %v", err)
			}
		}
		return c.JSON(fiber.Map{"added": added})
	})

	app.Delete("/v1/feedback", func(c fiber.Ctx) error {
		lrn := orch.Learner()
		if lrn == nil {
			return c.Status(503).JSON(fiber.Map{"error": "adaptive learning is disabled"})
		}
		var req feedbackRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}
		removed, err := lrn.Remove(c.Context(), req.Text)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"removed": removed})
	})

	app.Get("/v1/feedback/stats", func(c fiber.Ctx) error {
		lrn := orch.Learner()
		if lrn == nil {
			return c.Status(503).JSON(fiber.Map{"error": "adaptive learning is disabled"})
		}
		return c.JSON(lrn.Stats())
	})

	app.Get("/v1/conversations/:id", func(c fiber.Ctx) error {
		tracker := orch.Tracker()
		if tracker == nil {
			return c.Status(503).JSON(fiber.Map{"error": "conversation tracking is disabled"})
		}
		summary, ok := tracker.Summarize(c.Params("id"))
		if !ok {
			return c.Status(404).JSON(fiber.Map{"error": "conversation not found"})
		}
		return c.JSON(summary)
	})

	app.Delete("/v1/conversations/:id", func(c fiber.Ctx) error {
		tracker := orch.Tracker()
		if tracker == nil {
			return c.Status(503).JSON(fiber.Map{"error": "conversation tracking is disabled"})
		}
		return c.JSON(fiber.Map{"cleared": tracker.Clear(c.Params("id"))})
	})

	return app
}
