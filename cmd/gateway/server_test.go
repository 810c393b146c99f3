package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/cogniguard/cogniguard/pkg/config"
	"github.com/cogniguard/cogniguard/pkg/engine"
)

func newTestApp() *fiber.App {
	cfg := config.NewPermissiveConfig()
	cfg.MaxMessageBytes = 1024
	return newServer(engine.NewOrchestrator(), cfg)
}

func postDetect(t *testing.T, app *fiber.App, body detectRequest) (int, []byte) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest("POST", "/v1/detect", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func TestDetectRoute(t *testing.T) {
	app := newTestApp()

	status, body := postDetect(t, app, detectRequest{Text: "api_key = sk-abcdefghijklmnopqrst"})
	if status != 200 {
		t.Fatalf("status = %d, want 200 (%s)", status, body)
	}
	var result engine.DetectionResult
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Level != engine.LevelCritical {
		t.Errorf("level = %s, want CRITICAL", result.Level)
	}
}

func TestDetectRouteRejectsEmptyText(t *testing.T) {
	app := newTestApp()

	status, _ := postDetect(t, app, detectRequest{Text: ""})
	if status != 400 {
		t.Errorf("status = %d, want 400 for empty text", status)
	}
}

func TestDetectRouteRejectsOversizedText(t *testing.T) {
	app := newTestApp()

	status, body := postDetect(t, app, detectRequest{Text: strings.Repeat("a", 2048)})
	if status != 400 {
		t.Errorf("status = %d, want 400 for text over the configured limit", status)
	}
	if !strings.Contains(string(body), "exceeds") {
		t.Errorf("error body should name the limit, got %s", body)
	}
}

func TestFeedbackRouteWithoutLearner(t *testing.T) {
	app := newTestApp()

	req := httptest.NewRequest("POST", "/v1/feedback", strings.NewReader(`{"text": "some missed attack"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 503 {
		t.Errorf("status = %d, want 503 when learning is disabled", resp.StatusCode)
	}
}

func TestHealthRoute(t *testing.T) {
	app := newTestApp()

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
