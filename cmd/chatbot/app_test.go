package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"enterprise-chatbot/internal/config"
	"enterprise-chatbot/internal/engine"
	"enterprise-chatbot/internal/loadtest"
)

func TestBuildTableFromConfig(t *testing.T) {
	table, err := buildTable([]config.CategoryConfig{{
		Name:     "billing",
		Keywords: []string{"invoice"},
		Templates: []config.TemplateConfig{{
			Format: "Invoice total: $%.0f",
			Params: []config.ParamConfig{{Min: 10, Max: 10}},
		}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if c, ok := table.Classify("where is my invoice?"); c != "billing" || !ok {
		t.Fatalf("expected billing, got %q", c)
	}
	if c, ok := table.Classify("sales forecast"); c != engine.General || ok {
		t.Fatalf("custom table must replace the defaults, got %q", c)
	}

	if _, err := buildTable([]config.CategoryConfig{{Name: "empty", Keywords: []string{"x"}}}); err == nil {
		t.Fatal("expected error for category without templates")
	}

	_, err = buildTable([]config.CategoryConfig{{
		Name:      "billing",
		Keywords:  []string{"invoice"},
		Templates: []config.TemplateConfig{{Format: "Invoice total: $%.0f plus %.0f tax"}},
	}})
	if err == nil {
		t.Fatal("expected error for template verbs without params")
	}
}

func TestLoadTestWithAuditAndReport(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.BaseLatency = time.Millisecond
	cfg.Engine.OptimizedLatency = time.Millisecond
	cfg.LoadTest = config.LoadTestConfig{Iterations: 6}
	cfg.Audit.DBPath = filepath.Join(t.TempDir(), "audit.db")

	ctx := context.Background()
	a, err := newApp(ctx, cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}

	rep := loadtest.NewDriver(a.loadTestConfig(), a.coordinator, zaptest.NewLogger(t)).Run(ctx)
	if rep.Completed != 6 {
		t.Fatalf("expected 6 queries, got %d", rep.Completed)
	}

	var out bytes.Buffer
	if err := printLoadTest(&out, rep, a.coordinator.Stats(), a.scaler.State(10)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "6/6") {
		t.Fatalf("expected completed count in output:\n%s", out.String())
	}

	out.Reset()
	if err := printReport(ctx, &out, a.recorder, time.Time{}, 5); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Total: 6 queries") {
		t.Fatalf("expected audit totals in report:\n%s", out.String())
	}

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewAppFailsFastOnUnreachableRedis(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Backend = "redis"
	cfg.Cache.RedisAddr = "127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := newApp(ctx, cfg, zaptest.NewLogger(t))
	if err == nil {
		t.Fatal("expected redis ping error")
	}
	if !strings.Contains(err.Error(), "cache backend redis") {
		t.Fatalf("expected the cache backend ping to fail startup, got %v", err)
	}
}
