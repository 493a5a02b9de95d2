package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"noescape.gg/internal/config"
	"noescape.gg/internal/hostmirror"
	"noescape.gg/internal/sim/engine"
	"noescape.gg/internal/transport/ws"
)

func startEngine(t *testing.T, cfg config.Config, secret string) string {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	mirror := hostmirror.New()
	hub := ws.NewHub(logger)
	eng := engine.New(cfg, engine.Deps{
		World:       mirror,
		Permissions: mirror,
		Friends:     mirror,
		Clans:       mirror,
		Zones:       hub,
		Notifier:    hub,
		Announcer:   hub,
		Mapper:      hub,
		Logger:      logger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()
	srv := httptest.NewServer(ws.NewServer(eng, mirror, hub, ws.NewAuthenticator(secret), ws.Options{}, logger).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func fastConfig() config.Config {
	cfg := config.Default()
	cfg.Settings.Tick = 0.01
	cfg.Settings.UnblockDelay = 0.05
	cfg.Combat.Block.Enabled = true
	cfg.Combat.BlockWhen.GiveDamage = config.DamageCondition{Enabled: true, MinCondition: 100, MinDamage: 1}
	cfg.Combat.BlockWhen.TakeDamage = config.DamageCondition{Enabled: true, MinCondition: 100, MinDamage: 1}
	return cfg
}

func TestScenariosPassAgainstEngine(t *testing.T) {
	url := startEngine(t, fastConfig(), "")
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	failed, err := run(ctx, url, "test", "", "all", log.New(&out, "", 0))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if failed != 0 {
		t.Fatalf("%d scenarios failed:\n%s", failed, out.String())
	}
	for _, name := range []string{"PASS raid", "PASS death", "PASS combat"} {
		if !strings.Contains(out.String(), name) {
			t.Fatalf("missing %q in:\n%s", name, out.String())
		}
	}
}

func TestCombatSkippedWhenDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Settings.Tick = 0.01
	url := startEngine(t, cfg, "")
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	failed, err := run(ctx, url, "test", "", "raid,combat", log.New(&out, "", 0))
	if err != nil || failed != 0 {
		t.Fatalf("run: failed=%d err=%v\n%s", failed, err, out.String())
	}
	if !strings.Contains(out.String(), "SKIP combat") {
		t.Fatalf("combat should be skipped:\n%s", out.String())
	}
}

func TestRunSignsTokenWhenSecretSet(t *testing.T) {
	url := startEngine(t, fastConfig(), "s3cret")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := run(ctx, url, "test", "wrong", "raid", nil); err == nil {
		t.Fatalf("expected handshake failure with the wrong secret")
	}
	failed, err := run(ctx, url, "test", "s3cret", "raid", nil)
	if err != nil || failed != 0 {
		t.Fatalf("run with secret: failed=%d err=%v", failed, err)
	}
}

func TestSelectScenarios(t *testing.T) {
	all, err := selectScenarios("")
	if err != nil || len(all) != len(scenarios) {
		t.Fatalf("all: %d %v", len(all), err)
	}
	some, err := selectScenarios("death, raid")
	if err != nil || len(some) != 2 || some[0].name != "death" {
		t.Fatalf("subset: %+v %v", some, err)
	}
	if _, err := selectScenarios("pvp"); err == nil {
		t.Fatalf("expected unknown scenario error")
	}
}
