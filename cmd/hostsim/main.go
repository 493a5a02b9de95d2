// Command hostsim plays a game server against a running engine: it connects
// over /v1/host, seeds players, replays raid, death and combat scenarios and
// checks the replies.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"

	"noescape.gg/internal/transport/ws"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/host", "host bridge url")
		serverID = flag.String("server_id", "hostsim", "server id sent in HELLO")
		secret   = flag.String("secret", "", "host secret to sign a token with (or set NOESCAPE_HOST_SECRET)")
		only     = flag.String("scenario", "all", "comma separated scenarios: raid,death,combat")
		timeout  = flag.Duration("timeout", 30*time.Second, "overall deadline")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[hostsim] ", log.LstdFlags|log.Lmicroseconds)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx, cancel2 := context.WithTimeout(ctx, *timeout)
	defer cancel2()

	sec := strings.TrimSpace(*secret)
	if sec == "" {
		sec = strings.TrimSpace(os.Getenv("NOESCAPE_HOST_SECRET"))
	}
	failed, err := run(ctx, *url, *serverID, sec, *only, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// run connects once and executes the selected scenarios, returning how many failed.
func run(ctx context.Context, url, serverID, secret, only string, logger *log.Logger) (int, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	list, err := selectScenarios(only)
	if err != nil {
		return 0, err
	}
	token := ""
	if secret != "" {
		if token, err = ws.IssueToken(secret, serverID, 10*time.Minute); err != nil {
			return 0, fmt.Errorf("issue token: %w", err)
		}
	}
	c, err := dial(ctx, url, serverID, token, logger)
	if err != nil {
		return 0, err
	}
	defer c.Close()
	logger.Printf("WELCOME session=%s subscriptions=%s", c.welcome.SessionID, strings.Join(c.welcome.Subscriptions, ","))

	ids := newCast(uuid.NewString()[:8])
	failed := 0
	for _, s := range list {
		missing := ""
		for _, ev := range s.needs {
			if !c.Subscribed(ev) {
				missing = ev
				break
			}
		}
		if missing != "" {
			logger.Printf("SKIP %s (engine does not handle %s)", s.name, missing)
			continue
		}
		start := time.Now()
		if err := s.run(ctx, c, ids); err != nil {
			failed++
			logger.Printf("FAIL %s: %v", s.name, err)
			continue
		}
		logger.Printf("PASS %s (%s)", s.name, time.Since(start).Round(time.Millisecond))
	}
	if errs := c.Errors(); len(errs) > 0 {
		for _, e := range errs {
			logger.Printf("engine error %s: %s", e.Code, e.Message)
		}
		failed += len(errs)
	}
	return failed, nil
}
