package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

func stateCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("state", flag.ContinueOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	if err := fs.Parse(args); err != nil {
		return err
	}
	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	req, _ := http.NewRequest(http.MethodGet, u, nil)
	return doAdmin(req, out)
}

func stopCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("stop", flag.ContinueOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	actor := fs.String("actor", "", "actor id (required)")
	kind := fs.String("kind", "", "raid|combat (default: every kind)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*actor) == "" {
		return fmt.Errorf("missing -actor")
	}
	q := url.Values{"actor": {strings.TrimSpace(*actor)}}
	if *kind != "" {
		q.Set("kind", *kind)
	}
	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/stop?" + q.Encode()
	req, _ := http.NewRequest(http.MethodPost, u, nil)
	return doAdmin(req, out)
}

func doAdmin(req *http.Request, out io.Writer) error {
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(out, strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s: %s", req.URL.Path, resp.Status)
	}
	return nil
}
