package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"noescape.gg/internal/config"
	"noescape.gg/internal/hostmirror"
	"noescape.gg/internal/persistence/indexdb"
	"noescape.gg/internal/persistence/r2s3"
	persistlog "noescape.gg/internal/persistence/log"
	"noescape.gg/internal/sim/engine"
	"noescape.gg/internal/transport/ws"
)

func main() {
	var (
		envFile    = flag.String("env", ".env", "optional env file with NOESCAPE_* overrides")
		addr       = flag.String("addr", "", "http listen address (default $NOESCAPE_ADDR or :8080)")
		configPath = flag.String("config", "", "config path (default $NOESCAPE_CONFIG or ./configs/noescape.yaml)")
		dataDir    = flag.String("data", "", "runtime data directory (default $NOESCAPE_DATA or ./data)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite event index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[noescape] ", log.LstdFlags|log.Lmicroseconds)

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		logger.Printf("env file %s: %v", *envFile, err)
	}
	listen := firstNonEmpty(*addr, os.Getenv("NOESCAPE_ADDR"), ":8080")
	cfgPath := firstNonEmpty(*configPath, os.Getenv("NOESCAPE_CONFIG"), filepath.Join("configs", "noescape.yaml"))
	data := firstNonEmpty(*dataDir, os.Getenv("NOESCAPE_DATA"), "data")

	cfg, _, err := config.LoadOrInit(cfgPath, logger)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	digest, err := configDigest(cfg)
	if err != nil {
		logger.Fatalf("config digest: %v", err)
	}

	// Declared before the block log so its deferred Close runs after the
	// log's final file has been handed over.
	archive, err := openArchive(logger)
	if err != nil {
		logger.Fatalf("archive: %v", err)
	}
	defer archive.Close()

	blockLog := persistlog.NewBlockLogger(data)
	if archive != nil {
		blockLog.OnFileClosed(archive.Enqueue)
	}
	defer blockLog.Close()

	sinks := multiSink{blockLog}
	var idx *indexdb.SQLiteIndex
	if !*disableDB && envBool("NOESCAPE_ENABLE_INDEX", true) {
		idx, err = indexdb.OpenSQLite(filepath.Join(data, "index", "noescape.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		sinks = append(sinks, idx)
	} else {
		logger.Printf("event index disabled")
	}

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
		Sink:        sinks,
		Logger:      logger,
	})

	ctx, cancel := signalContext()
	defer cancel()

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("engine stopped: %v", err)
		}
	}()

	auth := ws.NewAuthenticator(os.Getenv("NOESCAPE_HOST_SECRET"))
	if !auth.Enabled() {
		logger.Printf("host auth disabled (NOESCAPE_HOST_SECRET unset)")
	}
	bridge := ws.NewServer(eng, mirror, hub, auth, ws.Options{
		ConfigDigest: digest,
		Rate:         envFloat("NOESCAPE_HOST_RATE", 200),
		Burst:        envInt("NOESCAPE_HOST_BURST", 400),
		QueueSize:    envInt("NOESCAPE_HOST_QUEUE", 1024),
	}, logger)

	ops := &opsHandler{eng: eng, hub: hub, blockLog: blockLog}
	if archive != nil {
		ops.archive = archive
	}
	if idx != nil {
		ops.idx = idx
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", ops.metrics)
	mux.HandleFunc("/v1/host", bridge.Handler())

	if envBool("NOESCAPE_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("/admin/v1/state", ops.state)
		mux.HandleFunc("/admin/v1/stop", ops.stop)
	} else {
		logger.Printf("admin endpoints disabled (NOESCAPE_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("NOESCAPE_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (config=%s data=%s digest=%s)", listen, cfgPath, data, digest[:12])
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	cancel()
	<-engineDone
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// configDigest hashes the normalized yaml so hosts can compare configs across restarts.
func configDigest(cfg config.Config) (string, error) {
	b, err := config.Encode(cfg)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// openArchive returns nil when NOESCAPE_R2_BUCKET is unset.
func openArchive(logger *log.Logger) (*r2s3.Uploader, error) {
	bucket := strings.TrimSpace(os.Getenv("NOESCAPE_R2_BUCKET"))
	if bucket == "" {
		return nil, nil
	}
	client, err := r2s3.New(r2s3.Credentials{
		Endpoint:  os.Getenv("NOESCAPE_R2_ENDPOINT"),
		Bucket:    bucket,
		Region:    os.Getenv("NOESCAPE_R2_REGION"),
		AccessKey: os.Getenv("NOESCAPE_R2_ACCESS_KEY_ID"),
		SecretKey: os.Getenv("NOESCAPE_R2_SECRET_ACCESS_KEY"),
	})
	if err != nil {
		return nil, err
	}
	prefix := firstNonEmpty(os.Getenv("NOESCAPE_R2_PREFIX"), "noescape/events")
	logger.Printf("archiving block logs to r2 bucket=%s prefix=%s", bucket, prefix)
	return r2s3.NewUploader(client, prefix, envInt("NOESCAPE_R2_QUEUE", 256), logger), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}
