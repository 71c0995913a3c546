// Command webhook_simulator stands in for the render service during local
// runs. It finds pending render events in Redis and posts the completion
// callback the render service would send.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/patrickwarner/creativeloop/internal/config"
	"github.com/patrickwarner/creativeloop/internal/db"
	"github.com/patrickwarner/creativeloop/internal/models"
	"github.com/patrickwarner/creativeloop/internal/observability"
	"github.com/patrickwarner/creativeloop/internal/render"
	"github.com/patrickwarner/creativeloop/internal/token"
)

var (
	server      string
	redisAddr   string
	failRate    float64
	delay       time.Duration
	interval    time.Duration
	conc        int
	once        bool
	videoPrefix string
)

// secret signs callbacks when the server verifies render signatures.
var secret []byte

var (
	countSent    uint64
	countFailed  uint64
	countErrors  uint64
	countSkipped uint64
)

func main() {
	flag.StringVar(&server, "server", "http://localhost:8787", "creative loop base URL")
	flag.StringVar(&redisAddr, "redis", "", "redis address (defaults to REDIS_ADDR)")
	flag.Float64Var(&failRate, "fail-rate", 0, "probability a render is reported as failed")
	flag.DurationVar(&delay, "delay", 2*time.Second, "simulated render time before the callback")
	flag.DurationVar(&interval, "interval", time.Second, "how often to look for pending renders")
	flag.IntVar(&conc, "concurrency", 8, "concurrent callbacks")
	flag.BoolVar(&once, "once", false, "complete the current pending renders and exit")
	flag.StringVar(&videoPrefix, "video-prefix", "https://cdn.example.com/renders/", "URL prefix of simulated outputs")
	flag.Parse()

	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	if redisAddr == "" {
		redisAddr = cfg.RedisAddr
	}
	store, err := db.InitRedis(redisAddr, cfg.EventTTL)
	if err != nil {
		logger.Fatal("connect redis", zap.Error(err))
	}
	defer store.Close()

	secret = []byte(cfg.WebhookSigningSecret)
	callbackURL, err := webhookURL(server, cfg.WebhookToken)
	if err != nil {
		logger.Fatal("build webhook url", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 10 * time.Second}
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	seen := make(map[string]bool)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := sweep(ctx, logger, store, client, callbackURL, r, seen); err != nil {
			logger.Error("sweep pending renders", zap.Error(err))
		}
		if once {
			break
		}
		select {
		case <-ctx.Done():
			printStats()
			return
		case <-ticker.C:
		}
	}
	printStats()
}

// sweep completes every pending render not already handled.
func sweep(ctx context.Context, logger *zap.Logger, store *db.RedisStore, client *http.Client, callbackURL string, r *rand.Rand, seen map[string]bool) error {
	keys, err := store.ScanEvents(ctx, models.RenderEventPrefix)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conc)
	for _, key := range keys {
		if seen[key] {
			continue
		}
		ev, err := store.GetEvent(ctx, key)
		if err != nil || ev.Status != models.EventPending {
			atomic.AddUint64(&countSkipped, 1)
			continue
		}
		seen[key] = true

		renderID, _ := models.RenderIDFromKey(key)
		cb := callbackFor(renderID, ev.Payload, r.Float64() < failRate)
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-time.After(delay):
			}
			target, err := signedURL(callbackURL, ev.Payload)
			if err != nil {
				return err
			}
			if err := post(gctx, client, target, cb); err != nil {
				atomic.AddUint64(&countErrors, 1)
				logger.Warn("callback failed", zap.String("render_id", cb.ID), zap.Error(err))
				return nil
			}
			atomic.AddUint64(&countSent, 1)
			if cb.Status == render.StatusFailed {
				atomic.AddUint64(&countFailed, 1)
			}
			logger.Debug("callback sent", zap.String("render_id", cb.ID), zap.String("status", cb.Status))
			return nil
		})
	}
	return g.Wait()
}

// callbackFor builds the render payload the render service would post back.
func callbackFor(renderID string, p models.RenderPayload, failed bool) render.Render {
	meta, _ := json.Marshal(render.Metadata{BaseAdName: p.BaseAdName, HookName: p.HookName, FBAdID: p.FBAdID})
	cb := render.Render{ID: renderID, Metadata: string(meta)}
	if failed {
		cb.Status = render.StatusFailed
		cb.ErrorMessage = "simulated render failure"
		return cb
	}
	cb.Status = render.StatusSucceeded
	cb.URL = videoPrefix + renderID + ".mp4"
	return cb
}

func webhookURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = "/webhooks/creatomate"
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// signedURL adds the render signature the coordinator would have attached.
func signedURL(callbackURL string, p models.RenderPayload) (string, error) {
	if len(secret) == 0 {
		return callbackURL, nil
	}
	sig, err := token.Generate(p.FBAdID, p.HookName, time.Now(), secret)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(render.SignatureParam, sig)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func post(ctx context.Context, client *http.Client, callbackURL string, cb render.Render) error {
	body, err := json.Marshal(cb)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

func printStats() {
	fmt.Printf("callbacks sent=%d failed=%d errors=%d skipped=%d\n",
		atomic.LoadUint64(&countSent), atomic.LoadUint64(&countFailed),
		atomic.LoadUint64(&countErrors), atomic.LoadUint64(&countSkipped))
}
