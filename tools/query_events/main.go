package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/patrickwarner/creativeloop/internal/config"
	"github.com/patrickwarner/creativeloop/internal/db"
	"github.com/patrickwarner/creativeloop/internal/models"
	"github.com/patrickwarner/creativeloop/internal/observability"
)

func main() {
	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	var renderID string
	var addr string
	flag.StringVar(&renderID, "render", "", "render id; all render events when empty")
	flag.StringVar(&addr, "redis", "", "Redis address")
	flag.Parse()

	cfg := config.Load()
	if addr == "" {
		addr = cfg.RedisAddr
	}

	store, err := db.InitRedis(addr, cfg.EventTTL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect redis: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	keys := []string{models.RenderEventKey(renderID)}
	if renderID == "" {
		keys, err = store.ScanEvents(ctx, models.RenderEventPrefix)
		if err != nil {
			fmt.Fprintf(os.Stderr, "scan events: %v\n", err)
			os.Exit(1)
		}
	}

	events := make([]*models.Event, 0, len(keys))
	for _, key := range keys {
		ev, err := store.GetEvent(ctx, key)
		if err != nil {
			fmt.Fprintf(os.Stderr, "get event %s: %v\n", key, err)
			os.Exit(1)
		}
		events = append(events, ev)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		fmt.Fprintf(os.Stderr, "encode events: %v\n", err)
		os.Exit(1)
	}
}
