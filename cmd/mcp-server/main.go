package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/app"
	"github.com/patrickwarner/creativeloop/internal/config"
	"github.com/patrickwarner/creativeloop/internal/db"
	"github.com/patrickwarner/creativeloop/internal/logic"
	"github.com/patrickwarner/creativeloop/internal/reporting"
)

func main() {
	// stdout carries the MCP stream, so logs go to stderr.
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.MessageKey = "msg"

	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("creativeloop-mcp").With(zap.String("service", "creativeloop-mcp"))

	cfg := config.Load()

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pg.Close()

	cs := &CreativeServer{
		ads: pg,
		report: func(ctx context.Context) (*reporting.Summary, error) {
			return reporting.GenerateSummary(ctx, pg.DB, cfg.SpendThreshold, app.ReportTopAds)
		},
		thresholds: logic.ThresholdsFromConfig(cfg),
		logger:     logger,
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "creativeloop",
		Version: "1.0.0",
	}, nil)
	cs.register(server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logBuffer bytes.Buffer
	transport := &mcp.LoggingTransport{
		Transport: &mcp.StdioTransport{},
		Writer:    &logBuffer,
	}

	logger.Info("MCP server running via stdio")
	if err := server.Run(ctx, transport); err != nil {
		logger.Error("Server error", zap.Error(err), zap.String("mcp_logs", logBuffer.String()))
		os.Exit(1)
	}
}
