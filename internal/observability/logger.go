package observability

import (
	"math/rand"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger builds the production logger for the default service name.
func InitLogger() (*zap.Logger, error) {
	return InitLoggerWithService("creativeloop")
}

// InitLoggerWithService builds a production JSON logger named after
// serviceName and installs it as the zap global. The level comes from
// LOG_LEVEL, falling back to a default for ENV.
func InitLoggerWithService(serviceName string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(os.Getenv("ENV"), os.Getenv("LOG_LEVEL")))

	// Field names match what the log shipper indexes on.
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.NameKey = "logger"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	logger = logger.Named(serviceName).With(zap.String("service", serviceName))
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// ParseLevel resolves the log level. An explicit level wins; otherwise
// development environments log at debug and everything else at info.
func ParseLevel(env, level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zap.DebugLevel
	case "INFO":
		return zap.InfoLevel
	case "WARN":
		return zap.WarnLevel
	case "ERROR":
		return zap.ErrorLevel
	}
	switch strings.ToLower(env) {
	case "development", "dev":
		return zap.DebugLevel
	default:
		return zap.InfoLevel
	}
}

// SamplingRateForEnv is the default share of routine per-ad log lines kept
// in env.
func SamplingRateForEnv(env string) float64 {
	switch strings.ToLower(env) {
	case "development", "dev":
		return 1.0
	case "staging", "test":
		return 0.5
	default:
		return 0.1
	}
}

// SamplingStats counts sampling decisions since the last flush.
type SamplingStats struct {
	Total   int64
	Sampled int64
	Rate    float64
}

// Sampler keeps a share of high-volume log lines. It is safe for
// concurrent use.
type Sampler struct {
	rate  float64
	rnd   func() float64
	mu    sync.Mutex
	stats SamplingStats
}

// NewSampler keeps roughly rate of the lines it is asked about. Rates at or
// above 1 keep everything; rates at or below 0 keep nothing.
func NewSampler(rate float64) *Sampler {
	return NewSamplerWithSource(rate, rand.Float64)
}

// NewSamplerWithSource is NewSampler with an explicit random source in [0,1).
func NewSamplerWithSource(rate float64, rnd func() float64) *Sampler {
	return &Sampler{rate: rate, rnd: rnd, stats: SamplingStats{Rate: rate}}
}

// Allow reports whether the next line should be written.
func (s *Sampler) Allow() bool {
	var keep bool
	switch {
	case s.rate >= 1:
		keep = true
	case s.rate <= 0:
		keep = false
	default:
		keep = s.rnd() < s.rate
	}

	s.mu.Lock()
	s.stats.Total++
	if keep {
		s.stats.Sampled++
	}
	s.mu.Unlock()
	return keep
}

// Stats returns the counts since the last flush.
func (s *Sampler) Stats() SamplingStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Flush logs the counts gathered since the previous flush and resets them.
// Nothing is logged when no line was considered.
func (s *Sampler) Flush(logger *zap.Logger) SamplingStats {
	s.mu.Lock()
	stats := s.stats
	s.stats = SamplingStats{Rate: s.rate}
	s.mu.Unlock()

	if stats.Total == 0 {
		return stats
	}
	logger.Info("log sampling stats",
		zap.Float64("target_rate", stats.Rate),
		zap.Float64("actual_rate", float64(stats.Sampled)/float64(stats.Total)),
		zap.Int64("total_logs", stats.Total),
		zap.Int64("sampled_logs", stats.Sampled))
	return stats
}
