// Package macros expands tracking macros in the landing page URL of launched
// creatives, so every hook ad carries its own attribution parameters.
package macros

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Expander replaces {MACRO} placeholders in link URLs.
type Expander struct {
	logger       *zap.Logger
	expansions   map[string]ExpansionFunc
	expansionsMu sync.RWMutex
	strictMode   bool // any failed macro fails the whole expansion

	expansionCounter *prometheus.CounterVec
	failureCounter   *prometheus.CounterVec
}

// ExpansionFunc computes the value of one macro.
type ExpansionFunc func(ctx *Context) (string, error)

// Context is the data available to macros for one launched ad.
type Context struct {
	AdName       string
	ParentAdID   string
	ParentAdName string
	HookName     string
	Vertical     string
	CampaignID   string
	AccountID    string
	Counter      int64
	Timestamp    time.Time
}

// NewExpander creates an Expander with the default macros. Metrics are
// registered on reg; a nil reg leaves them unregistered.
func NewExpander(logger *zap.Logger, reg prometheus.Registerer, strictMode bool) *Expander {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	e := &Expander{
		logger:     logger,
		expansions: make(map[string]ExpansionFunc),
		strictMode: strictMode,
		expansionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "link_macro_expansions_total",
				Help: "Total number of link URL macro expansions performed",
			},
			[]string{"macro", "success"},
		),
		failureCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "link_macro_expansion_failures_total",
				Help: "Total number of link URL macro expansion failures",
			},
			[]string{"macro"},
		),
	}
	e.registerDefaultMacros()
	return e
}

// ExpandURL expands every known macro in rawURL. Values are query-escaped.
// In lenient mode a failing macro is left in place and logged.
func (e *Expander) ExpandURL(rawURL string, ctx *Context) (string, error) {
	if rawURL == "" {
		return "", nil
	}
	if _, err := url.Parse(rawURL); err != nil {
		return rawURL, fmt.Errorf("parse link url: %w", err)
	}

	e.expansionsMu.RLock()
	defer e.expansionsMu.RUnlock()

	var replacements []string
	for macro, fn := range e.expansions {
		placeholder := "{" + macro + "}"
		if !strings.Contains(rawURL, placeholder) {
			continue
		}
		value, err := fn(ctx)
		if err != nil {
			e.expansionCounter.WithLabelValues(macro, "false").Inc()
			e.failureCounter.WithLabelValues(macro).Inc()
			if e.strictMode {
				return "", fmt.Errorf("expand macro %s: %w", macro, err)
			}
			e.logger.Warn("link macro expansion failed", zap.String("macro", macro), zap.Error(err))
			continue
		}
		replacements = append(replacements, placeholder, url.QueryEscape(value))
		e.expansionCounter.WithLabelValues(macro, "true").Inc()
	}
	if len(replacements) == 0 {
		return rawURL, nil
	}
	return strings.NewReplacer(replacements...).Replace(rawURL), nil
}

// RegisterMacro adds or replaces a macro.
func (e *Expander) RegisterMacro(name string, fn ExpansionFunc) error {
	if name == "" {
		return fmt.Errorf("macro name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("expansion function cannot be nil")
	}
	e.expansionsMu.Lock()
	defer e.expansionsMu.Unlock()
	e.expansions[name] = fn
	return nil
}

// Macros returns the registered macro names, sorted.
func (e *Expander) Macros() []string {
	e.expansionsMu.RLock()
	defer e.expansionsMu.RUnlock()
	names := make([]string, 0, len(e.expansions))
	for name := range e.expansions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateURL returns the placeholders in rawURL that no macro handles.
func (e *Expander) ValidateURL(rawURL string) []string {
	var unsupported []string
	rest := rawURL
	for {
		start := strings.Index(rest, "{")
		if start == -1 {
			break
		}
		end := strings.Index(rest[start:], "}")
		if end == -1 {
			break
		}
		macro := rest[start+1 : start+end]

		e.expansionsMu.RLock()
		_, ok := e.expansions[macro]
		e.expansionsMu.RUnlock()
		if !ok {
			unsupported = append(unsupported, macro)
		}
		rest = rest[start+end+1:]
	}
	return unsupported
}

func (e *Expander) registerDefaultMacros() {
	e.expansions["AD_NAME"] = func(ctx *Context) (string, error) { return ctx.AdName, nil }
	e.expansions["PARENT_AD_ID"] = func(ctx *Context) (string, error) { return ctx.ParentAdID, nil }
	e.expansions["PARENT_AD_NAME"] = func(ctx *Context) (string, error) { return ctx.ParentAdName, nil }
	e.expansions["HOOK"] = func(ctx *Context) (string, error) { return ctx.HookName, nil }
	e.expansions["VERTICAL"] = func(ctx *Context) (string, error) { return ctx.Vertical, nil }
	e.expansions["CAMPAIGN_ID"] = func(ctx *Context) (string, error) { return ctx.CampaignID, nil }
	e.expansions["ACCOUNT_ID"] = func(ctx *Context) (string, error) { return ctx.AccountID, nil }
	e.expansions["COUNTER"] = func(ctx *Context) (string, error) {
		return strconv.FormatInt(ctx.Counter, 10), nil
	}

	e.expansions["TIMESTAMP"] = func(ctx *Context) (string, error) {
		return strconv.FormatInt(ctx.Timestamp.Unix(), 10), nil
	}
	e.expansions["ISO_TIMESTAMP"] = func(ctx *Context) (string, error) {
		return ctx.Timestamp.UTC().Format(time.RFC3339), nil
	}
	e.expansions["UUID"] = func(ctx *Context) (string, error) { return uuid.New().String(), nil }
}
