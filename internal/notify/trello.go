package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Trello creates cards on a fixed Trello list.
type Trello struct {
	baseURL    string
	key        string
	token      string
	listID     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewTrello creates a Trello card creator.
func NewTrello(baseURL, key, token, listID string, logger *zap.Logger) *Trello {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trello{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		token:   token,
		listID:  listID,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// CreateCard adds a card named name to the configured list.
func (t *Trello) CreateCard(ctx context.Context, name, description string) error {
	q := url.Values{}
	q.Set("key", t.key)
	q.Set("token", t.token)
	q.Set("idList", t.listID)
	q.Set("name", name)
	q.Set("desc", description)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/1/cards?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// the request URL embeds the api token
		return fmt.Errorf("trello create card %q failed", name)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("trello create card %q: status %d", name, resp.StatusCode)
	}
	t.logger.Debug("trello card created", zap.String("name", name))
	return nil
}
