package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/upb/agent-control-plane/models"
	"github.com/upb/agent-control-plane/services"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// reservedFields are control-plane inputs that are never forwarded upstream
var reservedFields = map[string]struct{}{
	"prompt":         {},
	"metadata":       {},
	"requestedModel": {},
}

// ForwardResult is the upstream response relayed back to the caller
type ForwardResult struct {
	Status      int
	Body        any
	ContentType string
	ProviderURL string
	Route       models.RouteDecision
}

// Proxy forwards chat completion requests to the tier's upstream provider
type Proxy struct {
	cfg     Config
	client  *http.Client
	sem     *semaphore.Weighted
	timeout time.Duration
	apiKeys map[models.Tier]string
	logger  *zap.Logger
}

// ProxyOption customizes a Proxy
type ProxyOption func(*proxyOptions)

type proxyOptions struct {
	client    *http.Client
	lookupEnv func(string) string
}

// WithHTTPClient sets the client used for upstream calls
func WithHTTPClient(c *http.Client) ProxyOption {
	return func(o *proxyOptions) { o.client = c }
}

// WithEnvLookup replaces os.Getenv when resolving provider API keys
func WithEnvLookup(fn func(string) string) ProxyOption {
	return func(o *proxyOptions) { o.lookupEnv = fn }
}

// NewProxy creates a proxy. Provider API keys are read from the environment
// once, here.
func NewProxy(cfg Config, logger *zap.Logger, opts ...ProxyOption) *Proxy {
	o := proxyOptions{client: &http.Client{}, lookupEnv: os.Getenv}
	for _, opt := range opts {
		opt(&o)
	}

	limit := int64(cfg.Providers.MaxConcurrent)
	if limit <= 0 {
		limit = defaultMaxConcurrent
	}

	keys := make(map[models.Tier]string, 3)
	for _, tier := range []models.Tier{models.TierLocal, models.TierCheap, models.TierPremium} {
		env := cfg.provider(tier).APIKeyEnv
		if env == "" {
			continue
		}
		if key := strings.TrimSpace(o.lookupEnv(env)); key != "" {
			keys[tier] = key
		}
	}

	return &Proxy{
		cfg:     cfg,
		client:  o.client,
		sem:     semaphore.NewWeighted(limit),
		timeout: cfg.RequestTimeout(),
		apiKeys: keys,
		logger:  logger,
	}
}

// Endpoint returns the resolved upstream URL for tier
func (p *Proxy) Endpoint(tier models.Tier) (string, error) {
	provider := p.cfg.provider(tier)
	path := provider.ChatCompletionsPath
	if path == "" {
		path = defaultChatCompletionsPath
	}
	return joinURL(provider.BaseURL, path)
}

// Forward relays body to the upstream for route.Tier with the routed model.
// The call is aborted once the configured timeout elapses.
func (p *Proxy) Forward(ctx context.Context, body map[string]any, route models.RouteDecision) (*ForwardResult, error) {
	endpoint, err := p.Endpoint(route.Tier)
	if err != nil {
		return nil, services.WrapExternal("invalid provider url", err)
	}

	payload, err := json.Marshal(BuildUpstreamRequest(body, route.Model))
	if err != nil {
		return nil, services.NewValidationError("chat completion request is not serializable")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, services.WrapExternal("upstream capacity wait aborted", err)
	}
	defer p.sem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, services.WrapExternal("failed to build upstream request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.cfg.provider(route.Tier).StaticHeaders {
		req.Header.Set(k, v)
	}
	if key, ok := p.apiKeys[route.Tier]; ok {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("upstream request failed",
			zap.String("tier", string(route.Tier)),
			zap.String("url", endpoint),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, services.WrapExternal(upstreamMessage(ctx, err), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.WrapExternal(upstreamMessage(ctx, err), err)
	}

	p.logger.Debug("upstream responded",
		zap.String("tier", string(route.Tier)),
		zap.String("model", route.Model),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "json") {
		contentType = "application/json"
	}

	return &ForwardResult{
		Status:      resp.StatusCode,
		Body:        parseBody(raw),
		ContentType: contentType,
		ProviderURL: endpoint,
		Route:       route,
	}, nil
}

func upstreamMessage(ctx context.Context, err error) string {
	if ctx.Err() == context.DeadlineExceeded {
		return "upstream request timed out"
	}
	return fmt.Sprintf("upstream request failed: %v", err)
}

func parseBody(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return map[string]any{"raw": string(raw)}
	}
	return v
}

// joinURL resolves path against base as if base were a directory
func joinURL(base, path string) (string, error) {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if !b.IsAbs() {
		return "", fmt.Errorf("base url %q is not absolute", base)
	}
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(ref).String(), nil
}

// BuildUpstreamRequest copies body minus control fields, normalizes the
// MAX_TOKENS alias, pins the model and synthesizes a user message when no
// message list was given.
func BuildUpstreamRequest(body map[string]any, model string) map[string]any {
	out := make(map[string]any, len(body)+2)
	for k, v := range body {
		if _, reserved := reservedFields[k]; reserved {
			continue
		}
		out[k] = v
	}
	if v, ok := out["MAX_TOKENS"]; ok {
		delete(out, "MAX_TOKENS")
		if _, exists := out["max_tokens"]; !exists {
			out["max_tokens"] = v
		}
	}
	out["model"] = model

	if _, ok := out["messages"].([]any); !ok {
		out["messages"] = []any{
			map[string]any{"role": "user", "content": ExtractPrompt(body)},
		}
	}
	return out
}

// ExtractPrompt returns the explicit prompt field, or the text of every
// message joined by spaces.
func ExtractPrompt(body map[string]any) string {
	if p, ok := body["prompt"].(string); ok && strings.TrimSpace(p) != "" {
		return p
	}
	messages, ok := body["messages"].([]any)
	if !ok {
		return ""
	}

	var parts []string
	for _, m := range messages {
		msg, ok := m.(map[string]any)
		if !ok {
			continue
		}
		if text := contentText(msg["content"]); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// contentText flattens string or multi-part message content
func contentText(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case []any:
		var chunks []string
		for _, part := range c {
			switch p := part.(type) {
			case string:
				if p != "" {
					chunks = append(chunks, p)
				}
			case map[string]any:
				if text, ok := p["text"].(string); ok && text != "" {
					chunks = append(chunks, text)
				}
			}
		}
		return strings.TrimSpace(strings.Join(chunks, " "))
	}
	return ""
}
