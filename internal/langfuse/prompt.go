package langfuse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	errx "github.com/langfuse-nodes/server/internal/core/error"
	logx "github.com/langfuse-nodes/server/pkg/logger"
)

const (
	// DefaultPromptLabel is fetched when neither version nor label is given.
	DefaultPromptLabel    = "production"
	defaultPromptCacheTTL = 60 * time.Second
)

// Prompt is a managed prompt as returned by the API. Raw keeps every field.
type Prompt struct {
	Name    string         `json:"name"`
	Version int            `json:"version"`
	Type    string         `json:"type"`
	Labels  []string       `json:"labels,omitempty"`
	Raw     map[string]any `json:"raw"`
}

// UnmarshalJSON keeps the full object in Raw. Cached prompts carry Raw explicitly.
func (p *Prompt) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if inner, ok := raw["raw"].(map[string]any); ok {
		raw = inner
	}
	type alias struct {
		Name    string   `json:"name"`
		Version int      `json:"version"`
		Type    string   `json:"type"`
		Labels  []string `json:"labels"`
	}
	var a alias
	norm, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(norm, &a); err != nil {
		return err
	}
	*p = Prompt{Name: a.Name, Version: a.Version, Type: a.Type, Labels: a.Labels, Raw: raw}
	return nil
}

// PromptOptions narrows which prompt revision GetPrompt returns.
type PromptOptions struct {
	Label string `json:"label,omitempty"`
	// CacheTTLSeconds is the cache lifetime; zero means the default and negative disables caching.
	CacheTTLSeconds int    `json:"cacheTtlSeconds,omitempty"`
	Type            string `json:"type,omitempty"`
}

func (o PromptOptions) ttl() time.Duration {
	if o.CacheTTLSeconds == 0 {
		return defaultPromptCacheTTL
	}
	return time.Duration(o.CacheTTLSeconds) * time.Second
}

func promptCacheKey(name string, version int, label string) string {
	if version > 0 {
		return fmt.Sprintf("%s-version:%d", name, version)
	}
	return fmt.Sprintf("%s-label:%s", name, label)
}

// GetPrompt fetches a prompt by name and either version (when > 0) or label.
func (c *Client) GetPrompt(ctx context.Context, name string, version int, opts PromptOptions) (*Prompt, error) {
	label := opts.Label
	if version <= 0 && label == "" {
		label = DefaultPromptLabel
	}
	key := promptCacheKey(name, version, label)
	ttl := opts.ttl()

	if ttl > 0 {
		if p, ok, err := c.cfg.PromptCache.Get(ctx, key); err != nil {
			logx.Warn().Err(err).Str("prompt", name).Msg("prompt cache lookup failed")
		} else if ok {
			c.cfg.Metrics.PromptCache.WithLabelValues("hit").Inc()
			return p, nil
		}
		c.cfg.Metrics.PromptCache.WithLabelValues("miss").Inc()
	}

	q := url.Values{}
	if version > 0 {
		q.Set("version", strconv.Itoa(version))
	} else {
		q.Set("label", label)
	}
	path := promptsPath + "/" + url.PathEscape(name) + "?" + q.Encode()

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, errx.Upstream(fmt.Errorf("%s", strings.TrimSpace(string(body))), resp.StatusCode,
			fmt.Sprintf("fetch prompt %q returned %d", name, resp.StatusCode))
	}

	var p Prompt
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode prompt %q: %w", name, err)
	}
	if opts.Type != "" && p.Type != "" && p.Type != opts.Type {
		return nil, fmt.Errorf("prompt %q is of type %s, expected %s", name, p.Type, opts.Type)
	}

	if ttl > 0 {
		if err := c.cfg.PromptCache.Set(ctx, key, &p, ttl); err != nil {
			logx.Warn().Err(err).Str("prompt", name).Msg("prompt cache store failed")
		}
	}
	return &p, nil
}
