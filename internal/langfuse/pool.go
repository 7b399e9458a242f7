package langfuse

import (
	"context"
	"errors"
	"sync"
)

type poolKey struct {
	host, publicKey, secretKey string
}

// Pool shares one Client per credential set across nodes and executions.
type Pool struct {
	base Config

	mu      sync.Mutex
	clients map[poolKey]*Client
}

// NewPool creates a pool. base supplies everything except host and keys.
func NewPool(base Config) *Pool {
	if base.Metrics == nil {
		base.Metrics = NewMetrics(nil)
	}
	if base.PromptCache == nil {
		base.PromptCache = NewMemoryCache()
	}
	return &Pool{base: base, clients: make(map[poolKey]*Client)}
}

// Client returns the shared client for the given credentials, creating it on first use.
func (p *Pool) Client(host, publicKey, secretKey string) (*Client, error) {
	k := poolKey{host, publicKey, secretKey}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[k]; ok {
		return c, nil
	}
	cfg := p.base
	cfg.Host = host
	cfg.PublicKey = publicKey
	cfg.SecretKey = secretKey
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	p.clients[k] = c
	return c, nil
}

// Flush flushes every client.
func (p *Pool) Flush(ctx context.Context) error {
	var errs []error
	for _, c := range p.snapshot() {
		errs = append(errs, c.Flush(ctx))
	}
	return errors.Join(errs...)
}

// Shutdown stops every client and forgets them.
func (p *Pool) Shutdown(ctx context.Context) error {
	clients := p.snapshot()
	p.mu.Lock()
	p.clients = make(map[poolKey]*Client)
	p.mu.Unlock()

	var errs []error
	for _, c := range clients {
		errs = append(errs, c.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func (p *Pool) snapshot() []*Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Client, 0, len(p.clients))
	for _, c := range p.clients {
		out = append(out, c)
	}
	return out
}
