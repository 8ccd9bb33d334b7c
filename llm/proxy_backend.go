package llm

import (
	"context"
)

// AliasResolver is asked for a canonical model id given a possibly-aliased
// one. Implementations own any cache and TTL (this module ships none besides
// the pass-through default); the proxy backend never caches or resolves aliases itself, per the
// Design Notes' "a resolver component that is asked" guidance.
type AliasResolver interface {
	Resolve(ctx context.Context, alias string) (string, error)
}

// noopResolver returns the alias unchanged.
type noopResolver struct{}

func (noopResolver) Resolve(_ context.Context, alias string) (string, error) { return alias, nil }

// ProxyBackend speaks API semantics against an OpenAI-compatible local
// gateway, resolving aliased model ids through a Resolver before each call.
type ProxyBackend struct {
	*APIBackend
	resolver AliasResolver
}

// NewProxyBackend wraps an APIBackend pointed at a local gateway with alias
// resolution. A nil resolver leaves model ids unchanged.
func NewProxyBackend(gatewayURL string, resolver AliasResolver, opts ...APIBackendOption) *ProxyBackend {
	if resolver == nil {
		resolver = noopResolver{}
	}
	return &ProxyBackend{
		APIBackend: NewAPIBackend(gatewayURL, "", opts...),
		resolver:   resolver,
	}
}

func (b *ProxyBackend) Name() string { return "proxy" }

func (b *ProxyBackend) Generate(ctx context.Context, req Request) EventSequence {
	resolved, err := b.resolver.Resolve(ctx, req.Model)
	if err != nil {
		out := make(chan EventOrError, 1)
		out <- EventOrError{Err: &PortError{Kind: ErrorKindProviderError, Message: "alias resolution failed", Err: err}}
		close(out)
		return out
	}
	req.Model = resolved
	return b.APIBackend.Generate(ctx, req)
}

var _ Backend = (*ProxyBackend)(nil)
