package httpapi

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	slogctx "github.com/veqryn/slog-context"

	"github.com/requestline/intake-bot/internal/catalog"
)

// Resolver supplies the connection details of the catalog service to use
// for one media kind, evaluated at call time.
type Resolver interface {
	Resolve(ctx context.Context, kind catalog.MediaKind) (Service, error)
}

// StaticResolver serves the services fixed in the configuration file.
type StaticResolver struct {
	Movies Service
	Series Service
}

var _ Resolver = StaticResolver{}

func (r StaticResolver) Resolve(_ context.Context, kind catalog.MediaKind) (Service, error) {
	switch kind {
	case catalog.MediaKindMovie:
		return r.Movies, nil
	case catalog.MediaKindSeries:
		return r.Series, nil
	default:
		return Service{}, fmt.Errorf("no catalog service for kind %q", kind)
	}
}

// EndpointSource lists the stored catalog endpoints.
type EndpointSource interface {
	List(ctx context.Context) ([]catalog.Endpoint, error)
}

const endpointsCacheKey = "endpoints"

// RegistryResolver resolves services from the administrator-managed endpoint
// registry, so a registry change takes effect on the running bot without a
// redeploy. Listings are reused for a short interval; a kind with no enabled
// row, and any listing failure, falls back to the static configuration.
type RegistryResolver struct {
	source   EndpointSource
	fallback StaticResolver
	cache    *cache.Cache
}

var _ Resolver = (*RegistryResolver)(nil)

type RegistryResolverOption func(*RegistryResolver)

// WithCacheTTL overrides how long one registry listing is reused before the
// next resolve reads the store again.
func WithCacheTTL(ttl time.Duration) RegistryResolverOption {
	return func(r *RegistryResolver) {
		r.cache = cache.New(ttl, ttl)
	}
}

func NewRegistryResolver(source EndpointSource, fallback StaticResolver, opts ...RegistryResolverOption) *RegistryResolver {
	r := &RegistryResolver{
		source:   source,
		fallback: fallback,
		cache:    cache.New(30*time.Second, time.Minute),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *RegistryResolver) Resolve(ctx context.Context, kind catalog.MediaKind) (Service, error) {
	endpoints, err := r.endpoints(ctx)
	if err != nil {
		slogctx.Warn(ctx, "Listing catalog endpoints failed, using configured services", "error", err)

		return r.fallback.Resolve(ctx, kind)
	}

	for _, ep := range endpoints {
		if ep.Enabled && ep.Kind == kind {
			return Service{BaseURL: ep.BaseURL, APIKey: ep.APIKey}, nil
		}
	}

	return r.fallback.Resolve(ctx, kind)
}

func (r *RegistryResolver) endpoints(ctx context.Context) ([]catalog.Endpoint, error) {
	if cached, ok := r.cache.Get(endpointsCacheKey); ok {
		return cached.([]catalog.Endpoint), nil
	}

	endpoints, err := r.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing catalog endpoints: %w", err)
	}

	r.cache.Set(endpointsCacheKey, endpoints, cache.DefaultExpiration)

	return endpoints, nil
}
