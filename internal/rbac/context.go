package rbac

import (
	"context"

	"github.com/emporia/console/internal/access"
)

type resolverContextKey struct{}
type principalContextKey struct{}

// ContextWithResolver stores the request's resolver and principal.
func ContextWithResolver(ctx context.Context, p Principal, r access.Resolver) context.Context {
	ctx = context.WithValue(ctx, principalContextKey{}, p)
	return context.WithValue(ctx, resolverContextKey{}, r)
}

// ResolverFromContext returns the resolver bound by the middleware. The zero
// resolver, which denies everything, is returned when none is bound.
func ResolverFromContext(ctx context.Context) (access.Resolver, bool) {
	r, ok := ctx.Value(resolverContextKey{}).(access.Resolver)
	return r, ok
}

// PrincipalFromContext returns the principal bound by the middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
