package permission

import "context"

type contextKey struct{}

// WithSet returns ctx carrying set.
func WithSet(ctx context.Context, set Set) context.Context {
	return context.WithValue(ctx, contextKey{}, set)
}

// FromContext returns the set attached by WithSet.
func FromContext(ctx context.Context) (Set, bool) {
	set, ok := ctx.Value(contextKey{}).(Set)
	return set, ok
}

// Allowed resolves q against the set in ctx.
//
// With no set mounted it returns true: that is the development default for
// code running outside a server request. The server always mounts a set, so
// production requests are never resolved this way.
func Allowed(ctx context.Context, q Query) bool {
	set, ok := FromContext(ctx)
	if !ok {
		return true
	}
	return Resolve(q, set)
}
