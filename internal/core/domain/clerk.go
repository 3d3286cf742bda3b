package domain

import "context"

type clerkKey struct{}

// WithClerk attaches the acting clerk's id to the context. Identity is
// caller-supplied per operation, never ambient process state, so multiple
// clerks can operate concurrently through the same engine.
func WithClerk(ctx context.Context, clerk string) context.Context {
	return context.WithValue(ctx, clerkKey{}, clerk)
}

// ClerkFromContext returns the clerk id, or "" when none was attached.
func ClerkFromContext(ctx context.Context) string {
	clerk, _ := ctx.Value(clerkKey{}).(string)
	return clerk
}
