package shared

import "context"

// Identity carries the validated tenant and acting principal supplied by the
// session layer. The billing engine trusts it completely and performs no
// authentication of its own.
type Identity struct {
	TenantID  int64
	ActorID   int64
	ActorName string
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
