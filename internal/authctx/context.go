package authctx

import "context"

type ctxKey string

const keyUID ctxKey = "auth_uid"

// WithUID attaches the verified member uid to the context. Set once per
// request (HTTP middleware) or per connection (websocket) after credential
// verification.
func WithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, keyUID, uid)
}

// UID returns the verified member uid, or "" when the context carries no
// identity.
func UID(ctx context.Context) string {
	v, _ := ctx.Value(keyUID).(string)
	return v
}
