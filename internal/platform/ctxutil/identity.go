package ctxutil

import "context"

type identityDataKey struct{}

// IdentityData is the caller identity established by the bearer-token
// middleware for web chat requests.
type IdentityData struct {
	Subject     string
	Email       string
	DisplayName string
}

func WithIdentityData(ctx context.Context, id *IdentityData) context.Context {
	return context.WithValue(ctx, identityDataKey{}, id)
}

func GetIdentityData(ctx context.Context) *IdentityData {
	if ctx == nil {
		return nil
	}
	if id, ok := ctx.Value(identityDataKey{}).(*IdentityData); ok {
		return id
	}
	return nil
}
