package common

import "context"

type ctxKey string

const (
	shopKey   ctxKey = "auth/shop"
	userIDKey ctxKey = "auth/user-id"
)

// WithShop stores the authenticated shop domain on the provided context and
// records it on the request's RequestInfo, if any.
func WithShop(ctx context.Context, shop string) context.Context {
	requestInfo(ctx).setShop(shop)
	return context.WithValue(ctx, shopKey, shop)
}

// Shop extracts the authenticated shop domain from the context if present.
func Shop(ctx context.Context) (string, bool) {
	v := ctx.Value(shopKey)
	if v == nil {
		return "", false
	}
	shop, ok := v.(string)
	return shop, ok && shop != ""
}

// ShopOr returns the shop on the context or the fallback when none is set.
func ShopOr(ctx context.Context, fallback string) string {
	if shop, ok := Shop(ctx); ok {
		return shop
	}
	return fallback
}

// WithUserID stores the session subject (staff user) on the context.
func WithUserID(ctx context.Context, id string) context.Context {
	requestInfo(ctx).setUserID(id)
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the session subject from the context if present.
func UserID(ctx context.Context) (string, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}
