package common

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
)

// ClientIP returns the host part of RemoteAddr. chi's RealIP middleware has
// already rewritten RemoteAddr from the proxy headers, so they are not read
// again here.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// RequestInfo carries identity resolved deep in the middleware chain back out
// to the outer middleware that log and measure the request.
type RequestInfo struct {
	mu     sync.Mutex
	shop   string
	userID string
}

type requestInfoKey struct{}

// WithRequestInfo attaches an empty RequestInfo to ctx unless one is already
// there, in which case the existing one is returned.
func WithRequestInfo(ctx context.Context) (context.Context, *RequestInfo) {
	if info := requestInfo(ctx); info != nil {
		return ctx, info
	}
	info := &RequestInfo{}
	return context.WithValue(ctx, requestInfoKey{}, info), info
}

func requestInfo(ctx context.Context) *RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return info
}

// Shop returns the shop recorded for the request.
func (i *RequestInfo) Shop() string {
	if i == nil {
		return ""
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.shop
}

// UserID returns the staff user recorded for the request.
func (i *RequestInfo) UserID() string {
	if i == nil {
		return ""
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.userID
}

func (i *RequestInfo) setShop(shop string) {
	if i == nil {
		return
	}
	i.mu.Lock()
	i.shop = shop
	i.mu.Unlock()
}

func (i *RequestInfo) setUserID(id string) {
	if i == nil {
		return
	}
	i.mu.Lock()
	i.userID = id
	i.mu.Unlock()
}
