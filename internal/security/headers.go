package security

import (
	"net/http"
	"strconv"
	"strings"
)

// ShopifyAdminOrigin is the origin embedding the admin UI.
const ShopifyAdminOrigin = "https://admin.shopify.com"

// Headers configures common security headers for HTTP responses.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	// Embedded allows framing by the Shopify admin and the requesting shop.
	Embedded bool
}

// Middleware attaches standard security headers to each response.
func (h Headers) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.Enable {
			next.ServeHTTP(w, r)
			return
		}
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("Referrer-Policy", "no-referrer")
		headers.Set("Permissions-Policy", "geolocation=(), microphone=()")
		if h.Embedded {
			headers.Set("Content-Security-Policy", "frame-ancestors "+frameAncestors(r))
		} else {
			headers.Set("X-Frame-Options", "DENY")
			headers.Set("Content-Security-Policy", "frame-ancestors 'none'")
		}
		if h.EnableHSTS && r.TLS != nil {
			maxAge := h.HSTSMaxAge
			if maxAge <= 0 {
				maxAge = 31536000
			}
			value := "max-age=" + strconv.Itoa(maxAge)
			if h.HSTSIncludeSubdomains {
				value += "; includeSubDomains"
			}
			headers.Set("Strict-Transport-Security", value)
		}
		next.ServeHTTP(w, r)
	})
}

func frameAncestors(r *http.Request) string {
	shop := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("shop")))
	if IsShopDomain(shop) {
		return "https://" + shop + " " + ShopifyAdminOrigin
	}
	return ShopifyAdminOrigin
}

// IsShopDomain reports whether host looks like a *.myshopify.com shop domain.
func IsShopDomain(host string) bool {
	name, ok := strings.CutSuffix(host, ".myshopify.com")
	if !ok || name == "" {
		return false
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
		default:
			return false
		}
	}
	return true
}
