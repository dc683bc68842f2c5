package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/grosir-api/internal/resilience"
)

// DefaultAPIVersion is the Admin API version used when none is configured.
const DefaultAPIVersion = "2025-10"

const maxResponseBytes = 8 << 20

// Config configures an Admin GraphQL client.
type Config struct {
	ShopDomain  string
	AccessToken string
	APIVersion  string
	// Endpoint overrides the computed GraphQL URL (used in tests).
	Endpoint string
	HTTP     *resilience.HTTPClient
	Logger   zerolog.Logger
}

// Client talks to the Shopify Admin GraphQL API.
type Client struct {
	endpoint string
	token    string
	http     resilience.HTTPClient
	logger   zerolog.Logger
}

// NewClient validates the configuration and constructs a client. Outbound
// requests are traced through otelhttp.
func NewClient(cfg Config) (*Client, error) {
	shop := strings.TrimSpace(cfg.ShopDomain)
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		if shop == "" {
			return nil, errors.New("shopify: shop domain is required")
		}
		version := strings.TrimSpace(cfg.APIVersion)
		if version == "" {
			version = DefaultAPIVersion
		}
		endpoint = fmt.Sprintf("https://%s/admin/api/%s/graphql.json", shop, version)
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("shopify: access token is required")
	}

	var hc resilience.HTTPClient
	if cfg.HTTP != nil {
		hc = *cfg.HTTP
	}
	if hc.Client == nil {
		hc.Client = &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if hc.Target == "" {
		hc.Target = "shopify-admin"
	}
	return &Client{
		endpoint: endpoint,
		token:    strings.TrimSpace(cfg.AccessToken),
		http:     hc,
		logger:   cfg.Logger,
	}, nil
}

type graphqlPayload struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

type graphqlError struct {
	Message    string         `json:"message"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// GraphQLError reports top-level errors returned alongside a 200 response.
type GraphQLError struct {
	Messages  []string
	Throttled bool
}

func (e *GraphQLError) Error() string {
	return "shopify graphql: " + strings.Join(e.Messages, "; ")
}

// HTTPError reports a non-retryable, non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("shopify: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) graphqlRequest(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphqlPayload{Query: query, Variables: variables})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(raw))
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return &HTTPError{StatusCode: resp.StatusCode, Body: snippet}
	}

	var envelope graphqlResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("shopify: decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		gqlErr := &GraphQLError{Messages: make([]string, 0, len(envelope.Errors))}
		for _, e := range envelope.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
			if code, _ := e.Extensions["code"].(string); code == "THROTTLED" {
				gqlErr.Throttled = true
			}
		}
		return gqlErr
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("shopify: decode data: %w", err)
	}
	return nil
}

// APIUserError is one entry of a mutation's userErrors list.
type APIUserError struct {
	Field        []string `json:"field"`
	Message      string   `json:"message"`
	Code         string   `json:"code,omitempty"`
	ElementIndex *int     `json:"elementIndex,omitempty"`
}

// FieldPath joins the field path with dots.
func (u APIUserError) FieldPath() string {
	return strings.Join(u.Field, ".")
}

// UserErrorsError is returned by provisioning calls rejected by the API.
type UserErrorsError struct {
	Action string
	Errors []APIUserError
}

func (e *UserErrorsError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, ue := range e.Errors {
		field := ue.FieldPath()
		message := strings.TrimSpace(ue.Message)
		if field == "" {
			parts = append(parts, message)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", field, message))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("shopify %s failed with user errors", e.Action)
	}
	return fmt.Sprintf("shopify %s failed: %s", e.Action, strings.Join(parts, "; "))
}

func userErrorsToError(action string, errs []APIUserError) error {
	if len(errs) == 0 {
		return nil
	}
	return &UserErrorsError{Action: action, Errors: errs}
}
