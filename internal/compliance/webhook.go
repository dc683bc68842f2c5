package compliance

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/grosir-api/internal/common"
	"github.com/noah-isme/grosir-api/internal/obs"
)

// ErrInvalidHMAC is returned when a webhook signature does not match the body.
var ErrInvalidHMAC = errors.New("compliance: invalid webhook signature")

const (
	headerHMAC      = "X-Shopify-Hmac-Sha256"
	headerTopic     = "X-Shopify-Topic"
	headerShop      = "X-Shopify-Shop-Domain"
	headerWebhookID = "X-Shopify-Webhook-Id"

	defaultReplayTTL = 24 * time.Hour
	maxBodyBytes     = 1 << 20
)

// VerifyHMAC checks the base64 HMAC-SHA256 of body against the provided header value.
func VerifyHMAC(secret []byte, body []byte, provided string) error {
	provided = strings.TrimSpace(provided)
	if len(secret) == 0 || provided == "" {
		return ErrInvalidHMAC
	}
	expected := common.HMACSHA256Base64(secret, body)
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return ErrInvalidHMAC
	}
	return nil
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Webhook verifies compliance webhooks and hands them to the worker queue.
type Webhook struct {
	Secret    []byte
	Tasks     Enqueuer
	Replay    ReplayGuard
	ReplayTTL time.Duration
	MaxRetry  int
	Logger    zerolog.Logger
}

// Handle serves POST /webhooks.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	topic := strings.ToLower(strings.TrimSpace(r.Header.Get(headerTopic)))
	if err := VerifyHMAC(h.Secret, body, r.Header.Get(headerHMAC)); err != nil {
		observeWebhook(topic, "unauthorized")
		h.Logger.Warn().Str("topic", topic).Msg("compliance webhook failed verification")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}

	if !json.Valid(body) {
		observeWebhook(topic, "invalid")
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "payload is not valid JSON", nil)
		return
	}

	shop := strings.ToLower(strings.TrimSpace(r.Header.Get(headerShop)))
	if _, ok := TaskTypeFor(topic); !ok {
		observeWebhook(topic, "ignored")
		h.Logger.Info().Str("topic", topic).Str("shop", shop).Msg("unhandled compliance webhook topic")
		w.WriteHeader(http.StatusOK)
		return
	}

	webhookID := strings.TrimSpace(r.Header.Get(headerWebhookID))
	if webhookID == "" {
		webhookID = common.Sha256Hex(string(body))
	}
	replayKey := fmt.Sprintf("compliance:wh:%s", webhookID)
	if h.Replay != nil {
		ttl := h.ReplayTTL
		if ttl <= 0 {
			ttl = defaultReplayTTL
		}
		acquired, err := h.Replay.Acquire(r.Context(), replayKey, ttl)
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !acquired {
			observeWebhook(topic, "duplicate")
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	if err := h.enqueue(r.Context(), Payload{WebhookID: webhookID, Topic: topic, Shop: shop, Body: body}); err != nil {
		if h.Replay != nil {
			_ = h.Replay.Release(r.Context(), replayKey)
		}
		observeWebhook(topic, "error")
		h.Logger.Error().Err(err).Str("topic", topic).Str("shop", shop).Msg("enqueue compliance task")
		common.JSONError(w, http.StatusServiceUnavailable, "ENQUEUE_FAILED", "webhook could not be queued", nil)
		return
	}
	observeWebhook(topic, "accepted")
	h.Logger.Info().Str("topic", topic).Str("shop", shop).Str("webhook_id", webhookID).Msg("compliance webhook accepted")
	w.WriteHeader(http.StatusOK)
}

func (h Webhook) enqueue(ctx context.Context, p Payload) error {
	if h.Tasks == nil {
		return errors.New("compliance: task client not configured")
	}
	task, err := NewTask(p)
	if err != nil {
		return err
	}
	maxRetry := h.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 10
	}
	_, err = h.Tasks.EnqueueContext(ctx, task,
		asynq.Queue(QueueName),
		asynq.MaxRetry(maxRetry),
		asynq.TaskID(p.WebhookID),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func observeWebhook(topic, result string) {
	if obs.ComplianceWebhookTotal == nil {
		return
	}
	if _, ok := TaskTypeFor(topic); !ok {
		topic = "other"
	}
	obs.ComplianceWebhookTotal.WithLabelValues(topic, result).Inc()
}
