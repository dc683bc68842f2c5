package compliance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grosir-api/internal/common"
)

var webhookSecret = []byte("shpss_test")

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "1", Type: task.Type()}, nil
}

func newWebhook(t *testing.T, tasks Enqueuer) (Webhook, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Webhook{
		Secret: webhookSecret,
		Tasks:  tasks,
		Replay: RedisReplayGuard{Client: rdb},
		Logger: zerolog.Nop(),
	}, mr
}

func webhookRequest(body []byte, topic, id string, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks", bytes.NewReader(body))
	req.Header.Set(headerTopic, topic)
	req.Header.Set(headerShop, "demo-store.myshopify.com")
	req.Header.Set(headerWebhookID, id)
	req.Header.Set(headerHMAC, signature)
	return req
}

func TestVerifyHMAC(t *testing.T) {
	body := []byte(`{"shop_domain":"demo-store.myshopify.com"}`)
	sig := common.HMACSHA256Base64(webhookSecret, body)

	require.NoError(t, VerifyHMAC(webhookSecret, body, sig))
	require.ErrorIs(t, VerifyHMAC(webhookSecret, append(body, ' '), sig), ErrInvalidHMAC)
	require.ErrorIs(t, VerifyHMAC(webhookSecret, body, ""), ErrInvalidHMAC)
	require.ErrorIs(t, VerifyHMAC(nil, body, sig), ErrInvalidHMAC)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	tasks := &fakeEnqueuer{}
	h, _ := newWebhook(t, tasks)

	rec := httptest.NewRecorder()
	h.Handle(rec, webhookRequest([]byte(`{}`), TopicShopRedact, "wh-1", "bogus"))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, tasks.tasks)
}

func TestWebhookEnqueuesShopRedact(t *testing.T) {
	tasks := &fakeEnqueuer{}
	h, mr := newWebhook(t, tasks)
	body := []byte(`{"shop_id":1,"shop_domain":"demo-store.myshopify.com"}`)

	rec := httptest.NewRecorder()
	h.Handle(rec, webhookRequest(body, TopicShopRedact, "wh-2", common.HMACSHA256Base64(webhookSecret, body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, tasks.tasks, 1)
	require.Equal(t, TypeShopRedact, tasks.tasks[0].Type())

	var payload Payload
	require.NoError(t, json.Unmarshal(tasks.tasks[0].Payload(), &payload))
	require.Equal(t, "demo-store.myshopify.com", payload.Shop)
	require.Equal(t, "wh-2", payload.WebhookID)
	require.JSONEq(t, string(body), string(payload.Body))
	require.True(t, mr.Exists("compliance:wh:wh-2"))
}

func TestWebhookDeduplicatesRedelivery(t *testing.T) {
	tasks := &fakeEnqueuer{}
	h, _ := newWebhook(t, tasks)
	body := []byte(`{"customer":{"id":7}}`)
	sig := common.HMACSHA256Base64(webhookSecret, body)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.Handle(rec, webhookRequest(body, TopicCustomersRedact, "wh-3", sig))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.Len(t, tasks.tasks, 1)
}

func TestWebhookReleasesGuardWhenEnqueueFails(t *testing.T) {
	tasks := &fakeEnqueuer{err: errors.New("redis down")}
	h, mr := newWebhook(t, tasks)
	body := []byte(`{}`)

	rec := httptest.NewRecorder()
	h.Handle(rec, webhookRequest(body, TopicCustomersDataRequest, "wh-4", common.HMACSHA256Base64(webhookSecret, body)))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.False(t, mr.Exists("compliance:wh:wh-4"))
}

func TestWebhookAcknowledgesUnknownTopic(t *testing.T) {
	tasks := &fakeEnqueuer{}
	h, _ := newWebhook(t, tasks)
	body := []byte(`{}`)

	rec := httptest.NewRecorder()
	h.Handle(rec, webhookRequest(body, "products/update", "wh-5", common.HMACSHA256Base64(webhookSecret, body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, tasks.tasks)
}

func TestWebhookRejectsNonJSONBody(t *testing.T) {
	tasks := &fakeEnqueuer{}
	h, _ := newWebhook(t, tasks)
	body := []byte(`shop_domain=demo-store.myshopify.com`)

	rec := httptest.NewRecorder()
	h.Handle(rec, webhookRequest(body, TopicShopRedact, "wh-6", common.HMACSHA256Base64(webhookSecret, body)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, tasks.tasks)
}
