package compliance

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

// Compliance topics delivered by the platform.
const (
	TopicCustomersDataRequest = "customers/data_request"
	TopicCustomersRedact      = "customers/redact"
	TopicShopRedact           = "shop/redact"
)

// Task type names registered on the worker mux.
const (
	TypeCustomersDataRequest = "compliance:customers_data_request"
	TypeCustomersRedact      = "compliance:customers_redact"
	TypeShopRedact           = "compliance:shop_redact"
)

// QueueName is the asynq queue compliance tasks are enqueued on.
const QueueName = "compliance"

// Payload is the task body shared by every compliance topic.
type Payload struct {
	WebhookID string          `json:"webhookId"`
	Topic     string          `json:"topic"`
	Shop      string          `json:"shop"`
	Body      json.RawMessage `json:"body"`
}

// TaskTypeFor maps a platform topic to its task type. Unknown topics report false.
func TaskTypeFor(topic string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(topic)) {
	case TopicCustomersDataRequest:
		return TypeCustomersDataRequest, true
	case TopicCustomersRedact:
		return TypeCustomersRedact, true
	case TopicShopRedact:
		return TypeShopRedact, true
	default:
		return "", false
	}
}

// NewTask builds the asynq task for a verified webhook.
func NewTask(p Payload) (*asynq.Task, error) {
	taskType, ok := TaskTypeFor(p.Topic)
	if !ok {
		return nil, fmt.Errorf("compliance: unsupported topic %q", p.Topic)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, raw), nil
}
