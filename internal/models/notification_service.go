package models

import "context"

// NotificationService fans protocol events out to external systems.
type NotificationService interface {
	Notify(ctx context.Context, payload *WebhookPayload)
}
