package metrics

import "time"

// Metric names recorded by the gateway.
const (
	Verification    = "verification"
	WebhookDelivery = "webhook_delivery"
	AccessDecision  = "access_decision"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
