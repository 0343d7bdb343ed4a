package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mr1hm/vessel-alert-engine/internal/models"
)

// SendResult is the outcome of one provider call. Provider failures are
// opaque strings, not typed errors; gateways disagree too much about
// failure shapes to model them.
type SendResult struct {
	Success           bool
	ProviderMessageID string
	Error             string
}

// Provider sends one message on one channel. Implementations wrap the
// external SMS/Email/WhatsApp/Voice gateways.
type Provider interface {
	Channel() models.Channel
	Send(ctx context.Context, destination, body string) SendResult
}

// Registry holds one provider per channel, each behind its own rate
// limiter so a throttled gateway never slows the others down.
type Registry struct {
	providers map[models.Channel]Provider
	limiters  map[models.Channel]*rate.Limiter
}

func NewRegistry(ratePerSec int, providers ...Provider) *Registry {
	r := &Registry{
		providers: make(map[models.Channel]Provider),
		limiters:  make(map[models.Channel]*rate.Limiter),
	}
	for _, p := range providers {
		r.providers[p.Channel()] = p
		r.limiters[p.Channel()] = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return r
}

// Send rate-limits and delegates to the channel's provider. A missing
// provider is reported as a failed result, not an error: the delivery
// log absorbs it like any other gateway failure.
func (r *Registry) Send(ctx context.Context, channel models.Channel, destination, body string) SendResult {
	p, ok := r.providers[channel]
	if !ok {
		return SendResult{Error: fmt.Sprintf("no provider registered for channel %s", channel)}
	}
	if err := r.limiters[channel].Wait(ctx); err != nil {
		return SendResult{Error: fmt.Sprintf("rate limiter wait aborted: %v", err)}
	}
	return p.Send(ctx, destination, body)
}

// logProvider stands in for a real gateway: it records the send in the
// log and reports success. Production deployments swap in real
// gateway wrappers through the same interface.
type logProvider struct {
	channel models.Channel
}

func (p *logProvider) Channel() models.Channel { return p.channel }

func (p *logProvider) Send(ctx context.Context, destination, body string) SendResult {
	slog.Info("outbound notification", "channel", p.channel, "destination", destination, "bytes", len(body))
	return SendResult{
		Success:           true,
		ProviderMessageID: "log-" + uuid.NewString(),
	}
}

// LogProviders returns stand-in providers for every channel.
func LogProviders() []Provider {
	return []Provider{
		&logProvider{channel: models.ChannelSMS},
		&logProvider{channel: models.ChannelEmail},
		&logProvider{channel: models.ChannelWhatsApp},
		&logProvider{channel: models.ChannelVoice},
	}
}
