package pubsub

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	QuotationPrefix = "quotation:"
	StaffChannel    = "staff:quotations"
)

type Bus struct {
	rdb     *redis.Client
	log     *zap.Logger
	ctx     context.Context
	wsHub   WSHub
	streams *Streams
}

type WSHub interface {
	Publish(channel string, message map[string]interface{})
}

func New(rdb *redis.Client, log *zap.Logger) *Bus {
	return &Bus{
		rdb:     rdb,
		log:     log,
		ctx:     context.Background(),
		streams: NewStreams(rdb, log),
	}
}

// SetWSHub sets the WebSocket hub for event broadcasting
func (b *Bus) SetWSHub(hub WSHub) {
	b.wsHub = hub
}

// GetStreams returns the streams provider
func (b *Bus) GetStreams() *Streams {
	return b.streams
}

// PublishQuotation publishes an event to a quotation's channel
func (b *Bus) PublishQuotation(quotationID string, event map[string]interface{}) error {
	return b.Publish(QuotationPrefix+quotationID, event)
}

// PublishStaff publishes an event to the channel every staff dashboard follows
func (b *Bus) PublishStaff(event map[string]interface{}) error {
	return b.Publish(StaffChannel, event)
}

// ReplayQuotation returns the events recorded for a quotation after sinceSeq
func (b *Bus) ReplayQuotation(ctx context.Context, quotationID string, sinceSeq, limit int64) ([]StreamEvent, error) {
	return b.streams.ReplayEvents(ctx, QuotationPrefix+quotationID, sinceSeq, limit)
}

// Publish publishes an event to a channel
func (b *Bus) Publish(channel string, event map[string]interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// Record in the stream first so live messages carry the replay sequence
	seq, err := b.streams.PublishEvent(b.ctx, channel, event)
	if err != nil {
		b.log.Warn("Failed to publish to stream", zap.String("channel", channel), zap.Error(err))
	}

	if err := b.rdb.Publish(b.ctx, channel, data).Err(); err != nil {
		b.log.Error("Failed to publish event", zap.String("channel", channel), zap.Error(err))
		return err
	}

	if b.wsHub != nil {
		eventWithSeq := make(map[string]interface{}, len(event)+1)
		for k, v := range event {
			eventWithSeq[k] = v
		}
		eventWithSeq["seq"] = seq
		b.wsHub.Publish(channel, eventWithSeq)
	}

	b.log.Debug("Published event", zap.String("channel", channel), zap.Int64("seq", seq), zap.String("event", string(data)))
	return nil
}
