package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// streamMaxLen caps each channel's history
const streamMaxLen = 1000

// StreamEvent represents an event stored in Redis Streams
type StreamEvent struct {
	Channel   string                 `json:"channel"`
	Sequence  int64                  `json:"seq"`
	Event     map[string]interface{} `json:"event"`
	Timestamp time.Time              `json:"timestamp"`
}

// Streams manages Redis Streams for event replay
type Streams struct {
	rdb *redis.Client
	log *zap.Logger
}

// NewStreams creates a new Streams manager
func NewStreams(rdb *redis.Client, log *zap.Logger) *Streams {
	return &Streams{
		rdb: rdb,
		log: log,
	}
}

func streamKey(channel string) string {
	return "stream:" + channel
}

// PublishEvent appends an event to the channel's stream and returns its sequence number
func (s *Streams) PublishEvent(ctx context.Context, channel string, event map[string]interface{}) (int64, error) {
	seq, err := s.rdb.Incr(ctx, "seq:"+channel).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	record := StreamEvent{
		Channel:   channel,
		Sequence:  seq,
		Event:     event,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	id, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(channel),
		MaxLen: streamMaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"seq":  seq,
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to add to stream: %w", err)
	}

	s.log.Debug("Published event to stream",
		zap.String("channel", channel),
		zap.Int64("sequence", seq),
		zap.String("stream_id", id),
	)
	return seq, nil
}

// ReplayEvents returns up to limit events of a channel with a sequence above sinceSeq, oldest first
func (s *Streams) ReplayEvents(ctx context.Context, channel string, sinceSeq, limit int64) ([]StreamEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	messages, err := s.rdb.XRange(ctx, streamKey(channel), "-", "+").Result()
	if err == redis.Nil {
		return []StreamEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	events := make([]StreamEvent, 0)
	for _, msg := range messages {
		ev, ok := decodeMessage(msg)
		if !ok {
			s.log.Warn("Skipping malformed stream entry", zap.String("channel", channel), zap.String("id", msg.ID))
			continue
		}
		if ev.Sequence <= sinceSeq {
			continue
		}
		events = append(events, ev)
		if int64(len(events)) >= limit {
			break
		}
	}
	return events, nil
}

func decodeMessage(msg redis.XMessage) (StreamEvent, bool) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return StreamEvent{}, false
	}
	var ev StreamEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return StreamEvent{}, false
	}
	return ev, true
}
