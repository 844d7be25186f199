package pubsub

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestDecodeMessage(t *testing.T) {
	ev, ok := decodeMessage(redis.XMessage{
		ID: "1-0",
		Values: map[string]interface{}{
			"seq":  "3",
			"data": `{"channel":"quotation:q-1","seq":3,"event":{"type":"quotation.sent"},"timestamp":"2026-01-02T03:04:05Z"}`,
		},
	})
	assert.True(t, ok)
	assert.Equal(t, "quotation:q-1", ev.Channel)
	assert.Equal(t, int64(3), ev.Sequence)
	assert.Equal(t, "quotation.sent", ev.Event["type"])
	assert.Equal(t, 2026, ev.Timestamp.Year())

	_, ok = decodeMessage(redis.XMessage{ID: "2-0", Values: map[string]interface{}{"data": "{"}})
	assert.False(t, ok)

	_, ok = decodeMessage(redis.XMessage{ID: "3-0", Values: map[string]interface{}{}})
	assert.False(t, ok)
}
