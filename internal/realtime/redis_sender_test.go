package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func TestRedisSenderPublishesEnvelope(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sender, err := NewRedisSender(client)
	require.NoError(t, err)

	ctx := context.Background()
	subscriber := client.Subscribe(ctx, "equipment:ENG-001")
	t.Cleanup(func() { _ = subscriber.Close() })
	_, err = subscriber.Receive(ctx)
	require.NoError(t, err)

	payload := ReadingMessage{ID: 9, EquipmentID: "ENG-001", Value: 75.5, Quality: "normal"}
	require.NoError(t, sender.Send(ctx, "equipment:ENG-001", EventNewData, payload))

	select {
	case message := <-subscriber.Channel():
		require.Equal(t, "equipment:ENG-001", message.Channel)

		var envelope struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(message.Payload), &envelope))
		require.Equal(t, EventNewData, envelope.Event)

		var decoded ReadingMessage
		require.NoError(t, json.Unmarshal(envelope.Data, &decoded))
		require.Equal(t, payload, decoded)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for redis message")
	}
}

func TestRedisSenderNilClient(t *testing.T) {
	_, err := NewRedisSender(nil)
	require.Error(t, err)
}
