package realtime

import (
	"context"
	"encoding/json"
	"sync"
)

// SSEBroker fans out channel events to connected SSE clients. It is a
// ChannelSender, so the same publisher feeds redis and direct HTTP
// subscribers.
type SSEBroker struct {
	mu       sync.Mutex
	channels map[string]map[chan []byte]struct{}
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{channels: make(map[string]map[chan []byte]struct{})}
}

// Send implements ChannelSender. Slow clients are skipped rather than
// blocking delivery.
func (b *SSEBroker) Send(_ context.Context, channel, event string, payload any) error {
	if b == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame := make([]byte, 0, len(event)+len(data)+16)
	frame = append(frame, "event: "...)
	frame = append(frame, event...)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, data...)
	frame = append(frame, "\n\n"...)

	// Sends stay under the lock so a concurrent Unsubscribe cannot
	// close a channel mid-delivery; they never block, so the lock is
	// held only briefly.
	b.mu.Lock()
	for ch := range b.channels[channel] {
		select {
		case ch <- frame:
		default:
		}
	}
	b.mu.Unlock()
	return nil
}

// Subscribe registers a new client on a channel.
func (b *SSEBroker) Subscribe(channel string) chan []byte {
	if b == nil {
		return nil
	}
	ch := make(chan []byte, 16)
	b.mu.Lock()
	if b.channels[channel] == nil {
		b.channels[channel] = make(map[chan []byte]struct{})
	}
	b.channels[channel][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client from a channel.
func (b *SSEBroker) Unsubscribe(channel string, ch chan []byte) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	if clients, ok := b.channels[channel]; ok {
		delete(clients, ch)
		if len(clients) == 0 {
			delete(b.channels, channel)
		}
	}
	b.mu.Unlock()
	close(ch)
}
