package realtime

import (
	"context"
	"errors"
)

// MultiSender dispatches channel events to multiple senders.
type MultiSender struct {
	senders []ChannelSender
}

// NewMultiSender constructs a MultiSender.
func NewMultiSender(senders ...ChannelSender) *MultiSender {
	return &MultiSender{senders: senders}
}

// Send forwards the event to every sender. All senders are attempted
// even when earlier ones fail; the errors are joined.
func (m *MultiSender) Send(ctx context.Context, channel, event string, payload any) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, sender := range m.senders {
		if sender == nil {
			continue
		}
		if err := sender.Send(ctx, channel, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
