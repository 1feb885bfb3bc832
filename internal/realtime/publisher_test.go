package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	alarms "vessel-monitor/internal/alarms/domain"
	monitoring "vessel-monitor/internal/monitoring/domain"
)

type sentEvent struct {
	channel string
	event   string
	payload any
}

type recordingSender struct {
	mu     sync.Mutex
	events []sentEvent
	err    error
}

func (s *recordingSender) Send(ctx context.Context, channel, event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, sentEvent{channel: channel, event: event, payload: payload})
	return nil
}

func (s *recordingSender) all() []sentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentEvent(nil), s.events...)
}

func newTestPublisher(t *testing.T, codes map[string]string, sender ChannelSender, opts ...PublisherOption) *Publisher {
	t.Helper()
	cache := newTestCache(t, &countingLister{codes: codes})
	opts = append([]PublisherOption{
		WithChunkDelay(0),
		WithBatchIDFactory(func() string { return "batch-1" }),
	}, opts...)
	publisher, err := NewPublisher(cache, sender, zap.NewNop(), opts...)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	return publisher
}

func reading(equipmentID string, id int64, value float64) monitoring.Reading {
	return monitoring.Reading{
		ID:          id,
		EquipmentID: equipmentID,
		Timestamp:   time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC),
		MetricType:  monitoring.MetricTemperature,
		Value:       value,
		Unit:        "°C",
		Quality:     monitoring.QualityNormal,
		Source:      monitoring.SourceSensorUpload,
	}
}

func TestPushOneTranslatesEquipmentCode(t *testing.T) {
	sender := &recordingSender{}
	publisher := newTestPublisher(t, map[string]string{"id-1": "ENG-001"}, sender)

	publisher.PushOne(context.Background(), reading("id-1", 9, 75.5))

	events := sender.all()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if events[0].channel != "equipment:ENG-001" {
		t.Fatalf("unexpected channel %q", events[0].channel)
	}
	if events[0].event != EventNewData {
		t.Fatalf("unexpected event %q", events[0].event)
	}
	message, ok := events[0].payload.(ReadingMessage)
	if !ok {
		t.Fatalf("unexpected payload type %T", events[0].payload)
	}
	if message.EquipmentID != "ENG-001" || message.ID != 9 {
		t.Fatalf("payload must carry the external code and reading id: %+v", message)
	}
}

func TestPushOneUnresolvedCodeDropped(t *testing.T) {
	sender := &recordingSender{}
	publisher := newTestPublisher(t, map[string]string{}, sender)

	publisher.PushOne(context.Background(), reading("ghost", 1, 20))

	if len(sender.all()) != 0 {
		t.Fatal("unresolvable equipment must be dropped silently")
	}
}

func TestPushBatchChunksInOrder(t *testing.T) {
	sender := &recordingSender{}
	publisher := newTestPublisher(t, map[string]string{"id-1": "ENG-001"}, sender)

	readings := make([]monitoring.Reading, 250)
	for i := range readings {
		readings[i] = reading("id-1", int64(i+1), 20)
	}
	publisher.PushBatch(context.Background(), readings)

	events := sender.all()
	if len(events) != 3 {
		t.Fatalf("expected 3 chunks for 250 readings, got %d", len(events))
	}
	wantSizes := []int{100, 100, 50}
	for i, event := range events {
		message, ok := event.payload.(BatchMessage)
		if !ok {
			t.Fatalf("unexpected payload type %T", event.payload)
		}
		if message.ChunkIndex != i+1 {
			t.Fatalf("chunk %d: expected index %d, got %d", i, i+1, message.ChunkIndex)
		}
		if message.TotalChunks != 3 {
			t.Fatalf("chunk %d: expected total 3, got %d", i, message.TotalChunks)
		}
		if len(message.Data) != wantSizes[i] {
			t.Fatalf("chunk %d: expected %d readings, got %d", i, wantSizes[i], len(message.Data))
		}
		if message.BatchID != "batch-1" {
			t.Fatalf("all chunks must share the batch id, got %q", message.BatchID)
		}
		if message.IsHistory {
			t.Fatal("sensor-upload batch must not be flagged history")
		}
	}
	if first := events[0].payload.(BatchMessage).Data[0]; first.ID != 1 {
		t.Fatalf("submission order must be preserved, first id %d", first.ID)
	}
}

func TestPushBatchHistoryFlag(t *testing.T) {
	sender := &recordingSender{}
	publisher := newTestPublisher(t, map[string]string{"id-1": "ENG-001"}, sender)

	item := reading("id-1", 1, 20)
	item.Source = monitoring.SourceFileImport
	publisher.PushBatch(context.Background(), []monitoring.Reading{item})

	events := sender.all()
	if len(events) != 1 {
		t.Fatalf("expected one chunk, got %d", len(events))
	}
	if !events[0].payload.(BatchMessage).IsHistory {
		t.Fatal("file-import batch must be flagged history")
	}
}

func TestPushBatchSkipsUnresolvedEquipment(t *testing.T) {
	sender := &recordingSender{}
	publisher := newTestPublisher(t, map[string]string{"id-1": "ENG-001"}, sender)

	publisher.PushBatch(context.Background(), []monitoring.Reading{
		reading("id-1", 1, 20),
		reading("ghost", 2, 21),
		reading("id-1", 3, 22),
	})

	events := sender.all()
	if len(events) != 1 {
		t.Fatalf("expected one chunk for the resolvable equipment, got %d", len(events))
	}
	message := events[0].payload.(BatchMessage)
	if len(message.Data) != 2 {
		t.Fatalf("expected both id-1 readings delivered, got %d", len(message.Data))
	}
}

func TestPushBatchChunkDelayBetweenChunksOnly(t *testing.T) {
	sender := &recordingSender{}
	publisher := newTestPublisher(t, map[string]string{"id-1": "ENG-001"}, sender,
		WithChunkSize(1), WithChunkDelay(20*time.Millisecond))

	start := time.Now()
	publisher.PushBatch(context.Background(), []monitoring.Reading{
		reading("id-1", 1, 20),
		reading("id-1", 2, 21),
		reading("id-1", 3, 22),
	})
	elapsed := time.Since(start)

	// Two gaps between three chunks, none after the last.
	if elapsed < 40*time.Millisecond {
		t.Fatalf("expected at least two inter-chunk pauses, took %s", elapsed)
	}
	if len(sender.all()) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(sender.all()))
	}
}

func TestPushAlarm(t *testing.T) {
	sender := &recordingSender{}
	publisher := newTestPublisher(t, map[string]string{"id-1": "ENG-001"}, sender)

	publisher.PushAlarm(context.Background(), alarms.Alarm{
		ID:          "alarm-1",
		EquipmentID: "id-1",
		RuleID:      "rule-1",
		MetricType:  monitoring.MetricTemperature,
		Value:       95,
		Threshold:   90,
		Operator:    alarms.OperatorGreater,
		Severity:    "critical",
		TriggeredAt: time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC),
		ReadingID:   77,
	})

	events := sender.all()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if events[0].event != EventAlarm {
		t.Fatalf("unexpected event %q", events[0].event)
	}
	message := events[0].payload.(AlarmMessage)
	if message.EquipmentID != "ENG-001" || message.Severity != "critical" || message.ReadingID != 77 {
		t.Fatalf("unexpected alarm payload: %+v", message)
	}
}

func TestSendFailureDoesNotPanic(t *testing.T) {
	sender := &recordingSender{err: errors.New("broker gone")}
	publisher := newTestPublisher(t, map[string]string{"id-1": "ENG-001"}, sender)

	publisher.PushOne(context.Background(), reading("id-1", 1, 20))
	publisher.PushBatch(context.Background(), []monitoring.Reading{reading("id-1", 2, 21)})
}
