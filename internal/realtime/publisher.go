package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	alarms "vessel-monitor/internal/alarms/domain"
	monitoring "vessel-monitor/internal/monitoring/domain"
	"vessel-monitor/internal/observability/metrics"
)

// Channel and event names on the subscriber-facing wire.
const (
	ChannelPrefix = "equipment:"

	EventNewData   = "monitoring:new-data"
	EventBatchData = "monitoring:batch-data"
	EventAlarm     = "monitoring:alarm"
)

// Delivery pacing defaults.
const (
	defaultChunkSize  = 100
	defaultChunkDelay = 10 * time.Millisecond
)

// ChannelSender delivers one event to one named channel.
type ChannelSender interface {
	Send(ctx context.Context, channel, event string, payload any) error
}

// ReadingMessage is the fixed-shape single-reading payload.
type ReadingMessage struct {
	ID              int64   `json:"id"`
	EquipmentID     string  `json:"equipmentId"`
	Timestamp       string  `json:"timestamp"`
	MetricType      string  `json:"metricType"`
	MonitoringPoint string  `json:"monitoringPoint,omitempty"`
	Value           float64 `json:"value"`
	Unit            string  `json:"unit,omitempty"`
	Quality         string  `json:"quality"`
	Source          string  `json:"source"`
}

// BatchMessage is one chunk of a batch push.
type BatchMessage struct {
	BatchID     string           `json:"batchId"`
	EquipmentID string           `json:"equipmentId"`
	Data        []ReadingMessage `json:"data"`
	ChunkIndex  int              `json:"chunkIndex"`
	TotalChunks int              `json:"totalChunks"`
	IsHistory   bool             `json:"isHistory"`
}

// AlarmMessage is the payload for a triggered alarm.
type AlarmMessage struct {
	ID              string  `json:"id"`
	EquipmentID     string  `json:"equipmentId"`
	RuleID          string  `json:"ruleId"`
	MetricType      string  `json:"metricType"`
	MonitoringPoint string  `json:"monitoringPoint,omitempty"`
	Value           float64 `json:"value"`
	Threshold       float64 `json:"threshold"`
	Operator        string  `json:"operator"`
	Severity        string  `json:"severity"`
	TriggeredAt     string  `json:"triggeredAt"`
	ReadingID       int64   `json:"readingId"`
}

// Publisher delivers readings and alarms to equipment channels,
// translating internal ids to external codes through the CodeCache and
// chunking batch pushes to bound message size. Delivery is best effort:
// every failure is logged and dropped, never raised to the caller.
type Publisher struct {
	cache      *CodeCache
	sender     ChannelSender
	logger     *zap.Logger
	chunkSize  int
	chunkDelay time.Duration
	newBatchID func() string
}

// PublisherOption customizes the publisher.
type PublisherOption func(*Publisher)

// WithChunkSize overrides the default 100-reading chunk size.
func WithChunkSize(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithChunkDelay overrides the pause between chunks of one group.
func WithChunkDelay(delay time.Duration) PublisherOption {
	return func(p *Publisher) {
		if delay >= 0 {
			p.chunkDelay = delay
		}
	}
}

// WithBatchIDFactory overrides batch id generation, for tests.
func WithBatchIDFactory(factory func() string) PublisherOption {
	return func(p *Publisher) {
		if factory != nil {
			p.newBatchID = factory
		}
	}
}

// NewPublisher constructs a publisher.
func NewPublisher(cache *CodeCache, sender ChannelSender, logger *zap.Logger, opts ...PublisherOption) (*Publisher, error) {
	if cache == nil {
		return nil, errors.New("realtime: nil code cache")
	}
	if sender == nil {
		return nil, errors.New("realtime: nil channel sender")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	publisher := &Publisher{
		cache:      cache,
		sender:     sender,
		logger:     logger,
		chunkSize:  defaultChunkSize,
		chunkDelay: defaultChunkDelay,
		newBatchID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(publisher)
	}
	return publisher, nil
}

// PushOne delivers a single new reading to its equipment channel.
func (p *Publisher) PushOne(ctx context.Context, reading monitoring.Reading) {
	if p == nil {
		return
	}
	code, err := p.cache.ResolveOne(ctx, reading.EquipmentID)
	if err != nil {
		metrics.IncPushDropped("code_unresolved")
		p.logger.Warn("realtime push dropped: equipment code unresolved",
			zap.String("equipment_id", reading.EquipmentID),
			zap.String("metric_type", string(reading.MetricType)),
			zap.Error(err))
		return
	}
	p.send(ctx, code, EventNewData, readingMessage(reading, code))
}

// PushBatch delivers a batch of readings, grouped by equipment and split
// into fixed-size chunks. Chunks of one group go out serially in index
// order with a small pause between chunks, so a subscriber's inbound
// buffer is never burst. Equipment whose id fails to translate is
// skipped with a log, never aborting the rest of the push.
func (p *Publisher) PushBatch(ctx context.Context, readings []monitoring.Reading) {
	if p == nil || len(readings) == 0 {
		return
	}

	order := make([]string, 0, len(readings))
	groups := make(map[string][]monitoring.Reading)
	for _, reading := range readings {
		if _, ok := groups[reading.EquipmentID]; !ok {
			order = append(order, reading.EquipmentID)
		}
		groups[reading.EquipmentID] = append(groups[reading.EquipmentID], reading)
	}

	codes, err := p.cache.ResolveMany(ctx, order)
	if err != nil {
		metrics.IncPushDropped("code_resolve_failed")
		p.logger.Warn("realtime batch push dropped: code resolution failed",
			zap.Int("equipment_count", len(order)), zap.Error(err))
		return
	}

	for _, equipmentID := range order {
		code, ok := codes[equipmentID]
		if !ok {
			metrics.IncPushDropped("code_unresolved")
			p.logger.Warn("realtime batch push: equipment skipped, code unresolved",
				zap.String("equipment_id", equipmentID))
			continue
		}
		p.pushGroup(ctx, code, groups[equipmentID])
	}
}

func (p *Publisher) pushGroup(ctx context.Context, code string, group []monitoring.Reading) {
	batchID := p.newBatchID()
	isHistory := group[0].Source == monitoring.SourceFileImport ||
		group[0].Source == monitoring.SourceManualEntry

	totalChunks := (len(group) + p.chunkSize - 1) / p.chunkSize
	for index := 0; index < totalChunks; index++ {
		start := index * p.chunkSize
		end := start + p.chunkSize
		if end > len(group) {
			end = len(group)
		}

		data := make([]ReadingMessage, 0, end-start)
		for _, reading := range group[start:end] {
			data = append(data, readingMessage(reading, code))
		}

		p.send(ctx, code, EventBatchData, BatchMessage{
			BatchID:     batchID,
			EquipmentID: code,
			Data:        data,
			ChunkIndex:  index + 1,
			TotalChunks: totalChunks,
			IsHistory:   isHistory,
		})

		if p.chunkDelay > 0 && index < totalChunks-1 {
			time.Sleep(p.chunkDelay)
		}
	}
}

// PushAlarm delivers one triggered alarm to its equipment channel.
func (p *Publisher) PushAlarm(ctx context.Context, alarm alarms.Alarm) {
	if p == nil {
		return
	}
	code, err := p.cache.ResolveOne(ctx, alarm.EquipmentID)
	if err != nil {
		metrics.IncPushDropped("code_unresolved")
		p.logger.Warn("alarm push dropped: equipment code unresolved",
			zap.String("equipment_id", alarm.EquipmentID),
			zap.String("rule_id", alarm.RuleID),
			zap.Error(err))
		return
	}
	p.send(ctx, code, EventAlarm, AlarmMessage{
		ID:              alarm.ID,
		EquipmentID:     code,
		RuleID:          alarm.RuleID,
		MetricType:      string(alarm.MetricType),
		MonitoringPoint: alarm.MonitoringPoint,
		Value:           alarm.Value,
		Threshold:       alarm.Threshold,
		Operator:        string(alarm.Operator),
		Severity:        alarm.Severity,
		TriggeredAt:     alarm.TriggeredAt.UTC().Format(time.RFC3339),
		ReadingID:       alarm.ReadingID,
	})
}

func (p *Publisher) send(ctx context.Context, code, event string, payload any) {
	if err := p.sender.Send(ctx, ChannelPrefix+code, event, payload); err != nil {
		metrics.IncPushChunk(metrics.ResultError)
		p.logger.Warn("realtime delivery failed",
			zap.String("channel", ChannelPrefix+code),
			zap.String("event", event),
			zap.Error(err))
		return
	}
	metrics.IncPushChunk(metrics.ResultSuccess)
}

func readingMessage(reading monitoring.Reading, code string) ReadingMessage {
	return ReadingMessage{
		ID:              reading.ID,
		EquipmentID:     code,
		Timestamp:       reading.Timestamp.UTC().Format(time.RFC3339),
		MetricType:      string(reading.MetricType),
		MonitoringPoint: reading.MonitoringPoint,
		Value:           reading.Value,
		Unit:            reading.Unit,
		Quality:         string(reading.Quality),
		Source:          string(reading.Source),
	}
}
