package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/signalfold/signal-collector/internal/adapter"
	"github.com/signalfold/signal-collector/internal/domain"
	"github.com/signalfold/signal-collector/internal/queue"
)

// Config configures the queue receive adapter.
type Config struct {
	// Scope prefixes derived incident keys when the envelope carries an
	// unscoped one.
	Scope string
	// PollInterval is the cadence this adapter declares to the scheduler.
	PollInterval time.Duration
	// MaxMessages bounds one receive call.
	MaxMessages int32
	// WaitTimeSeconds enables SQS long polling.
	WaitTimeSeconds int32
	// DedupBucket is the time bucket width for derived event ids.
	DedupBucket time.Duration
}

// Adapter is the receive-mode source variant: it drains pre-normalized
// CloudEvents envelopes from an SQS queue for sources that push rather than
// expose a poll API. Records are acked only after durable append; unacked
// messages reappear after the visibility timeout, which the idempotent sink
// makes safe.
type Adapter struct {
	consumer queue.QueueConsumer
	config   Config
	log      *zap.Logger
}

// New creates a queue adapter over the given consumer.
func New(consumer queue.QueueConsumer, config Config, log *zap.Logger) *Adapter {
	if config.MaxMessages <= 0 {
		config.MaxMessages = 10
	}
	if config.DedupBucket <= 0 {
		config.DedupBucket = time.Minute
	}
	return &Adapter{
		consumer: consumer,
		config:   config,
		log:      log,
	}
}

// ID returns the adapter identifier.
func (a *Adapter) ID() string {
	return "queue"
}

// Interval returns the declared polling cadence.
func (a *Adapter) Interval() time.Duration {
	return a.config.PollInterval
}

// Probe receives one batch of messages from the queue. Each record's Ack
// deletes its message; records left unacked are redelivered.
func (a *Adapter) Probe(ctx context.Context) ([]adapter.RawRecord, error) {
	result, err := a.consumer.ReceiveMessages(ctx, &awssqs.ReceiveMessageInput{
		QueueUrl:            aws.String(a.consumer.QueueURL()),
		MaxNumberOfMessages: a.config.MaxMessages,
		WaitTimeSeconds:     a.config.WaitTimeSeconds,
	})
	if err != nil {
		return nil, adapter.NewTransientError(fmt.Errorf("failed to receive messages: %w", err))
	}

	if len(result.Messages) > 0 {
		a.log.Debug("Received messages from queue",
			zap.Int("message_count", len(result.Messages)))
	}

	records := make([]adapter.RawRecord, 0, len(result.Messages))
	for _, msg := range result.Messages {
		receiptHandle := msg.ReceiptHandle
		messageID := aws.ToString(msg.MessageId)
		records = append(records, adapter.RawRecord{
			Body: []byte(aws.ToString(msg.Body)),
			Ack: func(ctx context.Context) error {
				_, err := a.consumer.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
					QueueUrl:      aws.String(a.consumer.QueueURL()),
					ReceiptHandle: receiptHandle,
				})
				if err != nil {
					return fmt.Errorf("failed to delete message %s: %w", messageID, err)
				}
				return nil
			},
		})
	}
	return records, nil
}

// Normalize parses one CloudEvents envelope from the queue.
func (a *Adapter) Normalize(rec adapter.RawRecord) (*domain.SignalEvent, bool, error) {
	var e domain.SignalEvent
	if err := json.Unmarshal(rec.Body, &e); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	if e.Source == "" || e.Type == "" {
		return nil, false, fmt.Errorf("envelope missing source or type")
	}
	if e.SpecVersion == "" {
		e.SpecVersion = domain.SpecVersion
	}

	return &e, true, nil
}

// DeriveEventID keeps the pushing source's own deterministic id when the
// envelope carries one, otherwise hashes source, type, incident key and a
// coarse time bucket.
func (a *Adapter) DeriveEventID(e *domain.SignalEvent) string {
	if e.ID != "" {
		return e.ID
	}
	return adapter.EventID(map[string]interface{}{
		"source":       e.Source,
		"type":         e.Type,
		"incident_key": e.IncidentKey,
		"bucket":       adapter.TimeBucket(e.OccurredAt, a.config.DedupBucket),
	})
}

// DeriveIncidentKey keeps a scoped key as-is and prefixes the adapter scope
// onto unscoped ones; an absent key falls back to {scope}:{source}:{type}.
func (a *Adapter) DeriveIncidentKey(e *domain.SignalEvent) string {
	switch {
	case e.IncidentKey == "":
		return fmt.Sprintf("%s:%s:%s", a.config.Scope, e.Source, e.Type)
	case strings.Contains(e.IncidentKey, ":"):
		return e.IncidentKey
	default:
		return fmt.Sprintf("%s:%s", a.config.Scope, e.IncidentKey)
	}
}
