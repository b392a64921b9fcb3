package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// Kafka is a Sink that publishes events to a Kafka topic as JSON.
type Kafka struct {
	writer *kafka.Writer
}

// NewKafka creates a Kafka sink writing to the given brokers and topic.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 100 * time.Millisecond,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// Record encodes the event and publishes it keyed by event name.
func (k *Kafka) Record(ctx context.Context, ev Event) error {
	payload, err := encodeEvent(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Name),
		Value: payload,
	}); err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close flushes pending batches and releases the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

// encodeEvent serializes an Event to a flat JSON object. Property keys are
// emitted in sorted order so payloads are stable for downstream dedup.
func encodeEvent(ev Event) ([]byte, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("event")
	e.Str(ev.Name)
	e.FieldStart("at")
	e.Str(ev.At.UTC().Format(time.RFC3339Nano))

	keys := make([]string, 0, len(ev.Properties))
	for k := range ev.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		e.FieldStart(k)
		if err := encodeValue(&e, ev.Properties[k]); err != nil {
			return nil, errors.Wrapf(err, "property %q", k)
		}
	}
	e.ObjEnd()
	return e.Bytes(), nil
}

func encodeValue(e *jx.Encoder, v any) error {
	switch val := v.(type) {
	case string:
		e.Str(val)
	case int:
		e.Int(val)
	case int64:
		e.Int64(val)
	case float64:
		e.Float64(val)
	case bool:
		e.Bool(val)
	case time.Duration:
		e.Int64(val.Milliseconds())
	case decimal.Decimal:
		e.Str(val.String())
	case []string:
		e.ArrStart()
		for _, s := range val {
			e.Str(s)
		}
		e.ArrEnd()
	default:
		return errors.Errorf("unsupported property type %T", v)
	}
	return nil
}
