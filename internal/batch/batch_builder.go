package batch

import (
	"context"
	"sync"

	"github.com/sintef/sensapp-go/internal/datamodel"
)

// DefaultBatchSize is the default flush threshold (§6.2), counted over
// the samples buffered for all series together.
const DefaultBatchSize = 8192

type seriesAccumulator struct {
	sensor  datamodel.Sensor
	samples datamodel.TypedSamples
}

// BatchBuilder accumulates samples per series and flushes them to a
// Publisher once the total buffered across all series reaches
// batchSize. It is
// single-writer: Add must be called from one goroutine at a time
// (§4.3, §5).
type BatchBuilder struct {
	mu        sync.Mutex
	batchSize int
	order     []string
	series    map[string]*seriesAccumulator
	size      int
	failed    error
}

// NewBatchBuilder creates a builder with the given flush threshold. A
// batchSize <= 0 uses DefaultBatchSize.
func NewBatchBuilder(batchSize int) *BatchBuilder {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BatchBuilder{
		batchSize: batchSize,
		series:    make(map[string]*seriesAccumulator),
	}
}

// Add appends samples for sensor to the builder's accumulator. Samples
// longer than batchSize are first split into chunks of at most
// batchSize (§4.1); after each chunk is appended, the builder flushes
// if the total buffered size has reached batchSize.
func (b *BatchBuilder) Add(ctx context.Context, publisher Publisher, sensor datamodel.Sensor, samples datamodel.TypedSamples) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failed != nil {
		return b.failed
	}

	chunks, err := samples.IntoChunks(b.batchSize)
	if err != nil {
		return err
	}

	for _, chunk := range chunks {
		if err := b.appendChunk(ctx, publisher, sensor, chunk); err != nil {
			b.failed = err
			return err
		}
	}
	return nil
}

func (b *BatchBuilder) appendChunk(ctx context.Context, publisher Publisher, sensor datamodel.Sensor, chunk datamodel.TypedSamples) error {
	key := sensor.UUID.String()
	acc, ok := b.series[key]
	if !ok {
		acc = &seriesAccumulator{sensor: sensor, samples: chunk.CloneEmpty()}
		b.series[key] = acc
		b.order = append(b.order, key)
	}
	acc.samples = appendSamples(acc.samples, chunk)
	b.size += chunk.Len()

	if b.size >= b.batchSize {
		return b.flushLocked(ctx, publisher)
	}
	return nil
}

// SendWhatIsLeft flushes any buffered samples, returning true iff
// anything was sent. Safe to call on an empty builder.
func (b *BatchBuilder) SendWhatIsLeft(ctx context.Context, publisher Publisher) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failed != nil {
		return false, b.failed
	}
	if len(b.order) == 0 {
		return false, nil
	}
	if err := b.flushLocked(ctx, publisher); err != nil {
		b.failed = err
		return false, err
	}
	return true, nil
}

func (b *BatchBuilder) flushLocked(ctx context.Context, publisher Publisher) error {
	if len(b.order) == 0 {
		return nil
	}
	batch := Batch{Items: make([]*SingleSensorBatch, 0, len(b.order))}
	for _, key := range b.order {
		acc := b.series[key]
		batch.Items = append(batch.Items, NewSingleSensorBatch(acc.sensor, acc.samples))
	}

	if err := publisher.Publish(ctx, batch); err != nil {
		return err
	}

	b.series = make(map[string]*seriesAccumulator)
	b.order = nil
	b.size = 0
	return nil
}

// appendSamples concatenates two same-kind TypedSamples values,
// dispatching on the concrete type.
func appendSamples(a, b datamodel.TypedSamples) datamodel.TypedSamples {
	switch av := a.(type) {
	case datamodel.IntegerSamples:
		return append(av, b.(datamodel.IntegerSamples)...)
	case datamodel.NumericSamples:
		return append(av, b.(datamodel.NumericSamples)...)
	case datamodel.FloatSamples:
		return append(av, b.(datamodel.FloatSamples)...)
	case datamodel.StringSamples:
		return append(av, b.(datamodel.StringSamples)...)
	case datamodel.BooleanSamples:
		return append(av, b.(datamodel.BooleanSamples)...)
	case datamodel.LocationSamples:
		return append(av, b.(datamodel.LocationSamples)...)
	case datamodel.JSONSamples:
		return append(av, b.(datamodel.JSONSamples)...)
	case datamodel.BlobSamples:
		return append(av, b.(datamodel.BlobSamples)...)
	default:
		return a
	}
}
