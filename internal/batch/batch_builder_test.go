package batch

import (
	"context"
	"testing"
	"time"

	"github.com/sintef/sensapp-go/internal/datamodel"
)

func init() {
	datamodel.InitSalt("sensapp tests")
}

type recordingPublisher struct {
	batches []Batch
	err     error
}

func (p *recordingPublisher) Publish(ctx context.Context, b Batch) error {
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, b)
	return nil
}

func mustSensor(t *testing.T, name string) datamodel.Sensor {
	t.Helper()
	s, err := datamodel.NewSensorWithoutUUID(name, datamodel.Integer, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func TestBatchBuilderFlushesAtThreshold(t *testing.T) {
	pub := &recordingPublisher{}
	b := NewBatchBuilder(4)
	sensor := mustSensor(t, "temperature")

	samples := datamodel.NewIntegerSamples(
		datamodel.Sample[int64]{Time: time.Unix(1, 0), Value: 1},
		datamodel.Sample[int64]{Time: time.Unix(2, 0), Value: 2},
		datamodel.Sample[int64]{Time: time.Unix(3, 0), Value: 3},
		datamodel.Sample[int64]{Time: time.Unix(4, 0), Value: 4},
	)
	if err := b.Add(context.Background(), pub, sensor, samples); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.batches) != 1 {
		t.Fatalf("expected exactly one flush at threshold, got %d", len(pub.batches))
	}
	if pub.batches[0].Items[0].Samples().Len() != 4 {
		t.Fatalf("expected 4 samples in flushed batch")
	}
}

func TestBatchBuilderSendWhatIsLeft(t *testing.T) {
	pub := &recordingPublisher{}
	b := NewBatchBuilder(100)
	sensor := mustSensor(t, "humidity")

	samples := datamodel.NewIntegerSamples(datamodel.Sample[int64]{Time: time.Unix(1, 0), Value: 7})
	if err := b.Add(context.Background(), pub, sensor, samples); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.batches) != 0 {
		t.Fatal("did not expect a flush before threshold")
	}

	sent, err := b.SendWhatIsLeft(context.Background(), pub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sent {
		t.Fatal("expected SendWhatIsLeft to report data sent")
	}
	if len(pub.batches) != 1 {
		t.Fatalf("expected one flush, got %d", len(pub.batches))
	}

	sent, err = b.SendWhatIsLeft(context.Background(), pub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent {
		t.Fatal("expected no-op flush on empty builder")
	}
}

func TestBatchBuilderChunksOversizedSamples(t *testing.T) {
	pub := &recordingPublisher{}
	b := NewBatchBuilder(2)
	sensor := mustSensor(t, "pressure")

	var samples datamodel.IntegerSamples
	for i := int64(1); i <= 5; i++ {
		samples = append(samples, datamodel.Sample[int64]{Time: time.Unix(i, 0), Value: i})
	}
	if err := b.Add(context.Background(), pub, sensor, samples); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 5 samples chunked by 2 -> chunks of 2,2,1; first two chunks each
	// hit the threshold immediately and flush, leaving the last chunk
	// (length 1) buffered.
	if len(pub.batches) != 2 {
		t.Fatalf("expected 2 flushes from chunking, got %d", len(pub.batches))
	}
	sent, err := b.SendWhatIsLeft(context.Background(), pub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sent {
		t.Fatal("expected remaining chunk to be flushed")
	}
	if len(pub.batches) != 3 {
		t.Fatalf("expected 3 total flushes, got %d", len(pub.batches))
	}

	total := 0
	for _, batch := range pub.batches {
		for _, item := range batch.Items {
			total += item.Samples().Len()
		}
	}
	if total != 5 {
		t.Fatalf("expected all 5 samples to be flushed across batches, got %d", total)
	}
}

func TestBatchBuilderHaltsAfterStorageError(t *testing.T) {
	pub := &recordingPublisher{err: datamodel.NewError(datamodel.Database, "boom")}
	b := NewBatchBuilder(1)
	sensor := mustSensor(t, "flow")

	samples := datamodel.NewIntegerSamples(datamodel.Sample[int64]{Time: time.Unix(1, 0), Value: 1})
	if err := b.Add(context.Background(), pub, sensor, samples); err == nil {
		t.Fatal("expected the flush error to propagate")
	}

	if err := b.Add(context.Background(), pub, sensor, samples); err == nil {
		t.Fatal("expected further adds to fail after a mid-stream flush error")
	}
}
