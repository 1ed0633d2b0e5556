package arrow

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sintef/sensapp-go/internal/arrowipc"
	"github.com/sintef/sensapp-go/internal/batch"
	"github.com/sintef/sensapp-go/internal/datamodel"
)

type capturingPublisher struct {
	batches []batch.Batch
}

func (p *capturingPublisher) Publish(ctx context.Context, b batch.Batch) error {
	p.batches = append(p.batches, b)
	return nil
}

func allItems(pub *capturingPublisher) []*batch.SingleSensorBatch {
	var items []*batch.SingleSensorBatch
	for _, b := range pub.batches {
		items = append(items, b.Items...)
	}
	return items
}

func TestIngestSingleSensorIntegerBatch(t *testing.T) {
	id := uuid.New()
	t1 := time.Unix(1700000000, 0).UTC()
	t2 := t1.Add(time.Second)

	data, err := arrowipc.Bytes(datamodel.Integer, []arrowipc.Row{
		{Time: t1, SensorID: id, SensorName: "test_sensor", Value: int64(42)},
		{Time: t2, SensorID: id, SensorName: "test_sensor", Value: int64(84)},
	})
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	pub := &capturingPublisher{}
	bb := batch.NewBatchBuilder(1024)
	if err := Ingest(context.Background(), bytes.NewReader(data), bb, pub); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := bb.SendWhatIsLeft(context.Background(), pub); err != nil {
		t.Fatalf("SendWhatIsLeft: %v", err)
	}

	items := allItems(pub)
	if len(items) != 1 {
		t.Fatalf("got %d series, want 1", len(items))
	}
	sensor := items[0].Sensor()
	if sensor.UUID != id || sensor.Name != "test_sensor" || sensor.Type != datamodel.Integer {
		t.Fatalf("sensor = %+v", sensor)
	}
	samples, ok := items[0].Samples().(datamodel.IntegerSamples)
	if !ok || len(samples) != 2 || samples[0].Value != 42 || samples[1].Value != 84 {
		t.Fatalf("samples = %#v", items[0].Samples())
	}
}

func TestIngestGroupsRowsByDistinctSensorIdentity(t *testing.T) {
	idA, idB := uuid.New(), uuid.New()
	ts := time.Unix(1700000000, 0).UTC()

	data, err := arrowipc.Bytes(datamodel.Float, []arrowipc.Row{
		{Time: ts, SensorID: idA, SensorName: "temp_a", Value: 1.5},
		{Time: ts, SensorID: idB, SensorName: "temp_b", Value: 2.5},
		{Time: ts.Add(time.Second), SensorID: idA, SensorName: "temp_a", Value: 1.6},
	})
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	pub := &capturingPublisher{}
	bb := batch.NewBatchBuilder(1024)
	if err := Ingest(context.Background(), bytes.NewReader(data), bb, pub); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := bb.SendWhatIsLeft(context.Background(), pub); err != nil {
		t.Fatalf("SendWhatIsLeft: %v", err)
	}

	items := allItems(pub)
	if len(items) != 2 {
		t.Fatalf("got %d series, want 2", len(items))
	}
	counts := map[string]int{}
	for _, item := range items {
		samples := item.Samples().(datamodel.FloatSamples)
		counts[item.Sensor().Name] = len(samples)
	}
	if counts["temp_a"] != 2 || counts["temp_b"] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestIngestRejectsBadMagic(t *testing.T) {
	bb := batch.NewBatchBuilder(1024)
	pub := &capturingPublisher{}
	err := Ingest(context.Background(), bytes.NewReader([]byte("not an arrow batch at all")), bb, pub)
	if err == nil {
		t.Fatal("expected an error for an unrecognized file")
	}
}

func TestIngestBooleanAndStringAndBlobKinds(t *testing.T) {
	id := uuid.New()
	ts := time.Unix(1700000000, 0).UTC()

	for _, tc := range []struct {
		name string
		kind datamodel.SensorType
		val  any
	}{
		{"bool_sensor", datamodel.Boolean, true},
		{"string_sensor", datamodel.String, "hello"},
		{"blob_sensor", datamodel.Blob, []byte{1, 2, 3}},
	} {
		data, err := arrowipc.Bytes(tc.kind, []arrowipc.Row{
			{Time: ts, SensorID: id, SensorName: tc.name, Value: tc.val},
		})
		if err != nil {
			t.Fatalf("%s: Bytes: %v", tc.name, err)
		}
		pub := &capturingPublisher{}
		bb := batch.NewBatchBuilder(1024)
		if err := Ingest(context.Background(), bytes.NewReader(data), bb, pub); err != nil {
			t.Fatalf("%s: Ingest: %v", tc.name, err)
		}
		if _, err := bb.SendWhatIsLeft(context.Background(), pub); err != nil {
			t.Fatalf("%s: SendWhatIsLeft: %v", tc.name, err)
		}
		items := allItems(pub)
		if len(items) != 1 || items[0].Sensor().Type != tc.kind {
			t.Fatalf("%s: items = %+v", tc.name, items)
		}
	}
}
