package csv

import (
	"context"
	"strings"
	"testing"

	"github.com/sintef/sensapp-go/internal/batch"
	"github.com/sintef/sensapp-go/internal/datamodel"
)

func init() {
	datamodel.InitSalt("sensapp csv ingest tests")
}

type capturingPublisher struct {
	batches []batch.Batch
}

func (p *capturingPublisher) Publish(ctx context.Context, b batch.Batch) error {
	p.batches = append(p.batches, b)
	return nil
}

func ingestAll(t *testing.T, body, defaultSensorName string, maxInferenceRows int) *capturingPublisher {
	t.Helper()
	pub := &capturingPublisher{}
	bb := batch.NewBatchBuilder(1024)
	if err := Ingest(context.Background(), strings.NewReader(body), bb, pub, defaultSensorName, maxInferenceRows); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := bb.SendWhatIsLeft(context.Background(), pub); err != nil {
		t.Fatalf("SendWhatIsLeft: %v", err)
	}
	return pub
}

func allItems(pub *capturingPublisher) []*batch.SingleSensorBatch {
	var items []*batch.SingleSensorBatch
	for _, b := range pub.batches {
		items = append(items, b.Items...)
	}
	return items
}

func TestIngestSingleSensorLongFormatUsesDefaultName(t *testing.T) {
	body := "timestamp,value\n2024-01-01T00:00:00Z,22.5\n2024-01-01T01:00:00Z,23.1\n"
	items := allItems(ingestAll(t, body, "room_temp", 0))
	if len(items) != 1 {
		t.Fatalf("got %d series, want 1", len(items))
	}
	sensor := items[0].Sensor()
	if sensor.Name != "room_temp" {
		t.Errorf("Name = %q", sensor.Name)
	}
	if sensor.Type != datamodel.Float {
		t.Errorf("Type = %v", sensor.Type)
	}
	samples, ok := items[0].Samples().(datamodel.FloatSamples)
	if !ok || len(samples) != 2 {
		t.Fatalf("samples = %#v", items[0].Samples())
	}
}

func TestIngestLongFormatGroupsBySensorName(t *testing.T) {
	body := "datetime,sensor_name,value\n" +
		"2024-01-01T00:00:00Z,temp1,22.5\n" +
		"2024-01-01T01:00:00Z,temp2,23.1\n"
	items := allItems(ingestAll(t, body, "", 0))
	if len(items) != 2 {
		t.Fatalf("got %d series, want 2", len(items))
	}
	names := map[string]bool{}
	for _, item := range items {
		names[item.Sensor().Name] = true
	}
	if !names["temp1"] || !names["temp2"] {
		t.Errorf("names = %v", names)
	}
}

func TestIngestLongFormatWithSensorUUID(t *testing.T) {
	id := "5d11aabf-8b2d-4f0e-9a4e-7f3f4d1f1f1a"
	body := "timestamp,sensor_uuid,value\n2024-01-01T00:00:00Z," + id + ",22.5\n"
	items := allItems(ingestAll(t, body, "", 0))
	if len(items) != 1 {
		t.Fatalf("got %d series, want 1", len(items))
	}
	if items[0].Sensor().UUID.String() != id {
		t.Errorf("UUID = %v, want %v", items[0].Sensor().UUID, id)
	}
}

func TestIngestLongFormatRejectsInvalidUUID(t *testing.T) {
	bb := batch.NewBatchBuilder(1024)
	pub := &capturingPublisher{}
	body := "timestamp,sensor_uuid,value\n2024-01-01T00:00:00Z,not-a-uuid,22.5\n"
	err := Ingest(context.Background(), strings.NewReader(body), bb, pub, "", 0)
	if err == nil {
		t.Fatal("expected an error for an invalid sensor_uuid")
	}
}

func TestIngestLongFormatCarriesExtraColumnsAsLabels(t *testing.T) {
	body := "timestamp,sensor_name,value,city\n2024-01-01T00:00:00Z,temp1,22.5,oslo\n"
	items := allItems(ingestAll(t, body, "", 0))
	if len(items) != 1 {
		t.Fatalf("got %d series, want 1", len(items))
	}
	labels := items[0].Sensor().Labels
	if len(labels) != 1 || labels[0].Key != "city" || labels[0].Value != "oslo" {
		t.Errorf("labels = %v", labels)
	}
}

func TestIngestWideFormatSplitsColumnsIntoSeries(t *testing.T) {
	body := "timestamp,temperature,humidity\n" +
		"2024-01-01T00:00:00Z,22.5,65\n" +
		"2024-01-01T01:00:00Z,23.1,63\n"
	items := allItems(ingestAll(t, body, "", 0))
	if len(items) != 2 {
		t.Fatalf("got %d series, want 2", len(items))
	}
	kinds := map[string]datamodel.SensorType{}
	for _, item := range items {
		kinds[item.Sensor().Name] = item.Sensor().Type
	}
	if kinds["temperature"] != datamodel.Float {
		t.Errorf("temperature kind = %v", kinds["temperature"])
	}
	if kinds["humidity"] != datamodel.Integer {
		t.Errorf("humidity kind = %v", kinds["humidity"])
	}
}

func TestIngestInfersBooleanAndStringFallback(t *testing.T) {
	body := "timestamp,door_open,status\n" +
		"2024-01-01T00:00:00Z,true,ok\n" +
		"2024-01-01T01:00:00Z,false,degraded\n"
	items := allItems(ingestAll(t, body, "", 0))
	kinds := map[string]datamodel.SensorType{}
	for _, item := range items {
		kinds[item.Sensor().Name] = item.Sensor().Type
	}
	if kinds["door_open"] != datamodel.Boolean {
		t.Errorf("door_open kind = %v", kinds["door_open"])
	}
	if kinds["status"] != datamodel.String {
		t.Errorf("status kind = %v", kinds["status"])
	}
}

func TestIngestRejectsMissingTimestampColumn(t *testing.T) {
	bb := batch.NewBatchBuilder(1024)
	pub := &capturingPublisher{}
	body := "value\n22.5\n"
	err := Ingest(context.Background(), strings.NewReader(body), bb, pub, "s", 0)
	if err == nil {
		t.Fatal("expected an error for a header without a timestamp/datetime column")
	}
}

func TestIngestRejectsEmptyBody(t *testing.T) {
	bb := batch.NewBatchBuilder(1024)
	pub := &capturingPublisher{}
	err := Ingest(context.Background(), strings.NewReader(""), bb, pub, "s", 0)
	if err == nil {
		t.Fatal("expected an error for an empty body")
	}
}
