package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/sintef/sensapp-go/internal/datamodel"
	"github.com/sintef/sensapp-go/internal/storage"
)

func mustSensor(t *testing.T, name string, kind datamodel.SensorType, unit *datamodel.Unit, labels []datamodel.Label) datamodel.Sensor {
	t.Helper()
	s, err := datamodel.NewSensorWithoutUUID(name, kind, unit, labels)
	if err != nil {
		t.Fatalf("NewSensorWithoutUUID: %v", err)
	}
	return s
}

func TestSenMLIntegerSeriesCarriesBaseTimeAndRelativeOffsets(t *testing.T) {
	sensor := mustSensor(t, "test_sensor", datamodel.Integer, nil, nil)
	t0 := time.Unix(1609459200, 0).UTC()
	samples := datamodel.IntegerSamples{
		{Time: t0, Value: 23},
		{Time: t0.Add(60 * time.Second), Value: 24},
	}

	out, err := SenML(storage.SensorData{Sensor: sensor, Samples: samples})
	if err != nil {
		t.Fatalf("SenML: %v", err)
	}

	var records []map[string]any
	if err := json.Unmarshal(out, &records); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0]["bn"] != "test_sensor" {
		t.Errorf("bn = %v", records[0]["bn"])
	}
	if records[0]["bt"].(float64) != 1609459200.0 {
		t.Errorf("bt = %v", records[0]["bt"])
	}
	if records[0]["v"].(float64) != 23 {
		t.Errorf("v = %v", records[0]["v"])
	}
	if records[1]["t"].(float64) != 60.0 {
		t.Errorf("t = %v", records[1]["t"])
	}
	if records[1]["v"].(float64) != 24 {
		t.Errorf("v = %v", records[1]["v"])
	}
}

func TestSenMLLocationSplitsIntoLatLonRecords(t *testing.T) {
	sensor := mustSensor(t, "gps", datamodel.Location, nil, nil)
	samples := datamodel.LocationSamples{
		{Time: time.Unix(1609459200, 0).UTC(), Value: orb.Point{10.5, 59.9}},
	}

	out, err := SenML(storage.SensorData{Sensor: sensor, Samples: samples})
	if err != nil {
		t.Fatalf("SenML: %v", err)
	}
	var records []map[string]any
	if err := json.Unmarshal(out, &records); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (lat, lon)", len(records))
	}
	if records[0]["n"] != "lat" || records[0]["v"].(float64) != 59.9 {
		t.Errorf("lat record = %v", records[0])
	}
	if records[1]["n"] != "lon" || records[1]["v"].(float64) != 10.5 {
		t.Errorf("lon record = %v", records[1])
	}
}

func TestSingleSensorCSVRenders(t *testing.T) {
	sensor := mustSensor(t, "temp", datamodel.Float, nil, nil)
	samples := datamodel.FloatSamples{
		{Time: time.Unix(1700000000, 0).UTC(), Value: 22.5},
	}
	out, err := SingleSensorCSV(storage.SensorData{Sensor: sensor, Samples: samples})
	if err != nil {
		t.Fatalf("SingleSensorCSV: %v", err)
	}
	s := string(out)
	if !strings.HasPrefix(s, "timestamp,value\n") {
		t.Fatalf("unexpected header: %q", s)
	}
	if !strings.Contains(s, "22.5") {
		t.Fatalf("missing value: %q", s)
	}
}

func TestSingleSensorCSVLocationUsesLatLonColumns(t *testing.T) {
	sensor := mustSensor(t, "gps", datamodel.Location, nil, nil)
	samples := datamodel.LocationSamples{
		{Time: time.Unix(1700000000, 0).UTC(), Value: orb.Point{10.5, 59.9}},
	}
	out, err := SingleSensorCSV(storage.SensorData{Sensor: sensor, Samples: samples})
	if err != nil {
		t.Fatalf("SingleSensorCSV: %v", err)
	}
	s := string(out)
	if !strings.HasPrefix(s, "timestamp,latitude,longitude\n") {
		t.Fatalf("unexpected header: %q", s)
	}
}

func TestMultiSensorCSVUnionsAndSortsLabelColumns(t *testing.T) {
	s1 := mustSensor(t, "temp1", datamodel.Float, nil, []datamodel.Label{{Key: "city", Value: "oslo"}})
	s2 := mustSensor(t, "temp2", datamodel.Float, nil, []datamodel.Label{{Key: "building", Value: "a1"}})
	ts := time.Unix(1700000000, 0).UTC()

	out, err := MultiSensorCSV([]storage.SensorData{
		{Sensor: s1, Samples: datamodel.FloatSamples{{Time: ts, Value: 1.0}}},
		{Sensor: s2, Samples: datamodel.FloatSamples{{Time: ts, Value: 2.0}}},
	})
	if err != nil {
		t.Fatalf("MultiSensorCSV: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3 (header + 2 rows): %q", len(lines), out)
	}
	if lines[0] != "timestamp,sensor_id,sensor_name,value,type,building,city" {
		t.Fatalf("header = %q", lines[0])
	}
}

func TestJSONLOneObjectPerSample(t *testing.T) {
	sensor := mustSensor(t, "status", datamodel.Boolean, nil, []datamodel.Label{{Key: "room", Value: "101"}})
	samples := datamodel.BooleanSamples{
		{Time: time.Unix(1700000000, 0).UTC(), Value: true},
		{Time: time.Unix(1700000001, 0).UTC(), Value: false},
	}
	out, err := JSONL(storage.SensorData{Sensor: sensor, Samples: samples})
	if err != nil {
		t.Fatalf("JSONL: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &obj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if obj["sensor_name"] != "status" || obj["value"] != true {
		t.Errorf("obj = %v", obj)
	}
	labels, ok := obj["labels"].(map[string]any)
	if !ok || labels["room"] != "101" {
		t.Errorf("labels = %v", obj["labels"])
	}
}

func TestArrowEncodesIntegerSeries(t *testing.T) {
	sensor := mustSensor(t, "counter", datamodel.Integer, nil, nil)
	samples := datamodel.IntegerSamples{
		{Time: time.Unix(1700000000, 0).UTC(), Value: 42},
		{Time: time.Unix(1700000001, 0).UTC(), Value: 43},
	}
	out, err := Arrow(storage.SensorData{Sensor: sensor, Samples: samples})
	if err != nil {
		t.Fatalf("Arrow: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty output")
	}
}

func init() {
	datamodel.InitSalt("sensapp export tests")
}
