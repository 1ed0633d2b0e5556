package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"time"

	"github.com/paulmach/orb"

	"github.com/sintef/sensapp-go/internal/storage"
)

// SingleSensorCSV renders sd as `timestamp,value` (or
// `timestamp,latitude,longitude` for a Location series), one row per
// sample, timestamps in RFC-3339 (§4.7).
func SingleSensorCSV(sd storage.SensorData) ([]byte, error) {
	rows, err := rowsOf(sd.Samples)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if isLocationSeries(rows) {
		if err := w.Write([]string{"timestamp", "latitude", "longitude"}); err != nil {
			return nil, err
		}
		for _, r := range rows {
			lat, lon, err := latLon(r.Value)
			if err != nil {
				return nil, err
			}
			if err := w.Write([]string{rfc3339(r.Time), formatFloat(lat), formatFloat(lon)}); err != nil {
				return nil, err
			}
		}
	} else {
		if err := w.Write([]string{"timestamp", "value"}); err != nil {
			return nil, err
		}
		for _, r := range rows {
			s, err := scalarString(r.Value)
			if err != nil {
				return nil, err
			}
			if err := w.Write([]string{rfc3339(r.Time), s}); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// isLocationSeries reports whether rows' shared value kind is
// Location, inspected from the first row (every row in a TypedSamples
// run shares one kind).
func isLocationSeries(rows []row) bool {
	if len(rows) == 0 {
		return false
	}
	_, ok := rows[0].Value.(orb.Point)
	return ok
}

// MultiSensorCSV renders sds as one table:
// timestamp,sensor_id,sensor_name,value,type plus one column per label
// key appearing across any of sds, sorted alphabetically; a sensor
// missing a given label renders that cell empty (§4.7).
func MultiSensorCSV(sds []storage.SensorData) ([]byte, error) {
	labelKeys := map[string]struct{}{}
	for _, sd := range sds {
		for _, l := range sd.Sensor.Labels {
			labelKeys[l.Key] = struct{}{}
		}
	}
	sortedKeys := make([]string, 0, len(labelKeys))
	for k := range labelKeys {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Strings(sortedKeys)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string{"timestamp", "sensor_id", "sensor_name", "value", "type"}, sortedKeys...)
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, sd := range sds {
		rows, err := rowsOf(sd.Samples)
		if err != nil {
			return nil, err
		}
		labelByKey := make(map[string]string, len(sd.Sensor.Labels))
		for _, l := range sd.Sensor.Labels {
			labelByKey[l.Key] = l.Value
		}

		for _, r := range rows {
			var valueCol string
			if lat, lon, err := latLon(r.Value); err == nil {
				valueCol = fmt.Sprintf("%s,%s", formatFloat(lat), formatFloat(lon))
			} else {
				valueCol, err = scalarString(r.Value)
				if err != nil {
					return nil, err
				}
			}

			record := []string{
				rfc3339(r.Time),
				sd.Sensor.UUID.String(),
				sd.Sensor.Name,
				valueCol,
				sd.Sensor.Type.String(),
			}
			for _, k := range sortedKeys {
				record = append(record, labelByKey[k])
			}
			if err := w.Write(record); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func rfc3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
