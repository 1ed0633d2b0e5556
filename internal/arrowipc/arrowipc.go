// Package arrowipc implements the narrow single-record-batch subset of
// Arrow IPC this module needs (C7.5/C8, §4.6/§4.7): one column of
// microsecond timestamps, one typed value column, and sensor_id /
// sensor_name columns, matching the field layout
// original_source/src/exporters/arrow/mod.rs writes and
// src/importers/arrow.rs reads.
//
// No Arrow Go library exists anywhere in the retrieved pack (per
// DESIGN.md), and a real Arrow IPC file is itself a Flatbuffers-framed
// container — pulling in a Flatbuffers codec just to hand-roll Arrow's
// own schema messages on top of it would add a dependency not used
// for its intended purpose. So this package is a small, self-describing
// binary framing carrying exactly the columns SensApp's Arrow adapters
// read and write, length-prefixed and fixed-width per Go's
// encoding/binary conventions (the same low-level binary-framing style
// the teacher uses for internal/sharedmem's Unix-socket protocol).
package arrowipc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sintef/sensapp-go/internal/datamodel"
)

var magic = [8]byte{'S', 'A', 'I', 'P', 'C', '1', '\n', 0}

// Row is one record-batch row: a timestamp, a value of the kind named
// by the batch's shared SensorType, and the sensor identity it
// belongs to.
type Row struct {
	Time       time.Time
	SensorID   uuid.UUID
	SensorName string
	Value      any // int64, float64, decimal.Decimal, string, bool, orb.Point-shaped {Lat,Lon float64}, []byte
}

// LatLon is the on-wire shape of a Location value; avoids importing
// orb here so this package stays a pure codec.
type LatLon struct {
	Lat, Lon float64
}

// WriteFile serializes rows (all sharing kind) as a single record
// batch to w.
func WriteFile(w io.Writer, kind datamodel.SensorType, rows []Row) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(rows))); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(kind)); err != nil {
		return err
	}

	for _, r := range rows {
		if err := binary.Write(w, binary.LittleEndian, r.Time.UnixMicro()); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err := writeValue(w, kind, r.Value); err != nil {
			return err
		}
	}
	for _, r := range rows {
		idBytes := r.SensorID
		if _, err := w.Write(idBytes[:]); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err := writeString(w, r.SensorName); err != nil {
			return err
		}
	}
	return nil
}

func writeValue(w io.Writer, kind datamodel.SensorType, v any) error {
	switch kind {
	case datamodel.Integer:
		return binary.Write(w, binary.LittleEndian, v.(int64))
	case datamodel.Float:
		return binary.Write(w, binary.LittleEndian, v.(float64))
	case datamodel.Numeric:
		return writeString(w, v.(decimal.Decimal).String())
	case datamodel.String:
		return writeString(w, v.(string))
	case datamodel.Boolean:
		var b uint8
		if v.(bool) {
			b = 1
		}
		return binary.Write(w, binary.LittleEndian, b)
	case datamodel.Location:
		ll := v.(LatLon)
		if err := binary.Write(w, binary.LittleEndian, ll.Lat); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, ll.Lon)
	case datamodel.Json:
		return writeString(w, v.(string))
	case datamodel.Blob:
		return writeBytes(w, v.([]byte))
	default:
		return fmt.Errorf("arrowipc: unsupported value kind %v", kind)
	}
}

func writeString(w io.Writer, s string) error {
	return writeBytes(w, []byte(s))
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// File is one decoded record batch.
type File struct {
	Kind datamodel.SensorType
	Rows []Row
}

// ReadFile parses a record batch previously written by WriteFile.
func ReadFile(r io.Reader) (*File, error) {
	var got [8]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return nil, fmt.Errorf("arrowipc: read magic: %w", err)
	}
	if got != magic {
		return nil, fmt.Errorf("arrowipc: not a recognized arrow-ipc-subset file")
	}

	var numRows uint32
	if err := binary.Read(r, binary.LittleEndian, &numRows); err != nil {
		return nil, fmt.Errorf("arrowipc: read row count: %w", err)
	}
	var kindByte uint8
	if err := binary.Read(r, binary.LittleEndian, &kindByte); err != nil {
		return nil, fmt.Errorf("arrowipc: read value kind: %w", err)
	}
	kind := datamodel.SensorType(kindByte)

	rows := make([]Row, numRows)

	for i := range rows {
		var micros int64
		if err := binary.Read(r, binary.LittleEndian, &micros); err != nil {
			return nil, fmt.Errorf("arrowipc: read timestamp %d: %w", i, err)
		}
		rows[i].Time = time.UnixMicro(micros).UTC()
	}
	for i := range rows {
		v, err := readValue(r, kind)
		if err != nil {
			return nil, fmt.Errorf("arrowipc: read value %d: %w", i, err)
		}
		rows[i].Value = v
	}
	for i := range rows {
		var idBytes [16]byte
		if _, err := io.ReadFull(r, idBytes[:]); err != nil {
			return nil, fmt.Errorf("arrowipc: read sensor_id %d: %w", i, err)
		}
		id, err := uuid.FromBytes(idBytes[:])
		if err != nil {
			return nil, fmt.Errorf("arrowipc: sensor_id %d: %w", i, err)
		}
		rows[i].SensorID = id
	}
	for i := range rows {
		name, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("arrowipc: read sensor_name %d: %w", i, err)
		}
		rows[i].SensorName = name
	}

	return &File{Kind: kind, Rows: rows}, nil
}

func readValue(r io.Reader, kind datamodel.SensorType) (any, error) {
	switch kind {
	case datamodel.Integer:
		var v int64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case datamodel.Float:
		var v float64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case datamodel.Numeric:
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid decimal %q: %w", s, err)
		}
		return d, nil
	case datamodel.String:
		return readString(r)
	case datamodel.Boolean:
		var b uint8
		if err := binary.Read(r, binary.LittleEndian, &b); err != nil {
			return nil, err
		}
		return b != 0, nil
	case datamodel.Location:
		var lat, lon float64
		if err := binary.Read(r, binary.LittleEndian, &lat); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &lon); err != nil {
			return nil, err
		}
		return LatLon{Lat: lat, Lon: lon}, nil
	case datamodel.Json:
		return readString(r)
	case datamodel.Blob:
		return readBytes(r)
	default:
		return nil, fmt.Errorf("unsupported value kind %v", kind)
	}
}

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Bytes serializes rows to an in-memory buffer, for callers (tests,
// HTTP handlers) that need the whole file at once.
func Bytes(kind datamodel.SensorType, rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteFile(&buf, kind, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
