package datamodel

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Label is a single (key, value) pair attached to a series.
type Label struct {
	Key   string
	Value string
}

// Sensor is the full descriptor of a series: its identity, its value
// kind, an optional unit, and its sorted labels.
type Sensor struct {
	UUID   uuid.UUID
	Name   string
	Type   SensorType
	Unit   *Unit
	Labels []Label
}

func (s Sensor) String() string {
	out := fmt.Sprintf("Sensor { uuid: %s, name: %s, sensor_type: %s", s.UUID, s.Name, s.Type)
	if s.Unit != nil {
		out += fmt.Sprintf(", unit: %s", s.Unit)
	}
	if len(s.Labels) > 0 {
		out += fmt.Sprintf(", labels: %v", s.Labels)
	}
	return out + " }"
}

// sortLabels sorts labels in place by key then value, matching the
// ordering required before identity derivation and before any label
// row is written.
func sortLabels(labels []Label) {
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Key != labels[j].Key {
			return labels[i].Key < labels[j].Key
		}
		return labels[i].Value < labels[j].Value
	})
}

// ContainsSpecialChars reports whether s contains one of the ASCII
// control bytes reserved as structural separators in identity
// derivation: VT (0x0B), FS/GS/RS/US (0x1C-0x1F).
func ContainsSpecialChars(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 0x0B, 0x1C, 0x1D, 0x1E, 0x1F:
			return true
		}
	}
	return false
}

const (
	recordSeparator = 0x1E
	unitSeparator   = 0x1F
)

// computeIdentityBuffer serializes (name, sensor_type, unit, labels)
// into the canonical byte buffer consumed by identity derivation
// (§3.3). labels must already be sorted.
func computeIdentityBuffer(name string, sensorType SensorType, unit *Unit, labels []Label) ([]byte, error) {
	if ContainsSpecialChars(name) {
		return nil, &StorageError{Kind: InvalidName, Message: fmt.Sprintf("the name %q contains special characters", name)}
	}

	size := len(name) + 1 + 1 + 1
	if unit != nil {
		size += len(unit.Name) + 1
	} else {
		size += 1
	}
	for _, l := range labels {
		if ContainsSpecialChars(l.Key) {
			return nil, &StorageError{Kind: InvalidName, Message: fmt.Sprintf("the tag key %q contains special characters", l.Key)}
		}
		if ContainsSpecialChars(l.Value) {
			return nil, &StorageError{Kind: InvalidName, Message: fmt.Sprintf("the tag value %q contains special characters", l.Value)}
		}
		size += len(l.Key) + 1 + len(l.Value) + 1
	}

	buf := make([]byte, 0, size)
	buf = append(buf, name...)
	buf = append(buf, recordSeparator)
	buf = append(buf, byte(sensorType))
	buf = append(buf, recordSeparator)
	if unit != nil {
		buf = append(buf, unit.Name...)
	}
	buf = append(buf, recordSeparator)
	for _, l := range labels {
		buf = append(buf, l.Key...)
		buf = append(buf, unitSeparator)
		buf = append(buf, l.Value...)
		buf = append(buf, recordSeparator)
	}
	return buf, nil
}

// NewSensor constructs a Sensor with an already-known UUID. It stores a
// sorted copy of labels; the caller's slice is left unchanged.
func NewSensor(id uuid.UUID, name string, sensorType SensorType, unit *Unit, labels []Label) Sensor {
	sorted := append([]Label(nil), labels...)
	sortLabels(sorted)
	return Sensor{UUID: id, Name: name, Type: sensorType, Unit: unit, Labels: sorted}
}

// NewSensorWithoutUUID sorts labels, serializes the canonical identity
// buffer, and derives the series UUID per §3.3.
func NewSensorWithoutUUID(name string, sensorType SensorType, unit *Unit, labels []Label) (Sensor, error) {
	sorted := append([]Label(nil), labels...)
	sortLabels(sorted)

	buf, err := computeIdentityBuffer(name, sensorType, unit, sorted)
	if err != nil {
		return Sensor{}, err
	}
	id, err := deriveUUID(buf)
	if err != nil {
		return Sensor{}, err
	}
	return Sensor{UUID: id, Name: name, Type: sensorType, Unit: unit, Labels: sorted}, nil
}
