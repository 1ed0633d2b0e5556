// Package batch groups incoming samples per series into bounded
// batches and hands them to a storage backend, per §4.3.
package batch

import (
	"context"
	"sync"

	"github.com/sintef/sensapp-go/internal/datamodel"
)

// SingleSensorBatch owns a Sensor and the samples accumulated for it
// since the last flush. Both fields are guarded by an internal
// read-write mutex; the Sensor and Samples accessors take its read lock.
type SingleSensorBatch struct {
	mu      sync.RWMutex
	sensor  datamodel.Sensor
	samples datamodel.TypedSamples
}

func NewSingleSensorBatch(sensor datamodel.Sensor, samples datamodel.TypedSamples) *SingleSensorBatch {
	return &SingleSensorBatch{sensor: sensor, samples: samples}
}

func (b *SingleSensorBatch) Sensor() datamodel.Sensor {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sensor
}

func (b *SingleSensorBatch) Samples() datamodel.TypedSamples {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.samples
}

// Batch is an ordered collection of SingleSensorBatch, one per series
// touched since the last flush.
type Batch struct {
	Items []*SingleSensorBatch
}

// Publisher is the subset of the storage interface the batch builder
// depends on, to avoid an import cycle with package storage.
type Publisher interface {
	Publish(ctx context.Context, batch Batch) error
}
