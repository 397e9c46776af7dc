// Package config defines Flow Core's externally configurable options
// and the defaults that apply when a field is left unset.
package config

import "time"

// Config collects every externally configurable option named in §6.
// Zero-valued fields are filled from Default() by Normalize.
type Config struct {
	Queue          QueueConfig     `yaml:"queue" json:"queue"`
	Worker         WorkerConfig    `yaml:"worker" json:"worker"`
	Trace          TraceConfig     `yaml:"trace" json:"trace"`
	Dedup          DedupConfig     `yaml:"dedup" json:"dedup"`
	Validator      ValidatorConfig `yaml:"validator" json:"validator"`
	Export         ExportConfig    `yaml:"export" json:"export"`
	EnqueueTimeout time.Duration   `yaml:"enqueue_timeout" json:"enqueue_timeout"`
}

// QueueConfig tunes C4.
type QueueConfig struct {
	Capacity              int `yaml:"capacity" json:"capacity"`
	BackpressureThreshold int `yaml:"backpressure_threshold" json:"backpressure_threshold"`
}

// WorkerConfig tunes C5.
type WorkerConfig struct {
	Count       int           `yaml:"count" json:"count"`
	PollTimeout time.Duration `yaml:"poll_timeout" json:"poll_timeout"`
}

// TraceConfig tunes C3's retention policy.
type TraceConfig struct {
	TTL              time.Duration `yaml:"ttl" json:"ttl"`
	MaxCount         int           `yaml:"max_count" json:"max_count"`
	EvictionInterval time.Duration `yaml:"eviction_interval" json:"eviction_interval"`
}

// DedupConfig tunes C3's dedup behavior.
type DedupConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// ValidatorConfig tunes C6's post-merge validator.
type ValidatorConfig struct {
	Strict bool `yaml:"strict" json:"strict"`
}

// ExportConfig tunes the analytics-export executor, sized independently
// from Worker so a stalled sink never backs up ingest (§5).
type ExportConfig struct {
	WorkerCount   int `yaml:"worker_count" json:"worker_count"`
	QueueCapacity int `yaml:"queue_capacity" json:"queue_capacity"`
}

// Default returns the defaults named in §6's configuration table.
func Default() Config {
	return Config{
		Queue: QueueConfig{
			Capacity:              10_000,
			BackpressureThreshold: 80,
		},
		Worker: WorkerConfig{
			Count:       2,
			PollTimeout: 100 * time.Millisecond,
		},
		Trace: TraceConfig{
			TTL:              10 * time.Minute,
			MaxCount:         0,
			EvictionInterval: 60 * time.Second,
		},
		Dedup:     DedupConfig{Enabled: true},
		Validator: ValidatorConfig{Strict: false},
		Export: ExportConfig{
			WorkerCount:   1,
			QueueCapacity: 1000,
		},
		EnqueueTimeout: 5 * time.Second,
	}
}

// Normalize fills every zero-valued field from Default(), so a caller
// supplying a partial Config (e.g. decoded from a file that only
// overrides one option) still gets sane values everywhere else.
func (c Config) Normalize() Config {
	d := Default()

	if c.Queue.Capacity == 0 {
		c.Queue.Capacity = d.Queue.Capacity
	}
	if c.Queue.BackpressureThreshold == 0 {
		c.Queue.BackpressureThreshold = d.Queue.BackpressureThreshold
	}
	if c.Worker.Count == 0 {
		c.Worker.Count = d.Worker.Count
	}
	if c.Worker.PollTimeout == 0 {
		c.Worker.PollTimeout = d.Worker.PollTimeout
	}
	if c.Trace.TTL == 0 {
		c.Trace.TTL = d.Trace.TTL
	}
	if c.Export.WorkerCount == 0 {
		c.Export.WorkerCount = d.Export.WorkerCount
	}
	if c.Export.QueueCapacity == 0 {
		c.Export.QueueCapacity = d.Export.QueueCapacity
	}
	if c.Trace.EvictionInterval == 0 {
		c.Trace.EvictionInterval = d.Trace.EvictionInterval
	}
	if c.EnqueueTimeout == 0 {
		c.EnqueueTimeout = d.EnqueueTimeout
	}
	return c
}
