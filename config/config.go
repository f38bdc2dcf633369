// Package config loads and validates EngineConfig, the settings a host
// process uses to construct a StreamEngine and the graph's edge buffers. The
// engine core itself needs no config package — an in-code EngineConfig{}
// literal works fine — but a process wiring settings from a file gets
// JSON-Schema validation for free.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/streamkit/engine"
	"github.com/c360/streamkit/pkg/buffer"
)

//go:embed schema.json
var schemaJSON []byte

// EngineConfig is the JSON-serializable form of engine.Config plus the
// graph-construction settings (edge/join buffer capacity and overflow
// policy) that live outside the engine itself.
type EngineConfig struct {
	Mode               string `json:"mode"`
	PoolWorkers        int    `json:"pool_workers,omitempty"`
	PollIntervalMS     int    `json:"poll_interval_ms,omitempty"`
	EdgeBufferCapacity int    `json:"edge_buffer_capacity,omitempty"`
	JoinBufferCapacity int    `json:"join_buffer_capacity,omitempty"`
	OverflowPolicy     string `json:"overflow_policy,omitempty"`
	MetricsNamespace   string `json:"metrics_namespace,omitempty"`
}

// Default returns the single-threaded configuration a process gets if it
// does not load one from file.
func Default() EngineConfig {
	return EngineConfig{
		Mode:               "single_threaded",
		PoolWorkers:        4,
		PollIntervalMS:     1,
		EdgeBufferCapacity: 1024,
		JoinBufferCapacity: 256,
		OverflowPolicy:     "block",
		MetricsNamespace:   "streamkit",
	}
}

// Load parses and schema-validates raw JSON into an EngineConfig.
func Load(raw []byte) (EngineConfig, error) {
	schemaLoader := gojsonschema.NewBytesLoader(schemaJSON)
	docLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("config: schema validation error: %w", err)
	}
	if !result.Valid() {
		var buf bytes.Buffer
		buf.WriteString("config: invalid engine configuration:\n")
		for _, desc := range result.Errors() {
			fmt.Fprintf(&buf, "  - %s: %s\n", desc.Field(), desc.Description())
		}
		return EngineConfig{}, fmt.Errorf("%s", buf.String())
	}

	cfg := Default()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

// EngineMode maps the JSON mode string onto engine.Mode.
func (c EngineConfig) EngineMode() (engine.Mode, error) {
	switch c.Mode {
	case "single_threaded", "":
		return engine.SingleThreaded, nil
	case "pooled":
		return engine.Pooled, nil
	case "async":
		return engine.Async, nil
	default:
		return 0, fmt.Errorf("config: unknown mode %q", c.Mode)
	}
}

// OverflowPolicyValue maps the JSON overflow_policy string onto
// buffer.OverflowPolicy.
func (c EngineConfig) OverflowPolicyValue() (buffer.OverflowPolicy, error) {
	switch c.OverflowPolicy {
	case "block", "":
		return buffer.Block, nil
	case "drop_oldest":
		return buffer.DropOldest, nil
	case "drop_newest":
		return buffer.DropNewest, nil
	default:
		return 0, fmt.Errorf("config: unknown overflow_policy %q", c.OverflowPolicy)
	}
}

// ToEngineConfig builds an engine.Config from the validated settings.
func (c EngineConfig) ToEngineConfig() (engine.Config, error) {
	mode, err := c.EngineMode()
	if err != nil {
		return engine.Config{}, err
	}
	cfg := engine.DefaultConfig()
	cfg.Mode = mode
	if c.PoolWorkers > 0 {
		cfg.PoolWorkers = c.PoolWorkers
	}
	if c.PollIntervalMS > 0 {
		cfg.PollInterval = time.Duration(c.PollIntervalMS) * time.Millisecond
	}
	return cfg, nil
}
