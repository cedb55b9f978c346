// Package config loads and validates the run configuration for the
// evaluation engine.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/segmentio/encoding/json"

	"github.com/modelbench-ai/modelbench/engine/internal/endpoint"
)

// schemaJSON is the embedded JSON Schema every run configuration must
// satisfy before it is decoded.
const schemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["endpoint", "tokenizer"],
	"properties": {
		"endpoint": {
			"type": "object",
			"properties": {
				"base_url": {"type": "string"},
				"token": {"type": "string"},
				"reuse": {"type": "string"},
				"create": {
					"type": "object",
					"required": ["name", "repository"],
					"properties": {
						"name": {"type": "string", "minLength": 1},
						"repository": {"type": "string", "minLength": 1},
						"framework": {"type": "string"},
						"accelerator": {"type": "string"},
						"vendor": {"type": "string"},
						"region": {"type": "string"},
						"instance_type": {"type": "string"},
						"instance_size": {"type": "string"}
					}
				},
				"control_plane_url": {"type": "string"},
				"requests_per_minute": {"type": "number", "exclusiveMinimum": 0},
				"cache_path": {"type": "string"}
			}
		},
		"tokenizer": {
			"type": "object",
			"required": ["encoding"],
			"properties": {
				"encoding": {"type": "string", "minLength": 1}
			}
		},
		"run": {
			"type": "object",
			"properties": {
				"split_count": {"type": "integer", "minimum": 1},
				"batch_size": {"type": "integer", "minimum": 1},
				"concurrent": {"type": "boolean"},
				"want_logits": {"type": "boolean"}
			}
		}
	}
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// EndpointConfig selects how the engine reaches its endpoint: a direct base
// URL, an existing managed endpoint to reuse, or a spec to create one for
// the duration of the run. Exactly one of the three must be set.
type EndpointConfig struct {
	BaseURL           string                 `json:"base_url,omitempty"`
	Token             string                 `json:"token,omitempty"`
	Reuse             string                 `json:"reuse,omitempty"`
	Create            *endpoint.EndpointSpec `json:"create,omitempty"`
	ControlPlaneURL   string                 `json:"control_plane_url,omitempty"`
	RequestsPerMinute float64                `json:"requests_per_minute,omitempty"`
	CachePath         string                 `json:"cache_path,omitempty"`
}

// TokenizerConfig names the tiktoken encoding to tokenize with.
type TokenizerConfig struct {
	Encoding string `json:"encoding"`
}

// RunConfig holds the engine dispatch settings.
type RunConfig struct {
	SplitCount int  `json:"split_count,omitempty"`
	BatchSize  int  `json:"batch_size,omitempty"`
	Concurrent bool `json:"concurrent,omitempty"`
	WantLogits bool `json:"want_logits,omitempty"`
}

// Config is the full run configuration.
type Config struct {
	Endpoint  EndpointConfig  `json:"endpoint"`
	Tokenizer TokenizerConfig `json:"tokenizer"`
	Run       RunConfig       `json:"run"`
}

// Load reads, validates, and decodes a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse validates raw configuration JSON against the embedded schema and
// decodes it.
func Parse(data []byte) (*Config, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, err
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// check enforces the cross-field constraints the schema cannot express.
func (c *Config) check() error {
	set := 0
	if c.Endpoint.BaseURL != "" {
		set++
	}
	if c.Endpoint.Reuse != "" {
		set++
	}
	if c.Endpoint.Create != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("config: exactly one of endpoint.base_url, endpoint.reuse, endpoint.create must be set")
	}
	if (c.Endpoint.Reuse != "" || c.Endpoint.Create != nil) && c.Endpoint.ControlPlaneURL == "" {
		return fmt.Errorf("config: endpoint.control_plane_url is required with endpoint.reuse or endpoint.create")
	}
	return nil
}

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("parse embedded schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("config.schema.json", doc); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("config.schema.json")
	})
	return compiledSchema, schemaErr
}
