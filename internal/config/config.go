// Package config defines the run configuration surface and its validation.
//
// Options load from a YAML file layered over defaults, then validate
// against an embedded CUE schema before any input is read. Command-line
// flags may override individual fields after loading.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Options is the recognized configuration surface for one reconciliation
// run. Dry-run is a command flag, not configuration: it changes what gets
// persisted, not what gets computed.
type Options struct {
	// Grounding policy: off, semi, or strict.
	Grounding string `yaml:"grounding" json:"grounding" msgpack:"grounding"`

	// InferExpiry closes relationships whose remaining turns elapsed with
	// no terminal event observed.
	InferExpiry bool `yaml:"infer_expiry" json:"infer_expiry" msgpack:"infer_expiry"`

	// InferDeletion turns census disappearance into inferred cancellations.
	InferDeletion            bool `yaml:"infer_deletion" json:"infer_deletion" msgpack:"infer_deletion"`
	DeletionConfirmationDays int  `yaml:"deletion_confirmation_days" json:"deletion_confirmation_days" msgpack:"deletion_confirmation_days"`

	FilterNoise      bool `yaml:"filter_noise" json:"filter_noise" msgpack:"filter_noise"`
	NoiseWindowHours int  `yaml:"noise_window_hours" json:"noise_window_hours" msgpack:"noise_window_hours"`
	KeepNoise        bool `yaml:"keep_noise" json:"keep_noise" msgpack:"keep_noise"`

	CollapseChurn              bool `yaml:"collapse_churn" json:"collapse_churn" msgpack:"collapse_churn"`
	ChurnWindowMinutes         int  `yaml:"churn_window_minutes" json:"churn_window_minutes" msgpack:"churn_window_minutes"`
	ChurnMinEvents             int  `yaml:"churn_min_events" json:"churn_min_events" msgpack:"churn_min_events"`
	ChurnMaxNet                int  `yaml:"churn_max_net" json:"churn_max_net" msgpack:"churn_max_net"`
	ChurnMinRepeatedTimestamps int  `yaml:"churn_min_repeated_timestamps" json:"churn_min_repeated_timestamps" msgpack:"churn_min_repeated_timestamps"`

	// MaxArtifactBytes caps each persisted artifact; exceeding it is a
	// fatal configuration error surfaced before any write. 0 disables.
	MaxArtifactBytes int64 `yaml:"max_artifact_bytes" json:"max_artifact_bytes" msgpack:"max_artifact_bytes"`
}

// Default returns the option set used when no config file is given.
func Default() Options {
	return Options{
		Grounding:                  "off",
		InferExpiry:                false,
		InferDeletion:              false,
		DeletionConfirmationDays:   1,
		FilterNoise:                false,
		NoiseWindowHours:           24,
		KeepNoise:                  false,
		CollapseChurn:              false,
		ChurnWindowMinutes:         10,
		ChurnMinEvents:             20,
		ChurnMaxNet:                2,
		ChurnMinRepeatedTimestamps: 4,
		MaxArtifactBytes:           256 << 20,
	}
}

// Load reads a YAML config file over the defaults and validates the result.
func Load(path string) (Options, error) {
	opts := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("load config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil {
		return Options{}, fmt.Errorf("load config %s: %w", path, err)
	}

	if err := opts.Validate(); err != nil {
		return Options{}, fmt.Errorf("config %s: %w", path, err)
	}
	return opts, nil
}

// Validate unifies the options with the embedded CUE schema and requires
// every field to be concrete and in range.
func (o Options) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Options"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("lookup config schema: %w", err)
	}

	val := ctx.Encode(o)
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}
