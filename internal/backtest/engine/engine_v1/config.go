package engine

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/stratsim-lab/stratsim/internal/backtest"
	"github.com/stratsim-lab/stratsim/internal/backtest/commission"
	"github.com/stratsim-lab/stratsim/internal/version"
	"github.com/stratsim-lab/stratsim/pkg/errors"
)

// SizingConfig selects how buy signals are sized.
type SizingConfig struct {
	Mode     backtest.SizingMode `yaml:"mode" json:"mode" jsonschema:"title=Sizing Mode,description=How buy orders are sized"`
	Fraction float64             `yaml:"fraction,omitempty" json:"fraction,omitempty" jsonschema:"title=Fraction,description=Fraction of cash allocated per buy when mode is fraction,minimum=0,maximum=1"`
}

// Config configures BacktestEngineV1.
type Config struct {
	SchemaVersion  string                     `yaml:"schema_version,omitempty" json:"schema_version,omitempty" jsonschema:"title=Schema Version,description=Engine version this config targets; empty skips the compatibility check"`
	InitialCapital float64                    `yaml:"initial_capital" json:"initial_capital" jsonschema:"title=Initial Capital,description=Starting capital for every run in USD,minimum=0"`
	Broker         commission.Broker          `yaml:"broker,omitempty" json:"broker,omitempty" jsonschema:"title=Broker,description=The broker whose commission model applies"`
	Sizing         SizingConfig               `yaml:"sizing,omitempty" json:"sizing,omitempty" jsonschema:"title=Sizing,description=Buy sizing policy"`
	StartTime      optional.Option[time.Time] `yaml:"start_time,omitempty" json:"start_time,omitempty" jsonschema:"title=Start Time,description=Optional start of the backtest window"`
	EndTime        optional.Option[time.Time] `yaml:"end_time,omitempty" json:"end_time,omitempty" jsonschema:"title=End Time,description=Optional end of the backtest window"`
}

// UnmarshalYAML implements custom unmarshaling for Config.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain struct {
		SchemaVersion  string            `yaml:"schema_version"`
		InitialCapital float64           `yaml:"initial_capital"`
		Broker         commission.Broker `yaml:"broker"`
		Sizing         SizingConfig      `yaml:"sizing"`
		StartTime      *time.Time        `yaml:"start_time"`
		EndTime        *time.Time        `yaml:"end_time"`
	}

	// Seed the defaults so omitted keys keep them.
	config := plain{
		Broker: commission.BrokerZero,
		Sizing: SizingConfig{Mode: backtest.SizingModeOneShare},
	}
	if err := unmarshal(&config); err != nil {
		return err
	}

	c.SchemaVersion = config.SchemaVersion
	c.InitialCapital = config.InitialCapital
	c.Broker = config.Broker
	c.Sizing = config.Sizing

	if config.StartTime != nil {
		c.StartTime = optional.Some(*config.StartTime)
	}

	if config.EndTime != nil {
		c.EndTime = optional.Some(*config.EndTime)
	}

	return nil
}

// ParseConfig builds a Config from yaml content.
func ParseConfig(content string) (Config, error) {
	config := EmptyConfig()

	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse engine config", err)
	}

	return config, nil
}

// Validate rejects configs the engine cannot run. Config errors fail here,
// before any run starts, never mid-run.
func (c Config) Validate() error {
	if err := version.CheckCompatibility(version.GetVersion(), c.SchemaVersion); err != nil {
		return err
	}

	if c.InitialCapital <= 0 {
		return errors.Newf(errors.ErrCodeInvalidCapital, "initial capital must be positive, got %v", c.InitialCapital)
	}

	switch c.Broker {
	case "", commission.BrokerZero, commission.BrokerInteractiveBroker:
	default:
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown broker %q", c.Broker)
	}

	if _, err := backtest.NewSizer(c.Sizing.Mode, decimal.NewFromFloat(c.Sizing.Fraction)); err != nil {
		return err
	}

	if c.StartTime.IsSome() && c.EndTime.IsSome() && c.EndTime.Unwrap().Before(c.StartTime.Unwrap()) {
		return errors.Newf(errors.ErrCodeInvalidTimeRange, "end time %s is before start time %s",
			c.EndTime.Unwrap().Format(time.RFC3339), c.StartTime.Unwrap().Format(time.RFC3339))
	}

	return nil
}

// GenerateSchema generates a JSON schema for the Config.
func (c *Config) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[time.Time]" {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			}

			if strings.Contains(t.String(), "commission.Broker") {
				return &jsonschema.Schema{
					Type: "string",
					Enum: commission.AllBrokers,
				}
			}

			if strings.Contains(t.String(), "backtest.SizingMode") {
				return &jsonschema.Schema{
					Type: "string",
					Enum: backtest.AllSizingModes,
				}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)

	schema.Title = "stratsim-engine-config"
	schema.Description = "Configuration schema for the stratsim backtest engine"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates a JSON schema string for the Config.
func (c *Config) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}

// EmptyConfig returns a Config with default values: commission-free trading
// and one-share sizing.
func EmptyConfig() Config {
	return Config{
		SchemaVersion:  "",
		InitialCapital: 0,
		Broker:         commission.BrokerZero,
		Sizing:         SizingConfig{Mode: backtest.SizingModeOneShare},
		StartTime:      optional.None[time.Time](),
		EndTime:        optional.None[time.Time](),
	}
}

// TestConfig returns a runnable Config for tests.
func TestConfig(startTime time.Time, endTime time.Time, broker commission.Broker) Config {
	return Config{
		InitialCapital: 1000,
		Broker:         broker,
		Sizing:         SizingConfig{Mode: backtest.SizingModeOneShare},
		StartTime:      optional.Some(startTime),
		EndTime:        optional.Some(endTime),
	}
}
