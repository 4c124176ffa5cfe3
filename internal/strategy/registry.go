package strategy

import (
	"sync"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stratsim-lab/stratsim/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Factory builds a strategy from yaml-encoded parameters.
type Factory func(params string) (Strategy, error)

// Registry manages the strategies that can be built by name, typically from
// a config file.
type Registry interface {
	Register(name string, factory Factory) error
	Create(name string, params string) (Strategy, error)
	List() []string
	Remove(name string) error
}

// RegistryV1 is a mutex-guarded name to factory map.
type RegistryV1 struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *RegistryV1 {
	return &RegistryV1{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry creates a registry with every built-in strategy registered:
// threshold, lookback, sma_crossover and bounded.
func DefaultRegistry() *RegistryV1 {
	registry := NewRegistry()

	// Registration of built-ins cannot collide on an empty registry.
	_ = registry.Register("threshold", func(params string) (Strategy, error) {
		var config ThresholdConfig
		if err := yaml.Unmarshal([]byte(params), &config); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStrategyConfigError, "failed to parse threshold params", err)
		}

		return NewThreshold(config)
	})

	_ = registry.Register("lookback", func(params string) (Strategy, error) {
		var config LookbackConfig
		if err := yaml.Unmarshal([]byte(params), &config); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStrategyConfigError, "failed to parse lookback params", err)
		}

		return NewLookback(config)
	})

	_ = registry.Register("sma_crossover", func(params string) (Strategy, error) {
		var config SMACrossoverConfig
		if err := yaml.Unmarshal([]byte(params), &config); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStrategyConfigError, "failed to parse sma_crossover params", err)
		}

		return NewSMACrossover(config)
	})

	// Bounded nests another registered strategy, so its factory closes over
	// the registry to build the inner one.
	_ = registry.Register("bounded", func(params string) (Strategy, error) {
		var parsed struct {
			Name           string           `yaml:"name"`
			StopLossPct    *decimal.Decimal `yaml:"stop_loss_pct"`
			TakeProfitPct  *decimal.Decimal `yaml:"take_profit_pct"`
			MaxHoldingDays *int             `yaml:"max_holding_days"`
			Strategy       struct {
				Name   string                 `yaml:"name"`
				Params map[string]interface{} `yaml:"params"`
			} `yaml:"strategy"`
		}

		if err := yaml.Unmarshal([]byte(params), &parsed); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStrategyConfigError, "failed to parse bounded params", err)
		}

		if parsed.Strategy.Name == "" {
			return nil, errors.New(errors.ErrCodeStrategyConfigError, "bounded params require a nested strategy name")
		}

		innerParams, err := yaml.Marshal(parsed.Strategy.Params)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeStrategyConfigError, "failed to re-encode nested strategy params", err)
		}

		inner, err := registry.Create(parsed.Strategy.Name, string(innerParams))
		if err != nil {
			return nil, err
		}

		config := BoundedConfig{Name: parsed.Name}
		if parsed.StopLossPct != nil {
			config.StopLossPct = optional.Some(*parsed.StopLossPct)
		}

		if parsed.TakeProfitPct != nil {
			config.TakeProfitPct = optional.Some(*parsed.TakeProfitPct)
		}

		if parsed.MaxHoldingDays != nil {
			config.MaxHoldingDays = optional.Some(*parsed.MaxHoldingDays)
		}

		return NewBounded(inner, config)
	})

	return registry
}

// Register adds a factory under name. Registering a name twice is an error.
func (r *RegistryV1) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.Newf(errors.ErrCodeInvalidParameter, "strategy %s already registered", name)
	}

	r.factories[name] = factory

	return nil
}

// Create builds the named strategy from yaml params.
func (r *RegistryV1) Create(name string, params string) (Strategy, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrCodeUnknownStrategy, "strategy %s is not registered", name)
	}

	return factory(params)
}

// List returns the registered strategy names in no particular order.
func (r *RegistryV1) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	return names
}

// Remove deletes the named factory.
func (r *RegistryV1) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; !exists {
		return errors.Newf(errors.ErrCodeUnknownStrategy, "strategy %s is not registered", name)
	}

	delete(r.factories, name)

	return nil
}
