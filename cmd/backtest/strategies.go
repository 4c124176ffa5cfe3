package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stratsim-lab/stratsim/internal/strategy"
)

// StrategiesFile is the yaml layout of a strategies config file:
//
//	strategies:
//	  - name: threshold
//	    params:
//	      buy: 9
//	      sell: 12
type StrategiesFile struct {
	Strategies []StrategyEntry `yaml:"strategies"`
}

// StrategyEntry names one registered strategy and its parameters.
type StrategyEntry struct {
	Name   string                 `yaml:"name"`
	Params map[string]interface{} `yaml:"params"`
}

// loadStrategies builds every strategy listed in the config file through
// the default registry. Construction errors surface here, before any run
// starts.
func loadStrategies(path string) ([]strategy.Strategy, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategies file %s: %w", path, err)
	}

	var file StrategiesFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse strategies file %s: %w", path, err)
	}

	if len(file.Strategies) == 0 {
		return nil, fmt.Errorf("strategies file %s lists no strategies", path)
	}

	registry := strategy.DefaultRegistry()
	strategies := make([]strategy.Strategy, 0, len(file.Strategies))

	for _, entry := range file.Strategies {
		params, err := yaml.Marshal(entry.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode params for strategy %q: %w", entry.Name, err)
		}

		s, err := registry.Create(entry.Name, string(params))
		if err != nil {
			return nil, err
		}

		strategies = append(strategies, s)
	}

	return strategies, nil
}
