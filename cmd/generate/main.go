// Command generate writes the engine config JSON schema and a sample config
// into the ./config directory, so editors can validate configs against it.
package main

import (
	"log"
	"os"
	"path/filepath"

	enginev1 "github.com/stratsim-lab/stratsim/internal/backtest/engine/engine_v1"
)

const (
	schemaName       = "stratsim-engine-config.json"
	sampleConfigName = "stratsim-engine-config.yaml"
)

// sampleConfig is written verbatim rather than marshaled from a Config so
// the generated file carries usable starting values and field order.
const sampleConfig = `initial_capital: 10000
broker: zero
sizing:
  mode: one_share
start_time: 2024-01-01T00:00:00Z
end_time: 2024-12-31T00:00:00Z
`

func main() {
	config := enginev1.EmptyConfig()

	schemaJSON, err := config.GenerateSchemaJSON()
	if err != nil {
		log.Fatalf("Failed to generate schema: %v", err)
	}

	schemaPath := filepath.Join("./config", schemaName)
	sampleConfigPath := filepath.Join("./config", sampleConfigName)

	if err := os.MkdirAll(filepath.Dir(schemaPath), 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	if err := os.WriteFile(schemaPath, []byte(schemaJSON), 0644); err != nil {
		log.Fatalf("Failed to write schema to file: %v", err)
	}

	// The sample config is a starting point, never overwritten.
	if _, err := os.Stat(sampleConfigPath); os.IsNotExist(err) {
		content := "# yaml-language-server: $schema=" + schemaName + "\n" + sampleConfig

		if err := os.WriteFile(sampleConfigPath, []byte(content), 0644); err != nil {
			log.Fatalf("Failed to write sample config to file: %v", err)
		}

		log.Printf("Sample config successfully generated at %s", sampleConfigPath)
	}

	log.Printf("Schema successfully generated at %s", schemaPath)
}
