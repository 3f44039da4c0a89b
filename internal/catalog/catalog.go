package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// Legend maps each vote colour to its display label.
type Legend struct {
	Red   string `json:"red"`
	Amber string `json:"amber"`
	Green string `json:"green"`
}

// Scenario is one votable prompt with its discussion points.
type Scenario struct {
	Scenario string   `json:"scenario"`
	Prompts  []string `json:"prompts"`
}

// Catalog is the scenario set loaded at startup. Immutable for the life of
// the process.
type Catalog struct {
	Legend    Legend     `json:"legend"`
	Scenarios []Scenario `json:"scenarios"`
}

// Load reads and parses the scenarios file at path.
func Load(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read scenarios: %w", err)
	}

	var c Catalog
	if err := json.Unmarshal(raw, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse scenarios: %w", err)
	}
	if len(c.Scenarios) == 0 {
		return Catalog{}, fmt.Errorf("scenarios file %q contains no scenarios", path)
	}
	return c, nil
}
