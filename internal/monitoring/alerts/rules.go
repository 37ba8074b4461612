package alerts

import (
	"encoding/json"
	"fmt"
	"os"

	"carbon-scribe/blue-carbon-registry/internal/registry"
)

// DefaultRules covers the blue carbon sensor types recorded by field devices
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:              "low-sequestration",
			Name:            "Low sequestration rate",
			SensorType:      registry.SensorTypeCO2,
			ConditionType:   ConditionThreshold,
			Operator:        OperatorLessThan,
			Threshold:       1.0,
			Severity:        SeverityWarning,
			CooldownMinutes: 60,
		},
		{
			ID:              "biomass-loss",
			Name:            "Biomass below baseline",
			SensorType:      registry.SensorTypeBiomass,
			ConditionType:   ConditionThreshold,
			Operator:        OperatorLessThan,
			Threshold:       50,
			Severity:        SeverityWarning,
			CooldownMinutes: 60,
		},
		{
			ID:              "soil-carbon-swing",
			Name:            "Soil carbon swing",
			SensorType:      registry.SensorTypeSoilCarbon,
			ConditionType:   ConditionRateOfChange,
			MaxRatePercent:  10,
			Severity:        SeverityCritical,
			CooldownMinutes: 30,
		},
	}
}

// LoadRules reads a JSON array of rules. An empty path yields DefaultRules.
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alert rules: %w", err)
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse alert rules %s: %w", path, err)
	}
	return rules, nil
}
