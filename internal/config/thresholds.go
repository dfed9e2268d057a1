package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ThresholdsFile is the on-disk layout of a thresholds file
type ThresholdsFile struct {
	Thresholds []ThresholdConfig `yaml:"thresholds"`
}

// LoadThresholds reads a YAML thresholds file
func LoadThresholds(path string) ([]ThresholdConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read thresholds file: %w", err)
	}
	return ParseThresholds(data)
}

// ParseThresholds decodes thresholds from YAML. Unknown keys are rejected so
// typos in a metric definition fail loudly.
func ParseThresholds(data []byte) ([]ThresholdConfig, error) {
	var file ThresholdsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse thresholds: %w", err)
	}
	if len(file.Thresholds) == 0 {
		return nil, fmt.Errorf("thresholds file defines no thresholds")
	}
	return file.Thresholds, nil
}

// DefaultThresholds returns the built-in revenue-management thresholds used
// when configuration defines none
func DefaultThresholds() []ThresholdConfig {
	return []ThresholdConfig{
		{Metric: "system_availability", Label: "System Availability", Category: "operations", Unit: "%", Target: 99.9, Warning: 99.5, Critical: 99.0, Direction: "higherIsBetter"},
		{Metric: "nightshift_processing_time", Label: "Nightshift Processing Time", Category: "operations", Unit: "min", Target: 120, Warning: 150, Critical: 180, Direction: "lowerIsBetter"},
		{Metric: "insight_accuracy_rate", Label: "Insight Accuracy Rate", Category: "ai_quality", Unit: "%", Target: 90, Warning: 85, Critical: 75, Direction: "higherIsBetter"},
		{Metric: "forecast_accuracy", Label: "Forecast Accuracy", Category: "forecasting", Unit: "%", Target: 92, Warning: 88, Critical: 80, Direction: "higherIsBetter"},
		{Metric: "data_freshness_hours", Label: "Data Freshness", Category: "data_quality", Unit: "h", Target: 2, Warning: 6, Critical: 12, Direction: "lowerIsBetter"},
	}
}
