package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema describes the JSON configuration file accepted by mockbench.
func configSchema() map[string]any {
	str := map[string]any{"type": "string"}
	strList := map[string]any{"type": "array", "items": str}
	posInt := map[string]any{"type": "integer", "minimum": 1}
	anyInt := map[string]any{"type": "integer"}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"debug":         map[string]any{"type": "boolean"},
			"logFile":       str,
			"reportPath":    str,
			"export":        str,
			"clientCommand": str,
			"clientArgs":    strList,
			"baseURL":       str,
			"apiKey":        str,
			"serverScript":  str,
			"serverCommand": map[string]any{"type": "array", "items": str, "minItems": 1},
			"serverDir":     str,
			"serverLog":     str,
			"host":          str,
			"port":          map[string]any{"type": "integer", "minimum": 1, "maximum": 65535},
			"healthCheck":   map[string]any{"type": "boolean"},
			"targetFile":    str,
			"prefillName":   str,
			"decodeName":    str,
			"queryTimeout":  posInt,
			"queryDelayMs":  anyInt,
			"startTimeout":  posInt,
			"stopGrace":     posInt,
			"settleMs":      anyInt,
			"queries":       map[string]any{"type": "array", "items": map[string]any{"type": "string", "minLength": 1}},
			"presets": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"name", "prefill", "decode"},
					"properties": map[string]any{
						"name":    map[string]any{"type": "string", "minLength": 1},
						"prefill": posInt,
						"decode":  posInt,
					},
				},
			},
		},
	}
}

// ValidateJSON checks a raw configuration document against the config schema.
func ValidateJSON(data []byte) error {
	schemaLoader := gojsonschema.NewGoLoader(configSchema())
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(errs, ", "))
}

// ValidateFile validates a JSON configuration file. Files with other
// extensions are left to viper.
func ValidateFile(path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := ValidateJSON(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
