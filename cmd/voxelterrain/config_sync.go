package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"voxelterrain/internal/config"
)

const (
	envConfigJSON    = "VOXEL_CONFIG_JSON"
	envConfigYAMLB64 = "VOXEL_CONFIG_YAML_B64"
)

// writeConfigFromEnv materialises a configuration supplied through the
// environment at cfgPath so the regular Load path picks it up. It reports
// whether a payload was present.
func writeConfigFromEnv(cfgPath string) (bool, error) {
	jsonPayload := os.Getenv(envConfigJSON)
	yamlPayload := os.Getenv(envConfigYAMLB64)

	if jsonPayload == "" && yamlPayload == "" {
		return false, nil
	}
	if cfgPath == "" {
		return false, errors.New("environment provided configuration but no --config path supplied")
	}

	var (
		cfg *config.Config
		err error
	)
	if jsonPayload != "" {
		cfg, err = config.Decode([]byte(jsonPayload), "json")
		if err != nil {
			return false, fmt.Errorf("decode %s: %w", envConfigJSON, err)
		}
	} else {
		data, decodeErr := base64.StdEncoding.DecodeString(yamlPayload)
		if decodeErr != nil {
			return false, fmt.Errorf("decode %s: %w", envConfigYAMLB64, decodeErr)
		}
		cfg, err = config.Decode(data, "yaml")
		if err != nil {
			return false, fmt.Errorf("parse %s: %w", envConfigYAMLB64, err)
		}
	}

	dir := filepath.Dir(cfgPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create config directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal config json: %w", err)
	}
	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		return false, fmt.Errorf("write config file: %w", err)
	}
	return true, nil
}
