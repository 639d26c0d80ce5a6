package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/neo4j-partners/neo4j-deploy/internal/deployment"
)

// LoadDotEnv loads .env.local and .env from the working directory when
// present. Variables already set in the environment win.
func LoadDotEnv() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()
}

// Load reads settings from path, applies defaults and environment overrides,
// and validates the result.
func Load(path string) (*Settings, error) {
	s, err := LoadWithoutValidation(path)
	if err != nil {
		return nil, err
	}

	if err := s.Validate(); err != nil {
		return nil, deployment.ConfigError("load settings", fmt.Errorf("configuration validation failed: %w", err))
	}

	return s, nil
}

// LoadWithoutValidation reads settings from path with defaults and
// environment overrides applied but without validation.
func LoadWithoutValidation(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	return parseSettings(data)
}

// LoadFromBytes parses and validates settings from YAML bytes.
func LoadFromBytes(data []byte) (*Settings, error) {
	s, err := parseSettings(data)
	if err != nil {
		return nil, err
	}

	if err := s.Validate(); err != nil {
		return nil, deployment.ConfigError("load settings", fmt.Errorf("configuration validation failed: %w", err))
	}

	return s, nil
}

// parseSettings decodes YAML strictly, then applies defaults and env overrides.
func parseSettings(data []byte) (*Settings, error) {
	var s Settings
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, deployment.ConfigError("parse settings", fmt.Errorf("failed to parse YAML: %w", err))
	}
	s.ApplyDefaults()
	s.ApplyEnvOverrides()
	return &s, nil
}

// Save writes settings to path atomically.
func Save(s *Settings, path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}
