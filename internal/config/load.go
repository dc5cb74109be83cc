package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultDescriptorFile is the descriptor looked up when no path is given.
const DefaultDescriptorFile = "eksforge.yaml"

// LoadFile reads, defaults and validates a descriptor from a YAML file.
func LoadFile(path string) (*Descriptor, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}

	desc, err := Decode(data)
	if err != nil {
		return nil, err
	}

	desc.ApplyDefaults()

	if problems := desc.Validate(); HasErrors(problems) {
		return nil, &ConfigurationError{Problems: problems}
	}

	return desc, nil
}

// Decode parses descriptor YAML. Unknown fields are rejected.
func Decode(data []byte) (*Descriptor, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var desc Descriptor
	if err := dec.Decode(&desc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("descriptor is empty")
		}
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}
	return &desc, nil
}

// WriteFile writes a descriptor as YAML.
func WriteFile(desc *Descriptor, path string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(desc); err != nil {
		return fmt.Errorf("failed to encode descriptor: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write descriptor: %w", err)
	}
	return nil
}
