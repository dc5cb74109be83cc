package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// PolicyDocument is a static permission policy document.
type PolicyDocument struct {
	Version   string            `json:"Version"`
	Statement []PolicyStatement `json:"Statement"`
}

// PolicyStatement is one permission statement. Fields beyond the ones the
// loader checks are kept verbatim.
type PolicyStatement map[string]any

// LoadPolicyDocument reads and checks a JSON policy document.
func LoadPolicyDocument(path string) (*PolicyDocument, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy document: %w", err)
	}
	return ParsePolicyDocument(data)
}

// ParsePolicyDocument parses a JSON policy document.
func ParsePolicyDocument(data []byte) (*PolicyDocument, error) {
	var doc PolicyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy document: %w", err)
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("policy document has no Version")
	}
	if len(doc.Statement) == 0 {
		return nil, fmt.Errorf("policy document has no Statement")
	}
	for i, st := range doc.Statement {
		effect, _ := st["Effect"].(string)
		if effect != "Allow" && effect != "Deny" {
			return nil, fmt.Errorf("statement %d: Effect must be Allow or Deny", i)
		}
		if _, ok := st["Action"]; !ok {
			if _, ok := st["NotAction"]; !ok {
				return nil, fmt.Errorf("statement %d: Action is required", i)
			}
		}
	}
	return &doc, nil
}

// JSON returns the compact JSON form of the document.
func (p *PolicyDocument) JSON() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode policy document: %w", err)
	}
	return string(data), nil
}
