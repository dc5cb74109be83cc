package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// SchemaVersion is written into every record.
const SchemaVersion = 1

// Resource is one applied resource.
type Resource struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	ProviderID  string    `json:"providerId,omitempty"`
	Fingerprint string    `json:"fingerprint"`
	Status      string    `json:"status"`
	AppliedAt   time.Time `json:"appliedAt"`
}

// Record is the persisted state of one deployment.
type Record struct {
	Version   int                 `json:"version"`
	Cluster   string              `json:"cluster"`
	AppliedAt time.Time           `json:"appliedAt"`
	Resources map[string]Resource `json:"resources"`
	Outputs   map[string]string   `json:"outputs,omitempty"`
}

// NewRecord returns an empty record for cluster.
func NewRecord(cluster string) *Record {
	return &Record{
		Version:   SchemaVersion,
		Cluster:   cluster,
		Resources: map[string]Resource{},
		Outputs:   map[string]string{},
	}
}

// Put stores r, replacing any earlier entry with the same ID.
func (r *Record) Put(res Resource) {
	if r.Resources == nil {
		r.Resources = map[string]Resource{}
	}
	r.Resources[res.ID] = res
}

// IDs returns the recorded resource IDs in sorted order.
func (r *Record) IDs() []string {
	ids := make([]string, 0, len(r.Resources))
	for id := range r.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Fingerprint hashes the JSON encoding of v. Map keys are encoded in
// sorted order, so equal configurations hash equally regardless of how
// they were built.
func Fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint configuration: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func decode(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	if rec.Version > SchemaVersion {
		return nil, fmt.Errorf("state schema version %d is newer than supported version %d", rec.Version, SchemaVersion)
	}
	if rec.Resources == nil {
		rec.Resources = map[string]Resource{}
	}
	return &rec, nil
}

func encode(rec *Record) ([]byte, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return append(data, '\n'), nil
}
