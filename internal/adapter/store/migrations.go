package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"sentry/internal/domain"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

// BuildSpec is the part of the configuration that decides what a stored distance means.
type BuildSpec struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
	Metric    Metric `json:"metric"`
}

// Fingerprint computes a hash of index-relevant configuration.
// A different fingerprint means stored vectors are not comparable with new embeddings.
func (b BuildSpec) Fingerprint() string {
	data, _ := json.Marshal(b)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// CompatibilityResult describes the result of a compatibility check.
type CompatibilityResult struct {
	Compatible bool
	Reasons    []string
}

func (r *CompatibilityResult) Reason() string {
	return strings.Join(r.Reasons, "; ")
}

// CheckCompatibility compares stored index metadata with the active configuration.
func CheckCompatibility(meta domain.IndexMeta, spec BuildSpec) *CompatibilityResult {
	result := &CompatibilityResult{Compatible: true}

	if meta.SchemaVersion > CurrentSchemaVersion {
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("index created by newer version (v%d > v%d)", meta.SchemaVersion, CurrentSchemaVersion))
	} else if meta.SchemaVersion < CurrentSchemaVersion {
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("schema upgrade from v%d to v%d", meta.SchemaVersion, CurrentSchemaVersion))
	}

	if meta.Fingerprint != "" && meta.Fingerprint == spec.Fingerprint() {
		result.Compatible = len(result.Reasons) == 0
		return result
	}

	if meta.Provider != spec.Provider || meta.Model != spec.Model {
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("embedding model changed (%s/%s -> %s/%s)", meta.Provider, meta.Model, spec.Provider, spec.Model))
	}
	if meta.Metric != string(spec.Metric) {
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("distance metric changed (%s -> %s)", meta.Metric, spec.Metric))
	}
	if spec.Dimension > 0 && meta.Dimension != spec.Dimension {
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("dimension changed (%d -> %d)", meta.Dimension, spec.Dimension))
	}

	result.Compatible = len(result.Reasons) == 0
	return result
}

// NewIndexMeta stamps metadata for an index about to be written.
func NewIndexMeta(name string, spec BuildSpec, threshold float64) domain.IndexMeta {
	return domain.IndexMeta{
		Name:          name,
		SchemaVersion: CurrentSchemaVersion,
		Provider:      spec.Provider,
		Model:         spec.Model,
		Dimension:     spec.Dimension,
		Metric:        string(spec.Metric),
		Threshold:     threshold,
		Fingerprint:   spec.Fingerprint(),
	}
}
