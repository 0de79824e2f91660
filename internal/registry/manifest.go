package registry

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"InvSight/internal/domain/models"
	"InvSight/internal/services/predictor"
)

// Manifest lists the artifacts produced by training, by versioned identifier.
type Manifest struct {
	Version   string          `yaml:"version"`
	Artifacts []ArtifactEntry `yaml:"artifacts"`
}

// ArtifactEntry binds one predictor to exactly one contract document and role.
type ArtifactEntry struct {
	ID              string         `yaml:"id"`
	Role            models.Role    `yaml:"role"`
	Default         bool           `yaml:"default"`
	Contract        string         `yaml:"contract"`
	ContractVersion string         `yaml:"contract_version"`
	Predictor       predictor.Spec `yaml:"predictor"`
}

// ParseManifest decodes a YAML manifest.
func ParseManifest(b []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Artifacts) == 0 {
		return nil, fmt.Errorf("manifest declares no artifacts")
	}
	return &m, nil
}

// ParseContract decodes a YAML contract document.
func ParseContract(b []byte) (models.ContractSpec, error) {
	var spec models.ContractSpec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return models.ContractSpec{}, fmt.Errorf("parse contract: %w", err)
	}
	return spec, nil
}
