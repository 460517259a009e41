package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/valter-silva-au/winsor/pkg/models"
	"gopkg.in/yaml.v3"
)

// observationFileVersion is written to every saved file.
const observationFileVersion = "1.0"

// ObservationFile represents the top-level structure of an observations
// YAML file. Infinite and NaN values use YAML's .inf, -.inf and .nan.
type ObservationFile struct {
	Version      string                    `yaml:"version"`
	Observations []*models.ObservationData `yaml:"observations"`
}

// ObservationStore reads and writes batches of observation records.
type ObservationStore interface {
	Load(path string) ([]*models.ObservationData, error)
	Save(path string, observations []*models.ObservationData) error
	// ModTime returns when the file at path was last written.
	ModTime(path string) (time.Time, error)
}

type fileObservationStore struct {
	basePath string
}

// NewObservationStore creates an ObservationStore that resolves relative
// paths against basePath.
func NewObservationStore(basePath string) ObservationStore {
	return &fileObservationStore{basePath: basePath}
}

func (s *fileObservationStore) resolve(path string) string {
	if filepath.IsAbs(path) || s.basePath == "" {
		return path
	}
	return filepath.Join(s.basePath, path)
}

// Load reads the observations in path. Every record with readings must carry
// a covariance sized to them; Save writes records back exactly as loaded.
func (s *fileObservationStore) Load(path string) ([]*models.ObservationData, error) {
	full := s.resolve(path)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("loading observations: %w", err)
	}

	var f ObservationFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("loading observations from %s: parsing YAML: %w", full, err)
	}

	for i, obs := range f.Observations {
		if obs == nil {
			return nil, fmt.Errorf("loading observations from %s: record %d is empty", full, i)
		}
		if obs.Covariance == nil && len(obs.MetricNames) > 0 {
			return nil, fmt.Errorf("loading observations from %s: record %d has no covariance", full, i)
		}
		if err := obs.Validate(); err != nil {
			return nil, fmt.Errorf("loading observations from %s: record %d: %w", full, i, err)
		}
	}
	return f.Observations, nil
}

func (s *fileObservationStore) ModTime(path string) (time.Time, error) {
	info, err := os.Stat(s.resolve(path))
	if err != nil {
		return time.Time{}, fmt.Errorf("reading observations file info: %w", err)
	}
	return info.ModTime().UTC(), nil
}

// Save writes observations to path, creating parent directories.
func (s *fileObservationStore) Save(path string, observations []*models.ObservationData) error {
	full := s.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("saving observations: creating directory: %w", err)
	}
	data, err := yaml.Marshal(&ObservationFile{
		Version:      observationFileVersion,
		Observations: observations,
	})
	if err != nil {
		return fmt.Errorf("saving observations: marshaling YAML: %w", err)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return fmt.Errorf("saving observations: writing file: %w", err)
	}
	return nil
}
