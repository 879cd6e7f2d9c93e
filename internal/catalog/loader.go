package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"identity-map-service/internal/domain"
)

type catalogFile struct {
	Questions []domain.Question `yaml:"questions"`
}

// LoadFile reads a YAML catalog from path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(file.Questions)
}
