package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlEntry mirrors Entry with yaml struct tags, the way
// glorpus-work-gotya/pkg/config.Config tags its fields, so the wire format
// stays decoupled from the in-memory Entry shape.
type yamlEntry struct {
	URL            string         `yaml:"url"`
	FileName       string         `yaml:"fileName,omitempty"`
	UnzipTo        string         `yaml:"unzipTo,omitempty"`
	DelayInSeconds *int           `yaml:"delayInSeconds,omitempty"`
	RequestConfig  map[string]any `yaml:"requestConfig,omitempty"`
	RetryLimit     *int           `yaml:"retryLimit,omitempty"`
}

// YAMLFileProducer is the reference getManifest implementation
// (spec.md §6): it parses a YAML document of the shape documented in
// SPEC_FULL.md §6 from path each time it is invoked.
func YAMLFileProducer(path string) Producer {
	return func() (Manifest, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("manifest: read %s: %w", path, err)
		}
		return ParseYAML(data)
	}
}

// ParseYAML decodes a YAML manifest document into a Manifest.
func ParseYAML(data []byte) (Manifest, error) {
	var entries []yamlEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("manifest: decode yaml: %w", err)
	}
	out := make(Manifest, 0, len(entries))
	for i, e := range entries {
		if e.URL == "" {
			return nil, fmt.Errorf("manifest: entry %d has empty url", i)
		}
		out = append(out, Entry{
			URL:            e.URL,
			FileName:       e.FileName,
			UnzipTo:        e.UnzipTo,
			DelayInSeconds: e.DelayInSeconds,
			RequestConfig:  e.RequestConfig,
			RetryLimit:     e.RetryLimit,
		}.Resolve())
	}
	return out, nil
}
