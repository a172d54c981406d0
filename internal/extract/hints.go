package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// HintFile is the per-source extractor file, e.g. extractors/rmf24pl.yaml.
type HintFile struct {
	ContentCSS SelectorList `yaml:"content_css"`
}

// SelectorList accepts either a single selector string or a list of them.
type SelectorList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *SelectorList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return fmt.Errorf("decode selector: %w", err)
		}
		*l = SelectorList{s}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return fmt.Errorf("decode selectors: %w", err)
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("content_css must be a string or a list, got yaml kind %d", value.Kind)
	}
}

// HintLoader reads extractor hint files from a directory.
type HintLoader struct {
	dir string
}

// NewHintLoader returns a loader rooted at dir. An empty dir disables file hints.
func NewHintLoader(dir string) *HintLoader {
	return &HintLoader{dir: dir}
}

// HintFileName maps a source name to its hint file name.
func HintFileName(source string) string {
	name := strings.ToLower(source)
	name = strings.ReplaceAll(name, " ", "")
	name = strings.ReplaceAll(name, ".", "")
	return name + ".yaml"
}

// Load returns the selectors for source. A missing file yields no hints and no error.
func (l *HintLoader) Load(source string) ([]string, error) {
	if l == nil || l.dir == "" {
		return nil, nil
	}
	path := filepath.Join(l.dir, HintFileName(source))
	data, err := os.ReadFile(path) //nolint:gosec // path is built from configured dir and a sanitized name
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read hint file: %w", err)
	}
	var hf HintFile
	if err := yaml.Unmarshal(data, &hf); err != nil {
		return nil, fmt.Errorf("parse hint file %s: %w", path, err)
	}
	return hf.ContentCSS, nil
}
