package crawler

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// SourceDefinition describes one configured news source.
type SourceDefinition struct {
	Name              string   `mapstructure:"name" json:"name" yaml:"name"`
	Enabled           bool     `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	FetchMethod       string   `mapstructure:"fetch_method" json:"fetch_method" yaml:"fetch_method"`
	URL               string   `mapstructure:"url" json:"url,omitempty" yaml:"url"`
	RSSURL            string   `mapstructure:"rss" json:"rss,omitempty" yaml:"rss"`
	ScrapeListing     bool     `mapstructure:"scrape_listing" json:"scrape_listing" yaml:"scrape_listing"`
	ArticleURLPattern string   `mapstructure:"article_url_pattern" json:"article_url_pattern,omitempty" yaml:"article_url_pattern"`
	OnlyToday         bool     `mapstructure:"only_today" json:"only_today" yaml:"only_today"`
	AskForURL         bool     `mapstructure:"ask_for_url" json:"ask_for_url" yaml:"ask_for_url"`
	ContentSelectors  []string `mapstructure:"content_selectors" json:"content_selectors,omitempty" yaml:"content_selectors"`

	strategy Strategy
	pattern  *regexp.Regexp
}

// Prepare validates the definition and caches the parsed strategy and pattern.
func (s *SourceDefinition) Prepare() error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return errors.New("source name is required")
	}
	strategy, err := ParseStrategy(s.FetchMethod)
	if err != nil {
		return fmt.Errorf("source %q: %w", s.Name, err)
	}
	s.strategy = strategy
	s.pattern = nil
	if s.ArticleURLPattern != "" {
		re, err := regexp.Compile(s.ArticleURLPattern)
		if err != nil {
			return fmt.Errorf("source %q: article_url_pattern: %w", s.Name, err)
		}
		s.pattern = re
	}
	if s.ScrapeListing && s.URL == "" {
		return fmt.Errorf("source %q: scrape_listing requires url", s.Name)
	}
	if s.Enabled && s.URL == "" && s.RSSURL == "" && !s.AskForURL {
		return fmt.Errorf("source %q: one of url, rss or ask_for_url is required", s.Name)
	}
	return nil
}

// Strategy returns the parsed fetch strategy, defaulting to auto.
func (s SourceDefinition) Strategy() Strategy {
	if s.strategy == "" {
		strategy, err := ParseStrategy(s.FetchMethod)
		if err != nil {
			return StrategyAuto
		}
		return strategy
	}
	return s.strategy
}

// Pattern returns the compiled article URL pattern, or nil.
func (s SourceDefinition) Pattern() *regexp.Regexp {
	if s.pattern == nil && s.ArticleURLPattern != "" {
		re, err := regexp.Compile(s.ArticleURLPattern)
		if err != nil {
			return nil
		}
		return re
	}
	return s.pattern
}

// ValidateSources prepares every definition and rejects duplicate names.
func ValidateSources(sources []SourceDefinition) error {
	seen := make(map[string]struct{}, len(sources))
	for i := range sources {
		if err := sources[i].Prepare(); err != nil {
			return err
		}
		key := strings.ToLower(sources[i].Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate source name %q", sources[i].Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// FindSource looks a source up by case-insensitive name.
func FindSource(sources []SourceDefinition, name string) (SourceDefinition, bool) {
	for _, s := range sources {
		if strings.EqualFold(s.Name, strings.TrimSpace(name)) {
			return s, true
		}
	}
	return SourceDefinition{}, false
}
