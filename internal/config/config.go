// Package config loads and validates the DRI engine configuration
// from a .dri.yaml file. Every tunable constant of the engine lives
// here so call sites never re-derive them.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unbound-force/dri/internal/taxonomy"
)

// FileName is the configuration file discovered in the working
// directory when no explicit path is given.
const FileName = ".dri.yaml"

// Config is the root of the engine configuration.
type Config struct {
	// Lexicon is the path to a lexicon file. Empty means the
	// built-in lexicon.
	Lexicon string `yaml:"lexicon"`

	Matcher MatcherConfig `yaml:"matcher"`
	Scoring ScoringConfig `yaml:"scoring"`
	Context ContextConfig `yaml:"context"`
	Batch   BatchConfig   `yaml:"batch"`
}

// MatcherConfig tunes the negation-aware keyword matcher.
type MatcherConfig struct {
	// Window is the number of runes inspected before and after a
	// match for negation cues.
	Window int `yaml:"window"`

	// SnippetRadius is the number of runes of original text kept on
	// each side of a match for audit snippets.
	SnippetRadius int `yaml:"snippet_radius"`

	// MaxMatches caps matched keywords and snippets per indicator.
	MaxMatches int `yaml:"max_matches"`

	// MinKeywordLength skips shorter keywords entirely.
	MinKeywordLength int `yaml:"min_keyword_length"`

	// ClauseScoped stops negation windows at clause punctuation.
	ClauseScoped bool `yaml:"clause_scoped"`

	Negation NegationConfig `yaml:"negation"`
}

// NegationConfig holds the two negation cue lists.
type NegationConfig struct {
	// Before lists cues that negate a match they precede.
	Before []string `yaml:"before"`

	// After lists cues that negate a match they follow.
	After []string `yaml:"after"`
}

// ScoringConfig configures the DRI score and its severity bands.
type ScoringConfig struct {
	// TotalCount is the score denominator. A lexicon file may
	// override it.
	TotalCount int `yaml:"total_count"`

	// Bands holds the inclusive upper bounds of the lower bands as
	// decimal strings.
	Bands BandConfig `yaml:"bands"`
}

// BandConfig holds inclusive upper bounds for Low, Medium and High.
// Anything above High is Very High.
type BandConfig struct {
	Low    string `yaml:"low"`
	Medium string `yaml:"medium"`
	High   string `yaml:"high"`
}

// ContextConfig configures the context-size budget policy.
type ContextConfig struct {
	// Threshold is the context length (runes) above which large
	// mode is selected.
	Threshold int `yaml:"threshold"`

	StandardBudget int `yaml:"standard_budget"`
	LargeBudget    int `yaml:"large_budget"`
}

// BatchConfig configures the batch runner.
type BatchConfig struct {
	// Concurrency bounds the number of subjects processed at once.
	Concurrency int `yaml:"concurrency"`

	// Timeout bounds the whole batch. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`

	Scan ScanConfig `yaml:"scan"`
}

// ScanConfig filters directory-based subject discovery.
type ScanConfig struct {
	Include []string      `yaml:"include"`
	Exclude []string      `yaml:"exclude"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultNegationBefore are the default cues that negate a following
// keyword.
var DefaultNegationBefore = []string{
	"no", "no symptoms of", "nil signs of", "no signs of",
	"no evidence of", "does not require", "doesn't have",
	"-ve", "neg", "negative", "negative for", "denies", "ruled out",
}

// DefaultNegationAfter are the default cues that negate a preceding
// keyword.
var DefaultNegationAfter = []string{
	"absent", "n/a", "doesn't have", "neg", "negative", "nad", "ruled out",
}

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() *Config {
	return &Config{
		Matcher: MatcherConfig{
			Window:           50,
			SnippetRadius:    30,
			MaxMatches:       5,
			MinKeywordLength: 2,
			ClauseScoped:     true,
			Negation: NegationConfig{
				Before: append([]string(nil), DefaultNegationBefore...),
				After:  append([]string(nil), DefaultNegationAfter...),
			},
		},
		Scoring: ScoringConfig{
			TotalCount: 33,
			Bands: BandConfig{
				Low:    "0.20",
				Medium: "0.40",
				High:   "0.60",
			},
		},
		Context: ContextConfig{
			Threshold:      6000,
			StandardBudget: 4096,
			LargeBudget:    16384,
		},
		Batch: BatchConfig{
			Concurrency: 4,
			Scan: ScanConfig{
				Exclude: []string{"testdata/**", ".*"},
				Timeout: 30 * time.Second,
			},
		},
	}
}

// Load reads the configuration at path on top of DefaultConfig. An
// empty path loads FileName from the working directory when present
// and returns the defaults otherwise. Validation errors name the file
// they came from.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = FileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values that would make the
// engine misbehave. Every failure is a *taxonomy.ConfigurationError.
func (c *Config) Validate() error {
	switch {
	case c.Matcher.Window < 0:
		return invalid("matcher.window", "must be >= 0, got %d", c.Matcher.Window)
	case c.Matcher.SnippetRadius < 0:
		return invalid("matcher.snippet_radius", "must be >= 0, got %d", c.Matcher.SnippetRadius)
	case c.Matcher.MaxMatches < 1:
		return invalid("matcher.max_matches", "must be >= 1, got %d", c.Matcher.MaxMatches)
	case c.Matcher.MinKeywordLength < 1:
		return invalid("matcher.min_keyword_length", "must be >= 1, got %d", c.Matcher.MinKeywordLength)
	case c.Scoring.TotalCount <= 0:
		return invalid("scoring.total_count", "missing or non-positive total count (%d)", c.Scoring.TotalCount)
	case c.Context.Threshold < 0:
		return invalid("context.threshold", "must be >= 0, got %d", c.Context.Threshold)
	case c.Context.StandardBudget <= 0:
		return invalid("context.standard_budget", "must be > 0, got %d", c.Context.StandardBudget)
	case c.Context.LargeBudget < c.Context.StandardBudget:
		return invalid("context.large_budget", "must be >= standard_budget (%d), got %d",
			c.Context.StandardBudget, c.Context.LargeBudget)
	case c.Batch.Concurrency < 1:
		return invalid("batch.concurrency", "must be >= 1, got %d", c.Batch.Concurrency)
	case c.Batch.Timeout < 0:
		return invalid("batch.timeout", "must be >= 0, got %s", c.Batch.Timeout)
	}
	return nil
}

func invalid(field, format string, args ...interface{}) error {
	return &taxonomy.ConfigurationError{
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}
