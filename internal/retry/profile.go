// Package retry simulates re-running a failed automation step. No external
// system is contacted; outcomes are drawn from per-category probabilities.
package retry

import (
	"fmt"
	"os"

	"github.com/errorcue/errorcue/pkg/models"
	"gopkg.in/yaml.v3"
)

// Category describes how retries of one error type behave.
type Category struct {
	SuccessRate    float64 `yaml:"success_rate"`
	SuccessMessage string  `yaml:"success_message"`
	FailureMessage string  `yaml:"failure_message"`
}

// Profile maps error types to their retry behaviour. Types without an entry use Default.
type Profile struct {
	Default    Category            `yaml:"default"`
	Categories map[string]Category `yaml:"categories"`
}

// DefaultProfile returns the built-in probabilities and messages.
func DefaultProfile() Profile {
	return Profile{
		Default: Category{SuccessRate: 0.5, SuccessMessage: "Retry successful", FailureMessage: "Retry failed"},
		Categories: map[string]Category{
			models.ErrorTypeAuthExpired: {
				SuccessRate:    0.7,
				SuccessMessage: "Authentication refreshed successfully",
				FailureMessage: "Authentication still expired",
			},
			models.ErrorTypeRateLimit: {
				SuccessRate:    0.2,
				SuccessMessage: "Rate limit window reset",
				FailureMessage: "Still rate limited",
			},
			models.ErrorTypeConnectionFailed: {
				SuccessRate:    0.6,
				SuccessMessage: "Connection restored",
				FailureMessage: "Connection still failing",
			},
		},
	}
}

// For returns the category configured for errorType.
func (p Profile) For(errorType string) Category {
	if c, ok := p.Categories[errorType]; ok {
		return c
	}
	return p.Default
}

func (p Profile) validate() error {
	if err := p.Default.validate("default"); err != nil {
		return err
	}
	for name, c := range p.Categories {
		if err := c.validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (c Category) validate(name string) error {
	if c.SuccessRate < 0 || c.SuccessRate > 1 {
		return fmt.Errorf("retry profile %s: success_rate must be between 0 and 1, got %v", name, c.SuccessRate)
	}
	if c.SuccessMessage == "" || c.FailureMessage == "" {
		return fmt.Errorf("retry profile %s: success_message and failure_message are required", name)
	}
	return nil
}

// LoadProfile reads a YAML profile from path and layers it over DefaultProfile.
// Categories in the file replace the built-in category of the same name; fields
// left out of a category keep the built-in (or default) values.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read retry profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile is LoadProfile for in-memory YAML.
func ParseProfile(data []byte) (Profile, error) {
	var raw struct {
		Default    *partialCategory           `yaml:"default"`
		Categories map[string]partialCategory `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Profile{}, fmt.Errorf("parse retry profile: %w", err)
	}

	p := DefaultProfile()
	if raw.Default != nil {
		p.Default = raw.Default.over(p.Default)
	}
	for name, pc := range raw.Categories {
		base, ok := p.Categories[name]
		if !ok {
			base = p.Default
		}
		p.Categories[name] = pc.over(base)
	}

	if err := p.validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

type partialCategory struct {
	SuccessRate    *float64 `yaml:"success_rate"`
	SuccessMessage string   `yaml:"success_message"`
	FailureMessage string   `yaml:"failure_message"`
}

func (pc partialCategory) over(base Category) Category {
	if pc.SuccessRate != nil {
		base.SuccessRate = *pc.SuccessRate
	}
	if pc.SuccessMessage != "" {
		base.SuccessMessage = pc.SuccessMessage
	}
	if pc.FailureMessage != "" {
		base.FailureMessage = pc.FailureMessage
	}
	return base
}
