package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
)

var validThemes = map[string]bool{
	"system": true,
	"light":  true,
	"dark":   true,
}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult separates problems that make the config unusable from
// ones that were corrected in place.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether any fatal problem was found.
func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	return append(all, r.Warnings...)
}

// Validate corrects what it can and logs every problem as a warning.
func (c *Config) Validate() []error {
	errs := c.ValidateTiered().AllErrors()
	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}
	return errs
}

// ValidateTiered checks the config. Out-of-range values are reset to their
// defaults and reported as warnings; values that would end up inside task
// definitions verbatim are fatal.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult
	def := Default()

	if !validThemes[c.Theme] {
		r.Warnings = append(r.Warnings, fmt.Errorf("theme %q is not valid (use system, light or dark), resetting", c.Theme))
		c.Theme = def.Theme
	}

	if c.LastTab < 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("last_tab %d is negative, resetting", c.LastTab))
		c.LastTab = 0
	}

	if strings.TrimSpace(c.Author) == "" {
		r.Warnings = append(r.Warnings, errors.New("author is empty, resetting"))
		c.Author = def.Author
	} else {
		for _, ch := range c.Author {
			if unicode.IsControl(ch) {
				r.Fatals = append(r.Fatals, errors.New("author contains control characters"))
				break
			}
		}
		if len(c.Author) > 128 {
			r.Fatals = append(r.Fatals, fmt.Errorf("author is %d bytes, maximum 128", len(c.Author)))
		}
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error), resetting", c.LogLevel))
		c.LogLevel = def.LogLevel
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json), resetting", c.LogFormat))
		c.LogFormat = def.LogFormat
	}

	return r
}
