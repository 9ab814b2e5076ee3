package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable. A missing API key is not an
// error here: commands that never contact the reasoning service (ledger
// inspection, frame sampling, history) must keep working without one.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateSampling(); err != nil {
		return err
	}
	if err := c.validateAudit(); err != nil {
		return err
	}
	if err := c.validateCertificate(); err != nil {
		return err
	}
	return nil
}

// RequireAPIKey reports a descriptive error when no reasoning service
// credential is configured.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.LLM.APIKey) != "" {
		return nil
	}
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = "~/.config/tally/config.toml"
	}
	return fmt.Errorf("llm.api_key is required. Set TALLY_API_KEY env var or edit %s (create with 'tally config init')", defaultPath)
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	if !strings.HasPrefix(c.LLM.BaseURL, "http://") && !strings.HasPrefix(c.LLM.BaseURL, "https://") {
		return fmt.Errorf("llm.base_url must be an http(s) URL, got %q", c.LLM.BaseURL)
	}
	return nil
}

func (c *Config) validateSampling() error {
	if c.Sampling.JPEGQuality < 2 || c.Sampling.JPEGQuality > 31 {
		return errors.New("sampling.jpeg_quality must be between 2 and 31")
	}
	return nil
}

func (c *Config) validateAudit() error {
	if c.Audit.ExcerptRows < minExcerptRows || c.Audit.ExcerptRows > maxExcerptRows {
		return fmt.Errorf("audit.excerpt_rows must be between %d and %d", minExcerptRows, maxExcerptRows)
	}
	return nil
}

func (c *Config) validateCertificate() error {
	if c.Certificate.TimeoutSeconds <= 0 {
		return errors.New("certificate.timeout_seconds must be positive")
	}
	return nil
}
