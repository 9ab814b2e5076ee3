package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeSampling()
	if err := c.normalizeCertificate(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CertificateDir) == "" {
		c.Paths.CertificateDir = defaultCertificateDir
	}
	if c.Paths.CertificateDir, err = expandPath(c.Paths.CertificateDir); err != nil {
		return fmt.Errorf("paths.certificate_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("TALLY_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("TALLY_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeSampling() {
	c.Sampling.FFmpegBinary = strings.TrimSpace(c.Sampling.FFmpegBinary)
	if c.Sampling.FFmpegBinary == "" {
		c.Sampling.FFmpegBinary = defaultFFmpegBinary
	}
	c.Sampling.FFprobeBinary = strings.TrimSpace(c.Sampling.FFprobeBinary)
	if c.Sampling.FFprobeBinary == "" {
		c.Sampling.FFprobeBinary = defaultFFprobeBinary
	}
	if c.Sampling.JPEGQuality == 0 {
		c.Sampling.JPEGQuality = defaultJPEGQuality
	}
	if c.Sampling.MaxWidth < 0 {
		c.Sampling.MaxWidth = 0
	}
	if c.Audit.ExcerptRows == 0 {
		c.Audit.ExcerptRows = defaultExcerptRows
	}
}

func (c *Config) normalizeCertificate() error {
	c.Certificate.ChromiumPath = strings.TrimSpace(c.Certificate.ChromiumPath)
	if c.Certificate.ChromiumPath != "" {
		expanded, err := expandPath(c.Certificate.ChromiumPath)
		if err != nil {
			return fmt.Errorf("certificate.chromium_path: %w", err)
		}
		c.Certificate.ChromiumPath = expanded
	}
	if c.Certificate.TimeoutSeconds <= 0 {
		c.Certificate.TimeoutSeconds = defaultCertificateTimeout
	}
	c.Certificate.Organization = strings.TrimSpace(c.Certificate.Organization)
	if c.Certificate.Organization == "" {
		c.Certificate.Organization = defaultOrganization
	}
	c.Certificate.Signatory = strings.TrimSpace(c.Certificate.Signatory)
	if c.Certificate.Signatory == "" {
		c.Certificate.Signatory = defaultSignatory
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
