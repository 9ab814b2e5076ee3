package config

const (
	defaultStagingDir         = "~/.local/share/tally/staging"
	defaultStateDir           = "~/.local/share/tally/state"
	defaultLogDir             = "~/.local/share/tally/logs"
	defaultCertificateDir     = "~/.local/share/tally/certificates"
	defaultAPIBind            = "127.0.0.1:7488"
	defaultLLMBaseURL         = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel           = "google/gemini-2.5-flash"
	defaultLLMReferer         = "https://github.com/tally-audit/tally"
	defaultLLMTitle           = "Tally Inventory Audit"
	defaultLLMTimeoutSeconds  = 120
	defaultFFmpegBinary       = "ffmpeg"
	defaultFFprobeBinary      = "ffprobe"
	defaultJPEGQuality        = 4
	defaultMaxWidth           = 1280
	defaultExcerptRows        = 12
	minExcerptRows            = 10
	maxExcerptRows            = 15
	defaultCertificateTimeout = 30
	defaultOrganization       = "Tally Forensic Inventory Audit"
	defaultSignatory          = "Automated Audit Engine"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:     defaultStagingDir,
			StateDir:       defaultStateDir,
			LogDir:         defaultLogDir,
			CertificateDir: defaultCertificateDir,
			APIBind:        defaultAPIBind,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Sampling: Sampling{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			JPEGQuality:   defaultJPEGQuality,
			MaxWidth:      defaultMaxWidth,
		},
		Audit: Audit{
			ExcerptRows: defaultExcerptRows,
		},
		Certificate: Certificate{
			TimeoutSeconds: defaultCertificateTimeout,
			Organization:   defaultOrganization,
			Signatory:      defaultSignatory,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
