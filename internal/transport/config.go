package transport

import (
	"errors"

	"github.com/sungwon/mailrelay/internal/config"
)

// Transport type names.
const (
	TypeSMTP   = "smtp"
	TypeSES    = "ses"
	TypeStdout = "stdout"
	TypeFile   = "file"
)

// Config holds configuration for a single transport.
type Config struct {
	// Type identifies the transport: "smtp", "ses", "stdout", "file".
	Type string

	// SMTP holds relay settings for the smtp transport.
	SMTP config.SMTPConfig

	// SESRegion is the AWS region used by the ses transport.
	SESRegion string

	// OutputDir is where the file transport writes .eml files.
	OutputDir string
}

// ConfigFrom extracts the transport configuration from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Type:      cfg.Transport.Type,
		SMTP:      cfg.SMTP,
		SESRegion: cfg.Transport.SESRegion,
		OutputDir: cfg.Transport.OutputDir,
	}
}

// Validate checks that required fields are set based on transport type.
func (c *Config) Validate() error {
	switch c.Type {
	case "":
		return errors.New("transport type is required")
	case TypeSMTP:
		if c.SMTP.Host == "" {
			return errors.New("smtp: host is required")
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			return errors.New("smtp: port must be between 1 and 65535")
		}
	case TypeSES:
		if c.SESRegion == "" {
			return errors.New("ses: region is required")
		}
	case TypeStdout:
		// No configuration required.
	case TypeFile:
		// OutputDir is optional (defaults to ./mail_output).
	default:
		return errors.New("unknown transport type: " + c.Type)
	}
	return nil
}
