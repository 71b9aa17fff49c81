package transport

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/emersion/go-msgauth/dkim"

	"github.com/sungwon/mailrelay/internal/config"
)

// signedHeaders are the header fields covered by the DKIM signature.
var signedHeaders = []string{
	"From",
	"To",
	"Cc",
	"Subject",
	"Date",
	"Message-ID",
	"MIME-Version",
	"Content-Type",
	"List-Unsubscribe",
}

// Signer adds a DKIM-Signature header to serialised messages. A nil *Signer
// is valid and leaves messages unsigned.
type Signer struct {
	opts *dkim.SignOptions
}

// NewSigner builds a Signer from DKIM configuration. It returns nil, nil when
// no key is configured.
func NewSigner(cfg config.DKIMConfig) (*Signer, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	if cfg.Domain == "" || cfg.Selector == "" {
		return nil, errors.New("dkim: domain and selector are required when a key is set")
	}

	keyPEM := []byte(strings.ReplaceAll(cfg.PrivateKey, `\n`, "\n"))
	if cfg.PrivateKeyFile != "" {
		b, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("dkim: read private key file: %w", err)
		}
		keyPEM = b
	}

	key, err := ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}

	return &Signer{opts: &dkim.SignOptions{
		Domain:                 cfg.Domain,
		Selector:               cfg.Selector,
		Signer:                 key,
		Hash:                   crypto.SHA256,
		HeaderCanonicalization: dkim.CanonicalizationRelaxed,
		BodyCanonicalization:   dkim.CanonicalizationRelaxed,
		HeaderKeys:             signedHeaders,
	}}, nil
}

// ParsePrivateKey decodes a PEM-encoded RSA (PKCS#1 or PKCS#8) or Ed25519
// (PKCS#8) private key.
func ParsePrivateKey(keyPEM []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, errors.New("dkim: private key is not PEM encoded")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("dkim: parse private key: %w", err)
	}
	switch key := parsed.(type) {
	case *rsa.PrivateKey:
		return key, nil
	case ed25519.PrivateKey:
		return key, nil
	default:
		return nil, fmt.Errorf("dkim: unsupported private key type %T", parsed)
	}
}

// Sign returns raw with a DKIM-Signature header prepended.
func (s *Signer) Sign(raw []byte) ([]byte, error) {
	if s == nil {
		return raw, nil
	}

	var buf bytes.Buffer
	buf.Grow(len(raw) + 512)
	if err := dkim.Sign(&buf, bytes.NewReader(raw), s.opts); err != nil {
		return nil, fmt.Errorf("dkim: sign: %w", err)
	}
	return buf.Bytes(), nil
}

// Domain returns the signing domain, or "" for a nil Signer.
func (s *Signer) Domain() string {
	if s == nil {
		return ""
	}
	return s.opts.Domain
}
