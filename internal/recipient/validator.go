// Package recipient checks that an address is well formed and that its domain
// can plausibly receive mail.
package recipient

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const defaultLookupTimeout = 5 * time.Second

// MXResolver looks up mail exchangers for a domain. *net.Resolver satisfies it.
type MXResolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// Validator combines the syntactic check with an MX lookup per domain.
// It is safe for concurrent use; concurrent lookups of the same domain share
// a single DNS query.
type Validator struct {
	resolver MXResolver
	timeout  time.Duration
	log      zerolog.Logger
	group    singleflight.Group
}

// NewValidator creates a Validator. A nil resolver selects net.DefaultResolver
// and a non-positive timeout selects the default of five seconds.
func NewValidator(resolver MXResolver, timeout time.Duration, log zerolog.Logger) *Validator {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return &Validator{
		resolver: resolver,
		timeout:  timeout,
		log:      log,
	}
}

// Validate reports whether address is syntactically valid and not one of the
// denylisted placeholder addresses.
func (v *Validator) Validate(address string) bool {
	return IsValidAddress(address) && !IsDenylisted(address)
}

// DomainExists reports whether the domain of address has at least one MX
// record. Lookup failures of any kind yield false.
func (v *Validator) DomainExists(ctx context.Context, address string) bool {
	domain := strings.ToLower(ExtractDomain(address))
	if domain == "" {
		return false
	}

	result, err, shared := v.group.Do(domain, func() (interface{}, error) {
		// The lookup may be shared with other callers, so it must not be
		// cancelled by any single caller's context.
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.timeout)
		defer cancel()
		return v.resolver.LookupMX(lookupCtx, domain)
	})
	if err != nil {
		v.log.Debug().Err(err).
			Str("domain", domain).
			Bool("shared", shared).
			Msg("mx lookup failed")
		return false
	}

	records, _ := result.([]*net.MX)
	if len(records) == 0 {
		v.log.Debug().Str("domain", domain).Msg("no mx records found")
		return false
	}
	return true
}
