package directory

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/go-ldap/ldap/v3"
)

const (
	// DefaultTimeout bounds dial, bind and search against a single server
	DefaultTimeout = 10 * time.Second
)

// LDAPDialerOption configures an LDAPDialer
type LDAPDialerOption func(*LDAPDialer)

// WithTimeout sets the per-operation timeout
func WithTimeout(timeout time.Duration) LDAPDialerOption {
	return func(d *LDAPDialer) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithTLSConfig sets the TLS configuration used for ldaps:// and StartTLS
func WithTLSConfig(cfg *tls.Config) LDAPDialerOption {
	return func(d *LDAPDialer) {
		d.tlsConfig = cfg
	}
}

// WithStartTLS upgrades plain ldap:// connections with StartTLS
func WithStartTLS(enabled bool) LDAPDialerOption {
	return func(d *LDAPDialer) {
		d.startTLS = enabled
	}
}

// LDAPDialer opens sessions using the LDAPv3 protocol
type LDAPDialer struct {
	timeout   time.Duration
	tlsConfig *tls.Config
	startTLS  bool
}

// NewLDAPDialer creates a dialer with the given options
func NewLDAPDialer(opts ...LDAPDialerOption) *LDAPDialer {
	d := &LDAPDialer{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial connects to uri
func (d *LDAPDialer) Dial(ctx context.Context, uri string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ConnectivityError{URI: uri, Err: err}
	}

	timeout := d.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	opts := []ldap.DialOpt{ldap.DialWithDialer(&net.Dialer{Timeout: timeout})}
	if d.tlsConfig != nil {
		opts = append(opts, ldap.DialWithTLSConfig(d.tlsConfig))
	}

	conn, err := ldap.DialURL(uri, opts...)
	if err != nil {
		return nil, &ConnectivityError{URI: uri, Err: err}
	}
	conn.SetTimeout(d.timeout)

	if d.startTLS {
		if err := conn.StartTLS(d.startTLSConfig(uri)); err != nil {
			_ = conn.Unbind()
			return nil, &ConnectivityError{URI: uri, Err: fmt.Errorf("StartTLS: %w", err)}
		}
	}

	return &ldapSession{conn: conn, uri: uri, timeout: d.timeout}, nil
}

func (d *LDAPDialer) startTLSConfig(uri string) *tls.Config {
	if d.tlsConfig != nil {
		return d.tlsConfig
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if u, err := url.Parse(uri); err == nil {
		cfg.ServerName = u.Hostname()
	}
	return cfg
}

// ldapSession is a Session backed by a go-ldap connection
type ldapSession struct {
	conn    *ldap.Conn
	uri     string
	timeout time.Duration
}

func (s *ldapSession) Bind(ctx context.Context, dn, password string) error {
	return s.withContext(ctx, func() error {
		var err error
		if dn == "" && password == "" {
			err = s.conn.UnauthenticatedBind("")
		} else {
			err = s.conn.Bind(dn, password)
		}
		if err == nil {
			return nil
		}
		if isNetworkError(err) {
			return &ConnectivityError{URI: s.uri, Err: err}
		}
		return &AuthError{URI: s.uri, BindDN: dn, Err: err}
	})
}

func (s *ldapSession) SearchBase(ctx context.Context, baseDN, filter string, attributes []string) (*Entry, error) {
	var entry *Entry
	err := s.withContext(ctx, func() error {
		req := ldap.NewSearchRequest(
			baseDN,
			ldap.ScopeBaseObject,
			ldap.NeverDerefAliases,
			1,
			int(s.timeout.Seconds()),
			false,
			filter,
			attributes,
			nil,
		)

		res, err := s.conn.Search(req)
		if err != nil {
			return classifySearchError(s.uri, baseDN, err)
		}
		if len(res.Entries) == 0 {
			return nil
		}

		e := res.Entries[0]
		attrs := make(map[string][]string, len(e.Attributes))
		for _, a := range e.Attributes {
			attrs[a.Name] = a.Values
		}
		entry = &Entry{DN: e.DN, Attributes: attrs}
		return nil
	})
	return entry, err
}

func (s *ldapSession) Close() error {
	return s.conn.Unbind()
}

// withContext runs fn and tears the connection down if ctx ends first, which
// unblocks the pending protocol operation
func (s *ldapSession) withContext(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return &ConnectivityError{URI: s.uri, Err: err}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.Unbind()
	})
	defer stop()

	err := fn()
	if err != nil && ctx.Err() != nil {
		return &ConnectivityError{URI: s.uri, Err: errors.Join(ctx.Err(), err)}
	}
	return err
}

func classifySearchError(uri, baseDN string, err error) error {
	switch {
	case ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject):
		return &NotFoundError{Kind: NotFoundEntry, BaseDN: baseDN, Attribute: ContextCSNAttribute}
	case isNetworkError(err):
		return &ConnectivityError{URI: uri, Err: err}
	default:
		return fmt.Errorf("search %q on %s: %w", baseDN, uri, err)
	}
}

func isNetworkError(err error) bool {
	if ldap.IsErrorAnyOf(err,
		ldap.ErrorNetwork,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultBusy,
		ldap.LDAPResultTimeLimitExceeded,
	) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
