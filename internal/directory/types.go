// Package directory provides the directory-server capabilities the sync
// checker consumes: dial, bind, base-scope search and unbind, plus reading the
// replication state (contextCSN) of a naming context.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

//go:generate mockgen -destination=mocks/mock_directory.go -package=mocks github.com/stacklok/ldap-sync-checker/internal/directory Dialer,Session

// Entry is a single directory entry returned by a search
type Entry struct {
	DN         string
	Attributes map[string][]string
}

// Values returns the values of the named attribute. Attribute names are
// matched case-insensitively.
func (e *Entry) Values(name string) []string {
	if e == nil {
		return nil
	}
	if v, ok := e.Attributes[name]; ok {
		return v
	}
	for k, v := range e.Attributes {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

// Session is an open connection to a directory server
type Session interface {
	// Bind authenticates the session. An empty dn performs an anonymous bind.
	Bind(ctx context.Context, dn, password string) error

	// SearchBase performs a base-scope search on baseDN and returns the entry
	SearchBase(ctx context.Context, baseDN, filter string, attributes []string) (*Entry, error)

	// Close unbinds and releases the connection
	Close() error
}

// Dialer opens sessions to directory servers
type Dialer interface {
	// Dial connects to the server at uri (ldap://, ldaps:// or ldapi://)
	Dial(ctx context.Context, uri string) (Session, error)
}

// Connect dials uri and binds the resulting session. On bind failure the
// session is closed before returning.
func Connect(ctx context.Context, dialer Dialer, uri, bindDN, password string) (Session, error) {
	session, err := dialer.Dial(ctx, uri)
	if err != nil {
		var connErr *ConnectivityError
		if errors.As(err, &connErr) {
			return nil, err
		}
		return nil, &ConnectivityError{URI: uri, Err: err}
	}

	if err := session.Bind(ctx, bindDN, password); err != nil {
		_ = session.Close()
		var authErr *AuthError
		var connErr *ConnectivityError
		if errors.As(err, &authErr) || errors.As(err, &connErr) {
			return nil, err
		}
		return nil, &AuthError{URI: uri, BindDN: bindDN, Err: err}
	}

	return session, nil
}

// AuthError is returned when a bind is rejected by the server
type AuthError struct {
	URI    string
	BindDN string
	Err    error
}

func (e *AuthError) Error() string {
	who := e.BindDN
	if who == "" {
		who = "anonymous"
	}
	return fmt.Sprintf("bind to %s as %s failed: %v", e.URI, who, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ConnectivityError is returned for network-level failures (dial, TLS,
// connection reset, timeout)
type ConnectivityError struct {
	URI string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.URI, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// NotFoundKind distinguishes the ways a CSN lookup can come up empty
type NotFoundKind int

const (
	// NotFoundEntry means the base DN itself does not exist
	NotFoundEntry NotFoundKind = iota
	// NotFoundAttribute means the entry has no contextCSN attribute
	NotFoundAttribute
	// NotFoundServerID means contextCSN exists but no value carries the requested server id
	NotFoundServerID
)

func (k NotFoundKind) String() string {
	switch k {
	case NotFoundEntry:
		return "entry"
	case NotFoundAttribute:
		return "attribute"
	case NotFoundServerID:
		return "server-id"
	default:
		return "unknown"
	}
}

// NotFoundError is returned when the replication state cannot be located
type NotFoundError struct {
	Kind      NotFoundKind
	BaseDN    string
	Attribute string
	ServerID  int
}

func (e *NotFoundError) Error() string {
	switch e.Kind {
	case NotFoundEntry:
		return fmt.Sprintf("entry %q not found", e.BaseDN)
	case NotFoundServerID:
		return fmt.Sprintf("no %s value on %q matches server id %d (#%03X#)",
			e.Attribute, e.BaseDN, e.ServerID, e.ServerID)
	default:
		return fmt.Sprintf("no %s attribute on %q", e.Attribute, e.BaseDN)
	}
}

// IsNotFound reports whether err is a NotFoundError of any kind
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
