// Package helpers provides fixtures for the sync monitor integration tests.
package helpers

import (
	"context"
	"errors"
	"sync"

	"github.com/stacklok/ldap-sync-checker/internal/directory"
)

// Directory is an in-memory replication topology. Tests change the contextCSN
// of servers or take them offline while the monitor is running.
type Directory struct {
	mu      sync.RWMutex
	servers map[string]*serverState
}

type serverState struct {
	csns []string
	down bool
}

// NewDirectory creates an empty topology
func NewDirectory() *Directory {
	return &Directory{servers: make(map[string]*serverState)}
}

// SetCSN replaces the contextCSN values of the server at uri
func (d *Directory) SetCSN(uri string, csns ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	state, ok := d.servers[uri]
	if !ok {
		state = &serverState{}
		d.servers[uri] = state
	}
	state.csns = csns
}

// SetDown makes the server at uri refuse connections
func (d *Directory) SetDown(uri string, down bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if state, ok := d.servers[uri]; ok {
		state.down = down
	}
}

// Dial implements directory.Dialer
func (d *Directory) Dial(_ context.Context, uri string) (directory.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	state, ok := d.servers[uri]
	if !ok || state.down {
		return nil, &directory.ConnectivityError{URI: uri, Err: errors.New("connection refused")}
	}
	return &session{csns: append([]string(nil), state.csns...)}, nil
}

type session struct {
	csns []string
}

func (*session) Bind(context.Context, string, string) error {
	return nil
}

func (s *session) SearchBase(_ context.Context, baseDN, _ string, _ []string) (*directory.Entry, error) {
	return &directory.Entry{
		DN:         baseDN,
		Attributes: map[string][]string{directory.ContextCSNAttribute: s.csns},
	}, nil
}

func (*session) Close() error {
	return nil
}
