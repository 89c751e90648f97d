// Package service provides the read side of the monitor: the latest check
// result and the persisted per-consumer status.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/stacklok/ldap-sync-checker/internal/config"
	"github.com/stacklok/ldap-sync-checker/internal/status"
	"github.com/stacklok/ldap-sync-checker/internal/sync"
)

var (
	// ErrConsumerNotFound is returned when a consumer is not configured
	ErrConsumerNotFound = errors.New("consumer not found")
	// ErrNotReady is returned before the first check has finished
	ErrNotReady = errors.New("no check has completed yet")
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go StatusService

// StatusService defines the interface for monitor status queries
type StatusService interface {
	// CheckReadiness returns ErrNotReady until the first check has finished
	CheckReadiness(ctx context.Context) error

	// ListConsumerStatus returns the persisted status of every configured
	// consumer that has been checked, in configuration order
	ListConsumerStatus(ctx context.Context) ([]*status.ConsumerStatus, error)

	// GetConsumerStatus returns the persisted status of one consumer by name
	GetConsumerStatus(ctx context.Context, name string) (*status.ConsumerStatus, error)

	// LastResult returns the latest check result
	LastResult(ctx context.Context) (*sync.Result, error)
}

// ResultSource is the part of the coordinator the service reads from
type ResultSource interface {
	LastResult() (*sync.Result, error)
	Ready() bool
}

type monitorService struct {
	source      ResultSource
	persistence status.StatusPersistence
	consumers   []config.ServerDescriptor
}

// NewStatusService creates a StatusService over a running coordinator and its
// status directory
func NewStatusService(
	source ResultSource,
	persistence status.StatusPersistence,
	consumers []config.ServerDescriptor,
) StatusService {
	return &monitorService{
		source:      source,
		persistence: persistence,
		consumers:   consumers,
	}
}

func (s *monitorService) CheckReadiness(_ context.Context) error {
	if !s.source.Ready() {
		return ErrNotReady
	}
	return nil
}

func (s *monitorService) ListConsumerStatus(ctx context.Context) ([]*status.ConsumerStatus, error) {
	all, err := s.persistence.LoadAllStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load consumer status: %w", err)
	}

	out := make([]*status.ConsumerStatus, 0, len(s.consumers))
	for _, c := range s.consumers {
		if st, ok := all[c.Key()]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *monitorService) GetConsumerStatus(ctx context.Context, name string) (*status.ConsumerStatus, error) {
	consumer, ok := s.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConsumerNotFound, name)
	}

	st, err := s.persistence.LoadStatus(ctx, consumer.Key())
	if err != nil {
		return nil, fmt.Errorf("failed to load status of consumer %s: %w", name, err)
	}
	if st == nil {
		return nil, fmt.Errorf("%w: %s has not been checked yet", ErrConsumerNotFound, name)
	}
	return st, nil
}

func (s *monitorService) LastResult(_ context.Context) (*sync.Result, error) {
	result, err := s.source.LastResult()
	if result != nil {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, ErrNotReady
}

// lookup matches a configured consumer by name, display name or status key
func (s *monitorService) lookup(name string) (config.ServerDescriptor, bool) {
	for _, c := range s.consumers {
		if c.Name == name || c.DisplayName() == name || c.Key() == name {
			return c, true
		}
	}
	return config.ServerDescriptor{}, false
}
