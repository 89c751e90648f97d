package directory

import (
	"context"
	"log/slog"

	"github.com/stacklok/ldap-sync-checker/internal/csn"
)

const (
	// ContextCSNAttribute holds the replication state of a naming context
	ContextCSNAttribute = "contextCSN"

	// matchAllFilter selects the base entry regardless of its object classes
	matchAllFilter = "(objectClass=*)"
)

// ReadAllCSNs returns every contextCSN value stored on baseDN, one per
// originating master in a multi-master deployment
func ReadAllCSNs(ctx context.Context, session Session, baseDN string) ([]string, error) {
	entry, err := session.SearchBase(ctx, baseDN, matchAllFilter, []string{ContextCSNAttribute})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, &NotFoundError{Kind: NotFoundEntry, BaseDN: baseDN, Attribute: ContextCSNAttribute}
	}

	values := entry.Values(ContextCSNAttribute)
	if len(values) == 0 {
		return nil, &NotFoundError{Kind: NotFoundAttribute, BaseDN: baseDN, Attribute: ContextCSNAttribute}
	}

	slog.DebugContext(ctx, "Read contextCSN", "base_dn", baseDN, "values", values)
	return values, nil
}

// ReadCSN returns the contextCSN value of baseDN. When serverID is nil the
// first value is returned. Otherwise the value whose server-id field equals
// *serverID is selected; values whose server-id field cannot be decoded are
// skipped.
func ReadCSN(ctx context.Context, session Session, baseDN string, serverID *int) (string, error) {
	values, err := ReadAllCSNs(ctx, session, baseDN)
	if err != nil {
		return "", err
	}

	if serverID == nil {
		return values[0], nil
	}

	return SelectByServerID(values, baseDN, *serverID)
}

// SelectByServerID picks the value originated by serverID
func SelectByServerID(values []string, baseDN string, serverID int) (string, error) {
	for _, raw := range values {
		sid, err := csn.ServerIDOf(raw)
		if err != nil {
			continue
		}
		if sid == serverID {
			return raw, nil
		}
	}

	return "", &NotFoundError{
		Kind:      NotFoundServerID,
		BaseDN:    baseDN,
		Attribute: ContextCSNAttribute,
		ServerID:  serverID,
	}
}
