package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-identity-sync/core"
)

type UserReader interface {
	FindByExternalID(ctx context.Context, externalID string) (*core.UserRecord, error)
}

// GetUserQuery reads the locally synced user. Tombstoned records are returned
// as-is so callers can tell a deleted user from one that never synced.
type GetUserQuery struct {
	reader UserReader
}

func NewGetUserQuery(reader UserReader) *GetUserQuery {
	return &GetUserQuery{reader: reader}
}

func (q *GetUserQuery) Query(ctx context.Context, msg GetUserMessage) (core.UserRecord, error) {
	if q == nil || q.reader == nil {
		return core.UserRecord{}, queryDependencyError("query: user reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.UserRecord{}, err
	}
	externalID := strings.TrimSpace(msg.ExternalID)
	record, err := q.reader.FindByExternalID(ctx, externalID)
	if err != nil {
		return core.UserRecord{}, err
	}
	if record == nil {
		return core.UserRecord{}, queryNotFoundError(externalID)
	}
	return record.Clone(), nil
}
