package query

import (
	"strings"
)

const TypeGetUser = "identity_sync.query.user.get"

type GetUserMessage struct {
	ExternalID string
}

func (GetUserMessage) Type() string { return TypeGetUser }

func (m GetUserMessage) Validate() error {
	if strings.TrimSpace(m.ExternalID) == "" {
		return queryValidationError("external_id", "query: external id is required")
	}
	return nil
}
