package app

import (
	"github.com/google/uuid"

	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

func parseIDs(actorID, orgID string) (uuid.UUID, uuid.UUID, error) {
	actor, err := uuid.Parse(actorID)
	if err != nil {
		return uuid.Nil, uuid.Nil, shared.Errorf(shared.KindValidation, "actor id %q is not a uuid", actorID)
	}
	org, err := uuid.Parse(orgID)
	if err != nil {
		return uuid.Nil, uuid.Nil, shared.Errorf(shared.KindValidation, "organization id %q is not a uuid", orgID)
	}
	return actor, org, nil
}

// ParseIDs converts a list of textual ids, rejecting the first malformed one.
func ParseIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, shared.Errorf(shared.KindValidation, "%q is not a uuid", r)
		}
		out = append(out, id)
	}
	return out, nil
}
