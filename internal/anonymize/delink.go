package anonymize

import (
	"privalytics/domain/core"
	"privalytics/domain/research"

	"github.com/google/uuid"
)

// delink replaces session identifiers with freshly generated opaque tokens.
// The mapping table is local to one anonymization run: repeated references
// to the same original session stay internally consistent within the run but
// are unlinkable to any other run or to the original identifier.
func (e *Engine) delink(records []research.ResearchRecord) {
	tokens := make(map[core.SessionID]core.SessionID)
	for i := range records {
		original := records[i].SessionID
		if original == "" {
			continue
		}
		token, ok := tokens[original]
		if !ok {
			token = core.SessionID(uuid.NewString())
			tokens[original] = token
		}
		records[i].SessionID = token
	}
}
