package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// Use UUID v7 for time-ordered, sortable IDs
	// Falls back to v4 if v7 is not available (for compatibility)
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	SubjectID    ID
	SessionID    ID
	QueryID      ID
	ApprovalID   ID
	HypothesisID ID
	ReportID     ID
	RequestID    ID
)

// String conversions for domain IDs
func (id SubjectID) String() string    { return ID(id).String() }
func (id SessionID) String() string    { return ID(id).String() }
func (id QueryID) String() string      { return ID(id).String() }
func (id ApprovalID) String() string   { return ID(id).String() }
func (id HypothesisID) String() string { return ID(id).String() }
func (id ReportID) String() string     { return ID(id).String() }
func (id RequestID) String() string    { return ID(id).String() }

// ParseSubjectID parses a string into SubjectID
func ParseSubjectID(s string) (SubjectID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("subject ID cannot be empty")
	}
	return SubjectID(s), nil
}

// ParseQueryID parses a string into QueryID
func ParseQueryID(s string) (QueryID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("query ID cannot be empty")
	}
	return QueryID(s), nil
}

// ParseApprovalID parses a string into ApprovalID
func ParseApprovalID(s string) (ApprovalID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("approval ID cannot be empty")
	}
	return ApprovalID(s), nil
}
