// Package domain holds typed identifiers shared across verticals.
//
// Each id is a distinct type over uuid.UUID so the compiler rejects passing a
// FindingID where an ActionID is expected. Parse functions enforce the trust
// boundary invariant: ids must be valid, non-empty, non-nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "conforma/pkg/domain-errors"
)

type (
	// FindingID identifies a reported nonconformity.
	FindingID uuid.UUID
	// ActionID identifies a corrective or preventive action.
	ActionID uuid.UUID
	// UserID identifies the acting person on an operation.
	UserID uuid.UUID
)

func (id FindingID) String() string { return uuid.UUID(id).String() }
func (id ActionID) String() string  { return uuid.UUID(id).String() }
func (id UserID) String() string    { return uuid.UUID(id).String() }

func (id FindingID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ActionID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// MarshalText/UnmarshalText keep the ids as canonical UUID strings in JSON
// and database documents. Named types do not inherit uuid.UUID's methods, so
// these are spelled out per type.

func (id FindingID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ActionID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id UserID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }

func (id *FindingID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = FindingID(u)
	return nil
}

func (id *ActionID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ActionID(u)
	return nil
}

func (id *UserID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = UserID(u)
	return nil
}

// NewFindingID returns a fresh random finding id.
func NewFindingID() FindingID { return FindingID(uuid.New()) }

// NewActionID returns a fresh random action id.
func NewActionID() ActionID { return ActionID(uuid.New()) }

// ParseFindingID parses and validates a finding id from its string form.
func ParseFindingID(s string) (FindingID, error) {
	u, err := parseUUID(s, "finding id")
	return FindingID(u), err
}

// ParseActionID parses and validates an action id from its string form.
func ParseActionID(s string) (ActionID, error) {
	u, err := parseUUID(s, "action id")
	return ActionID(u), err
}

// ParseUserID parses and validates a user id from its string form.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", label)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is not a valid UUID", label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be the nil UUID", label)
	}
	return u, nil
}
