package project

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when no record exists for an id.
	ErrNotFound = errors.New("form not found")
	// ErrInvalidID is returned for ids that are empty or contain path
	// separators.
	ErrInvalidID = errors.New("invalid form id")
)

// Store is a keyed record store for forms.
type Store interface {
	Load(ctx context.Context, id string) (*FormDocument, error)
	Save(ctx context.Context, doc *FormDocument) error
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) error
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}
