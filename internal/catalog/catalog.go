// Package catalog stores the module, board and application metadata the
// build commands translate user selections with.
package catalog

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("not found in catalog")
	// ErrAmbiguous is returned when a lookup that must be unique matches several rows
	ErrAmbiguous = errors.New("ambiguous catalog entry")
)

// Module is a selectable RIOT source component
type Module struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Path        string `json:"path"` // relative to the RIOT root
	Description string `json:"description,omitempty"`
	Group       string `json:"group_identifier"`
}

// Board is a RIOT target board
type Board struct {
	ID           int    `json:"id"`
	DisplayName  string `json:"display_name"`
	InternalName string `json:"internal_name"`
	FlashProgram string `json:"flash_program"`
}

// Application is a buildable RIOT example
type Application struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Path        string `json:"path"` // relative to the RIOT root
	Description string `json:"description,omitempty"`
	Group       string `json:"group_identifier"`
}

// Store is the catalog backend. Lookups by ID or name return ErrNotFound
// unless exactly one row matches.
type Store interface {
	ModuleByID(ctx context.Context, id int) (*Module, error)
	ModuleByName(ctx context.Context, name string) (*Module, error)
	ApplicationByID(ctx context.Context, id int) (*Application, error)

	// Applications are ordered by name
	Applications(ctx context.Context) ([]Application, error)
	// Boards are ordered by display name
	Boards(ctx context.Context) ([]Board, error)

	// Replace* drop all rows of a table and insert the given ones.
	// IDs are assigned from 1 in slice order.
	ReplaceModules(ctx context.Context, modules []Module) error
	ReplaceBoards(ctx context.Context, boards []Board) error
	ReplaceApplications(ctx context.Context, apps []Application) error

	Close() error
}

// Open opens the catalog backend named by driver
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "bolt":
		return OpenBolt(dsn)
	case "postgres":
		return OpenSQL(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown catalog driver %q", driver)
	}
}
