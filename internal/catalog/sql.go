package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLStore keeps the catalog in PostgreSQL
type SQLStore struct {
	db *sql.DB
}

// OpenSQL connects to dsn and applies pending schema migrations
func OpenSQL(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to catalog database: %w", err)
	}

	s := &SQLStore{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate brings the schema up to the latest embedded migration
func (s *SQLStore) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to migrate catalog schema: %w", err)
	}

	return nil
}

// Close closes the database handle
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) ModuleByID(ctx context.Context, id int) (*Module, error) {
	var m Module
	var desc sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, path, description, group_identifier FROM modules WHERE id = $1`, id).
		Scan(&m.ID, &m.Name, &m.Path, &desc, &m.Group)
	if err != nil {
		return nil, fmt.Errorf("module %d: %w", id, notFound(err))
	}
	m.Description = desc.String

	return &m, nil
}

func (s *SQLStore) ModuleByName(ctx context.Context, name string) (*Module, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, path, description, group_identifier FROM modules WHERE name = $1`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query module %q: %w", name, err)
	}
	defer rows.Close()

	var matches []Module
	for rows.Next() {
		var m Module
		var desc sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &m.Path, &desc, &m.Group); err != nil {
			return nil, fmt.Errorf("failed to scan module %q: %w", name, err)
		}
		m.Description = desc.String
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("module %q: %w", name, ErrNotFound)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("module %q: %w", name, ErrAmbiguous)
	}
}

func (s *SQLStore) ApplicationByID(ctx context.Context, id int) (*Application, error) {
	var a Application
	var desc sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, path, description, group_identifier FROM applications WHERE id = $1`, id).
		Scan(&a.ID, &a.Name, &a.Path, &desc, &a.Group)
	if err != nil {
		return nil, fmt.Errorf("application %d: %w", id, notFound(err))
	}
	a.Description = desc.String

	return &a, nil
}

func (s *SQLStore) Applications(ctx context.Context) ([]Application, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, path, description, group_identifier FROM applications ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var apps []Application
	for rows.Next() {
		var a Application
		var desc sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &a.Path, &desc, &a.Group); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		a.Description = desc.String
		apps = append(apps, a)
	}

	return apps, rows.Err()
}

func (s *SQLStore) Boards(ctx context.Context) ([]Board, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, display_name, internal_name, flash_program FROM boards ORDER BY display_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query boards: %w", err)
	}
	defer rows.Close()

	var boards []Board
	for rows.Next() {
		var b Board
		if err := rows.Scan(&b.ID, &b.DisplayName, &b.InternalName, &b.FlashProgram); err != nil {
			return nil, fmt.Errorf("failed to scan board: %w", err)
		}
		boards = append(boards, b)
	}

	return boards, rows.Err()
}

func (s *SQLStore) ReplaceModules(ctx context.Context, modules []Module) error {
	return s.replace(ctx, "modules",
		`INSERT INTO modules (name, path, description, group_identifier) VALUES ($1, $2, $3, $4) RETURNING id`,
		len(modules), func(i int) ([]any, *int) {
			m := &modules[i]
			return []any{m.Name, m.Path, nullable(m.Description), m.Group}, &m.ID
		})
}

func (s *SQLStore) ReplaceBoards(ctx context.Context, boards []Board) error {
	return s.replace(ctx, "boards",
		`INSERT INTO boards (display_name, internal_name, flash_program) VALUES ($1, $2, $3) RETURNING id`,
		len(boards), func(i int) ([]any, *int) {
			b := &boards[i]
			return []any{b.DisplayName, b.InternalName, b.FlashProgram}, &b.ID
		})
}

func (s *SQLStore) ReplaceApplications(ctx context.Context, apps []Application) error {
	return s.replace(ctx, "applications",
		`INSERT INTO applications (name, path, description, group_identifier) VALUES ($1, $2, $3, $4) RETURNING id`,
		len(apps), func(i int) ([]any, *int) {
			a := &apps[i]
			return []any{a.Name, a.Path, nullable(a.Description), a.Group}, &a.ID
		})
}

// replace truncates table and inserts n rows in one transaction
func (s *SQLStore) replace(ctx context.Context, table, insert string, n int, row func(i int) ([]any, *int)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// table is one of the fixed catalog tables, never user input
	if _, err := tx.ExecContext(ctx, "TRUNCATE "+table+" RESTART IDENTITY"); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", table, err)
	}

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		args, id := row(i)
		if err := stmt.QueryRowContext(ctx, args...).Scan(id); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", table, err)
	}

	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Store = (*SQLStore)(nil)
