package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/git-pkgs/licenses/internal/core"
	"github.com/git-pkgs/licenses/internal/ingest"
)

// Override is a stored manual classification for a package.
type Override struct {
	Name        string
	Version     string
	Identifiers []core.Identifier
	Note        string
	UpdatedAt   time.Time
}

// Ingest converts the override to the filter form used before a scan.
func (o Override) Ingest() ingest.Override {
	return ingest.Override{
		Name:        o.Name,
		Version:     o.Version,
		Identifiers: append([]core.Identifier(nil), o.Identifiers...),
		Note:        o.Note,
	}
}

// SetOverride inserts or replaces the override for (name, version). An empty
// version applies to every version.
func (s *Store) SetOverride(ctx context.Context, o Override) (Override, error) {
	o.Name = strings.TrimSpace(o.Name)
	o.Version = strings.TrimSpace(o.Version)
	if o.Name == "" {
		return Override{}, errors.New("override name is required")
	}
	if o.Version == "" {
		o.Version = ingest.AnyVersion
	}
	if len(o.Identifiers) == 0 {
		return Override{}, errors.New("override needs at least one license identifier")
	}
	ids := make(core.IdentifierSet, len(o.Identifiers))
	ids.Add(o.Identifiers...)
	o.Identifiers = ids.Sorted()

	encoded, err := encodeIdentifiers(o.Identifiers)
	if err != nil {
		return Override{}, err
	}
	o.UpdatedAt = time.Now().UTC()

	_, err = s.execWithRetry(ctx,
		`INSERT INTO overrides (name, version, identifiers, note, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(name, version) DO UPDATE SET
             identifiers = excluded.identifiers,
             note = excluded.note,
             updated_at = excluded.updated_at`,
		o.Name, o.Version, encoded, nullableString(o.Note), formatTime(o.UpdatedAt),
	)
	if err != nil {
		return Override{}, fmt.Errorf("save override: %w", err)
	}
	return o, nil
}

// GetOverride returns the override stored for exactly (name, version), or
// nil when none exists.
func (s *Store) GetOverride(ctx context.Context, name, version string) (*Override, error) {
	if version == "" {
		version = ingest.AnyVersion
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT name, version, identifiers, note, updated_at FROM overrides WHERE name = ? AND version = ?`,
		name, version,
	)
	o, err := scanOverride(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get override: %w", err)
	}
	return o, nil
}

// Overrides lists every stored override ordered by name then version.
func (s *Store) Overrides(ctx context.Context) ([]Override, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, version, identifiers, note, updated_at FROM overrides ORDER BY name, version`,
	)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()

	var out []Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overrides: %w", err)
	}
	return out, nil
}

// IngestOverrides lists the stored overrides in filter form.
func (s *Store) IngestOverrides(ctx context.Context) ([]ingest.Override, error) {
	stored, err := s.Overrides(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ingest.Override, len(stored))
	for i, o := range stored {
		out[i] = o.Ingest()
	}
	return out, nil
}

// RemoveOverride deletes the override for (name, version) and reports whether
// one existed.
func (s *Store) RemoveOverride(ctx context.Context, name, version string) (bool, error) {
	if version == "" {
		version = ingest.AnyVersion
	}
	res, err := s.execWithRetry(ctx, `DELETE FROM overrides WHERE name = ? AND version = ?`, name, version)
	if err != nil {
		return false, fmt.Errorf("remove override: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func scanOverride(scanner interface{ Scan(dest ...any) error }) (*Override, error) {
	var (
		o          Override
		rawIDs     string
		note       sql.NullString
		updatedRaw string
	)
	if err := scanner.Scan(&o.Name, &o.Version, &rawIDs, &note, &updatedRaw); err != nil {
		return nil, err
	}
	ids, err := decodeIdentifiers(rawIDs)
	if err != nil {
		return nil, err
	}
	o.Identifiers = ids
	o.Note = note.String
	if t, err := parseTime(updatedRaw); err == nil {
		o.UpdatedAt = t
	}
	return &o, nil
}
