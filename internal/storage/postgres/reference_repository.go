package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/mos/internal/domain"
)

type referenceRepository struct {
	db *sql.DB
}

var _ domain.ReferenceRepository = (*referenceRepository)(nil)

// NewReferenceRepository создаёт PostgreSQL-реализацию ReferenceRepository.
func NewReferenceRepository(store *Store) domain.ReferenceRepository {
	return &referenceRepository{db: store.DB()}
}

func referenceTable(line domain.ProductLine, kind domain.ReferenceKind) (string, error) {
	if !kind.ValidFor(line) {
		return "", domain.ErrReferenceNotFound
	}

	switch {
	case line == domain.LineCover && kind == domain.ReferenceParty:
		return "cover_parties", nil
	case line == domain.LineCover && kind == domain.ReferenceModel:
		return "cover_models", nil
	case line == domain.LineBlade && kind == domain.ReferenceParty:
		return "blade_parties", nil
	case line == domain.LineBlade && kind == domain.ReferenceModel:
		return "blade_models", nil
	case line == domain.LineBlade && kind == domain.ReferenceBox:
		return "blade_boxes", nil
	case line == domain.LineBlade && kind == domain.ReferenceStc:
		return "blade_stc", nil
	case line == domain.LineBlade && kind == domain.ReferenceTrims:
		return "blade_trims", nil
	default:
		return "", domain.ErrReferenceNotFound
	}
}

func (r *referenceRepository) List(line domain.ProductLine, kind domain.ReferenceKind) ([]domain.ReferenceEntry, error) {
	table, err := referenceTable(line, kind)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, name
		FROM %s
		ORDER BY id
	`, table))
	if err != nil {
		return nil, fmt.Errorf("select reference entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.ReferenceEntry, 0, 16)
	for rows.Next() {
		var entry domain.ReferenceEntry
		if err := rows.Scan(&entry.ID, &entry.Name); err != nil {
			return nil, fmt.Errorf("scan reference entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference entries: %w", err)
	}

	return entries, nil
}

func (r *referenceRepository) Add(line domain.ProductLine, kind domain.ReferenceKind, name string) (domain.ReferenceEntry, error) {
	table, err := referenceTable(line, kind)
	if err != nil {
		return domain.ReferenceEntry{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ReferenceEntry{}, domain.ErrReferenceNameRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	entry := domain.ReferenceEntry{Name: name}
	err = r.db.QueryRowContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (name) VALUES ($1)
		RETURNING id
	`, table), name).Scan(&entry.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ReferenceEntry{}, domain.ErrReferenceNameTaken
		}
		return domain.ReferenceEntry{}, fmt.Errorf("insert reference entry: %w", err)
	}

	return entry, nil
}

func (r *referenceRepository) Rename(line domain.ProductLine, kind domain.ReferenceKind, id int64, name string) error {
	table, err := referenceTable(line, kind)
	if err != nil {
		return err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ErrReferenceNameRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET name = $1 WHERE id = $2
	`, table), name, id)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrReferenceNameTaken
		}
		return fmt.Errorf("rename reference entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename reference rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrReferenceNotFound
	}

	return nil
}

func (r *referenceRepository) Remove(line domain.ProductLine, kind domain.ReferenceKind, id int64) error {
	table, err := referenceTable(line, kind)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM %s WHERE id = $1
	`, table), id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrReferenceInUse
		}
		return fmt.Errorf("delete reference entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete reference rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrReferenceNotFound
	}

	return nil
}
