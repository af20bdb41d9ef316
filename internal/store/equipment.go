package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const equipmentColumns = `id, tenant_id, type, manufacturer, model, category, search_key, created_at, updated_at`

const maxEquipmentResults = 20

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEquipment(row rowScanner) (*Equipment, error) {
	var e Equipment
	var createdAt, updatedAt int64
	if err := row.Scan(&e.ID, &e.TenantID, &e.Type, &e.Manufacturer, &e.Model,
		&e.Category, &e.SearchKey, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.CreatedAt = fromUnix(createdAt)
	e.UpdatedAt = fromUnix(updatedAt)
	return &e, nil
}

// FindEquipmentByAttributes implements EquipmentStore.
func (s *SQLiteStore) FindEquipmentByAttributes(ctx context.Context, tenantID string, terms []string) ([]Equipment, error) {
	var clauses []string
	args := []interface{}{tenantID}
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		clauses = append(clauses, `(lower(type) LIKE ? ESCAPE '\' OR lower(manufacturer) LIKE ? ESCAPE '\'
			OR lower(model) LIKE ? ESCAPE '\' OR lower(category) LIKE ? ESCAPE '\' OR lower(search_key) LIKE ? ESCAPE '\')`)
		p := likePattern(term)
		args = append(args, p, p, p, p, p)
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	query := `SELECT ` + equipmentColumns + ` FROM equipment
		WHERE tenant_id = ? AND (` + strings.Join(clauses, " OR ") + `)
		ORDER BY updated_at DESC, id
		LIMIT ?`
	args = append(args, maxEquipmentResults)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query equipment: %w", err)
	}
	defer rows.Close()

	var out []Equipment
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan equipment row: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// GetEquipment implements EquipmentStore. Equipment of another tenant is not found.
func (s *SQLiteStore) GetEquipment(ctx context.Context, tenantID, id string) (*Equipment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+equipmentColumns+` FROM equipment WHERE id = ? AND tenant_id = ?`, id, tenantID)
	e, err := scanEquipment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("equipment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan equipment row: %w", err)
	}
	return e, nil
}

// CreateEquipment implements EquipmentStore.
func (s *SQLiteStore) CreateEquipment(ctx context.Context, tenantID string, f EquipmentFields) (*Equipment, error) {
	if tenantID == "" || strings.TrimSpace(f.Type) == "" {
		return nil, fmt.Errorf("equipment needs tenant and type: %w", ErrInvalid)
	}
	now := s.now().UTC()
	e := &Equipment{
		ID:           newID(),
		TenantID:     tenantID,
		Type:         strings.TrimSpace(f.Type),
		Manufacturer: strings.TrimSpace(f.Manufacturer),
		Model:        strings.TrimSpace(f.Model),
		Category:     strings.TrimSpace(f.Category),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	e.SearchKey = searchKey(e)

	_, err := s.db.ExecContext(ctx, `INSERT INTO equipment (`+equipmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.Type, e.Manufacturer, e.Model, e.Category, e.SearchKey,
		toUnix(e.CreatedAt), toUnix(e.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert equipment: %w", err)
	}
	return e, nil
}

// InsertEquipment stores a record imported from elsewhere, keeping its ID and
// timestamps. A missing search key is derived from type, manufacturer and model.
func (s *SQLiteStore) InsertEquipment(ctx context.Context, e *Equipment) error {
	if e.TenantID == "" || strings.TrimSpace(e.Type) == "" {
		return fmt.Errorf("equipment needs tenant and type: %w", ErrInvalid)
	}
	if e.ID == "" {
		e.ID = newID()
	}
	if e.SearchKey == "" {
		e.SearchKey = searchKey(e)
	}
	e.CreatedAt = s.stamp(e.CreatedAt)
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO equipment (`+equipmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.Type, e.Manufacturer, e.Model, e.Category, e.SearchKey,
		toUnix(e.CreatedAt), toUnix(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert equipment: %w", err)
	}
	return nil
}

func searchKey(e *Equipment) string {
	return strings.ToLower(strings.Join(strings.Fields(e.Type+" "+e.Manufacturer+" "+e.Model), " "))
}
