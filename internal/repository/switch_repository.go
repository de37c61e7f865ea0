package repository

import (
	"context"
	"database/sql"

	"github.com/switchstack/switchstack-api/internal/model"
)

// SwitchRepo updates individual switch rows.  Every write is scoped by the
// parent device so a switch id from another device never matches.
type SwitchRepo struct {
	db *sql.DB
}

func NewSwitchRepo(db *sql.DB) *SwitchRepo { return &SwitchRepo{db: db} }

// UpdateMeta overwrites name and icon of a switch owned by espPK.
func (r *SwitchRepo) UpdateMeta(ctx context.Context, espPK, switchID uint64, name, icon string) error {
	return r.exec(ctx, "UPDATE switches SET name = ?, icon = ? WHERE id = ? AND esp_id = ?",
		nullString(name), nullString(icon), switchID, espPK)
}

// SetState sets the on/off state of a switch owned by espPK.
func (r *SwitchRepo) SetState(ctx context.Context, espPK, switchID uint64, state bool) error {
	return r.exec(ctx, "UPDATE switches SET state = ? WHERE id = ? AND esp_id = ?", state, switchID, espPK)
}

// SetStateAt sets the state of the switch at position within espPK.
func (r *SwitchRepo) SetStateAt(ctx context.Context, espPK uint64, position int, state bool) error {
	return r.exec(ctx, "UPDATE switches SET state = ? WHERE esp_id = ? AND position = ?", state, espPK, position)
}

func (r *SwitchRepo) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const switchColumns = "id, esp_id, position, name, icon, state"

func listSwitches(ctx context.Context, q querier, espPK uint64) ([]model.Switch, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+switchColumns+" FROM switches WHERE esp_id = ? ORDER BY position", espPK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Switch{}
	for rows.Next() {
		sw, err := scanSwitch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sw)
	}
	return out, rows.Err()
}

// switchesByEsp loads the switches of several devices in one query.
func switchesByEsp(ctx context.Context, q querier, espPKs []uint64) (map[uint64][]model.Switch, error) {
	args := make([]any, len(espPKs))
	for i, id := range espPKs {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx,
		"SELECT "+switchColumns+" FROM switches WHERE esp_id IN ("+placeholders(len(espPKs))+") ORDER BY esp_id, position",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uint64][]model.Switch, len(espPKs))
	for rows.Next() {
		sw, err := scanSwitch(rows)
		if err != nil {
			return nil, err
		}
		out[sw.EspID] = append(out[sw.EspID], sw)
	}
	return out, rows.Err()
}

func scanSwitch(row rowScanner) (model.Switch, error) {
	var (
		sw   model.Switch
		name sql.NullString
		icon sql.NullString
	)
	if err := row.Scan(&sw.ID, &sw.EspID, &sw.Position, &name, &icon, &sw.State); err != nil {
		return model.Switch{}, err
	}
	sw.Name = stringPtr(name)
	sw.Icon = stringPtr(icon)
	return sw, nil
}
