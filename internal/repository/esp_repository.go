package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/switchstack/switchstack-api/internal/model"
)

// EspRepo persists devices together with their membership and switch rows.
type EspRepo struct {
	db *sql.DB
}

// NewEspRepo returns a new EspRepo bound to the given database.
func NewEspRepo(db *sql.DB) *EspRepo { return &EspRepo{db: db} }

// Layout is the minimum a status message needs to resolve a switch: the
// device primary key and how many switches it has.
type Layout struct {
	ID           uint64
	SwitchCount  int
	NoOfSwitches int
}

// Provisioned reports whether every declared switch exists.
func (l Layout) Provisioned() bool { return l.SwitchCount >= l.NoOfSwitches }

const espColumns = "id, esp_id, owner_id, name, icon, is_active, no_of_switches, created_at, updated_at"

// Create inserts an unclaimed device with no switches.
func (r *EspRepo) Create(ctx context.Context, espID string, noOfSwitches int) (model.Esp, error) {
	espID = strings.TrimSpace(espID)
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO esps (esp_id, no_of_switches) VALUES (?, ?)", espID, noOfSwitches)
	if err != nil {
		if isDuplicate(err) {
			return model.Esp{}, ErrEspExists
		}
		return model.Esp{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Esp{}, err
	}
	now := time.Now().UTC()
	return model.Esp{
		ID:           uint64(id),
		EspID:        espID,
		NoOfSwitches: noOfSwitches,
		Users:        []uint64{},
		Switches:     []model.Switch{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetByEspID loads a device by hardware id with users and switches.
func (r *EspRepo) GetByEspID(ctx context.Context, espID string) (model.Esp, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+espColumns+" FROM esps WHERE esp_id = ?", strings.TrimSpace(espID))
	return r.loadFull(ctx, row)
}

// GetByID loads a device by primary key with users and switches.
func (r *EspRepo) GetByID(ctx context.Context, id uint64) (model.Esp, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+espColumns+" FROM esps WHERE id = ?", id)
	return r.loadFull(ctx, row)
}

func (r *EspRepo) loadFull(ctx context.Context, row *sql.Row) (model.Esp, error) {
	e, err := scanEsp(row)
	if err != nil {
		return model.Esp{}, err
	}
	if e.Users, err = r.usersOf(ctx, e.ID); err != nil {
		return model.Esp{}, err
	}
	if e.Switches, err = listSwitches(ctx, r.db, e.ID); err != nil {
		return model.Esp{}, err
	}
	return e, nil
}

// ListByUser returns the devices userID is a member of, each with its
// switches, ordered by id.
func (r *EspRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Esp, error) {
	const q = `SELECT e.id, e.esp_id, e.owner_id, e.name, e.icon, e.is_active, e.no_of_switches, e.created_at, e.updated_at
        FROM esps e JOIN esp_users eu ON eu.esp_id = e.id
        WHERE eu.user_id = ? ORDER BY e.id`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Esp{}
	ids := []uint64{}
	for rows.Next() {
		e, err := scanEsp(rows)
		if err != nil {
			return nil, err
		}
		e.Switches = []model.Switch{}
		out = append(out, e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	byEsp, err := switchesByEsp(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if sws, ok := byEsp[out[i].ID]; ok {
			out[i].Switches = sws
		}
	}
	return out, nil
}

// Register claims an unowned device for userID in one transaction: the
// conditional owner update, the membership row, the metadata and, when the
// device is not fully provisioned yet, its switch rows at positions
// 0..NoOfSwitches-1 with state off.  A device that already has an owner
// yields ErrAlreadyClaimed and nothing is written.
func (r *EspRepo) Register(ctx context.Context, id, userID uint64, name, icon string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var noOfSwitches int
	err = tx.QueryRowContext(ctx, "SELECT no_of_switches FROM esps WHERE id = ? FOR UPDATE", id).Scan(&noOfSwitches)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE esps SET owner_id = ?, name = ?, icon = ?, is_active = 1 WHERE id = ? AND owner_id IS NULL",
		userID, nullString(name), nullString(icon), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyClaimed
	}

	if _, err = tx.ExecContext(ctx, "INSERT IGNORE INTO esp_users (esp_id, user_id) VALUES (?, ?)", id, userID); err != nil {
		return err
	}

	var count int
	if err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM switches WHERE esp_id = ?", id).Scan(&count); err != nil {
		return err
	}
	if count < noOfSwitches {
		if _, err = tx.ExecContext(ctx, "DELETE FROM switches WHERE esp_id = ?", id); err != nil {
			return err
		}
		if err = insertSwitches(ctx, tx, id, noOfSwitches); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertSwitches(ctx context.Context, tx *sql.Tx, espPK uint64, n int) error {
	if n <= 0 {
		return nil
	}
	values := make([]string, 0, n)
	args := make([]any, 0, n*2)
	for i := 0; i < n; i++ {
		values = append(values, "(?, ?, 0)")
		args = append(args, espPK, i)
	}
	q := fmt.Sprintf("INSERT INTO switches (esp_id, position, state) VALUES %s", strings.Join(values, ","))
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

// UpdateMeta overwrites the device's display name and icon.
func (r *EspRepo) UpdateMeta(ctx context.Context, id uint64, name, icon string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE esps SET name = ?, icon = ? WHERE id = ?",
		nullString(name), nullString(icon), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Layout returns the primary key and switch counts for a hardware id.
func (r *EspRepo) Layout(ctx context.Context, espID string) (Layout, error) {
	const q = `SELECT e.id, e.no_of_switches, (SELECT COUNT(*) FROM switches s WHERE s.esp_id = e.id)
        FROM esps e WHERE e.esp_id = ?`
	var l Layout
	err := r.db.QueryRowContext(ctx, q, espID).Scan(&l.ID, &l.NoOfSwitches, &l.SwitchCount)
	if errors.Is(err, sql.ErrNoRows) {
		return Layout{}, ErrNotFound
	}
	return l, err
}

func (r *EspRepo) usersOf(ctx context.Context, id uint64) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT user_id FROM esp_users WHERE esp_id = ? ORDER BY created_at, user_id", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []uint64{}
	for rows.Next() {
		var u uint64
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEsp(row rowScanner) (model.Esp, error) {
	var (
		e     model.Esp
		owner sql.NullInt64
		name  sql.NullString
		icon  sql.NullString
	)
	err := row.Scan(&e.ID, &e.EspID, &owner, &name, &icon, &e.IsActive, &e.NoOfSwitches, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Esp{}, ErrNotFound
	}
	if err != nil {
		return model.Esp{}, err
	}
	e.OwnerID = uintPtr(owner)
	e.Name = stringPtr(name)
	e.Icon = stringPtr(icon)
	return e, nil
}
