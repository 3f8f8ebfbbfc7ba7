package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ouvidor/internal/config"
	"ouvidor/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict signals an optimistic-concurrency failure: the row was
	// mutated between read and write. The caller must reload and retry.
	ErrConflict = errors.New("concurrent modification")
)

const manifestationColumns = `id,protocol,type,status,priority,description,anonymous,confidential,channel,
response,response_deadline,responded_at,closed_at,responsible_sector_id,responsible_user_id,complainant_id,
created_at,updated_at`

func scanManifestation(scan func(dest ...any) error) (domain.Manifestation, error) {
	var m domain.Manifestation
	var anonymous, confidential int
	err := scan(&m.ID, &m.Protocol, &m.Type, &m.Status, &m.Priority, &m.Description,
		&anonymous, &confidential, &m.Channel,
		&m.Response, &m.ResponseDeadline, &m.RespondedAt, &m.ClosedAt,
		&m.ResponsibleSector, &m.ResponsibleUserID, &m.ComplainantID,
		&m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.Anonymous = anonymous != 0
	m.Confidential = confidential != 0
	return m, nil
}

func (r Repo) InsertManifestationTx(ctx context.Context, tx *sql.Tx, m domain.Manifestation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO manifestations(`+manifestationColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.Protocol, m.Type, m.Status, m.Priority, m.Description,
		boolInt(m.Anonymous), boolInt(m.Confidential), m.Channel,
		m.Response, m.ResponseDeadline, m.RespondedAt, m.ClosedAt,
		m.ResponsibleSector, m.ResponsibleUserID, m.ComplainantID,
		m.CreatedAt, m.UpdatedAt)
	return err
}

func (r Repo) GetManifestation(ctx context.Context, id string) (domain.Manifestation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+manifestationColumns+` FROM manifestations WHERE id=?`, id)
	return scanManifestation(row.Scan)
}

func (r Repo) GetManifestationTx(ctx context.Context, tx *sql.Tx, id string) (domain.Manifestation, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+manifestationColumns+` FROM manifestations WHERE id=?`, id)
	return scanManifestation(row.Scan)
}

func (r Repo) GetManifestationByProtocol(ctx context.Context, protocol string) (domain.Manifestation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+manifestationColumns+` FROM manifestations WHERE protocol=?`, protocol)
	return scanManifestation(row.Scan)
}

// UpdateManifestationTx writes every mutable column guarded by the
// optimistic token: the row must still carry expectedUpdatedAt. Zero rows
// affected means either the record vanished (ErrNotFound) or someone else
// won the race (ErrConflict).
func (r Repo) UpdateManifestationTx(ctx context.Context, tx *sql.Tx, m domain.Manifestation, expectedUpdatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE manifestations SET
type=?, status=?, priority=?, description=?, anonymous=?, confidential=?, channel=?,
response=?, response_deadline=?, responded_at=?, closed_at=?,
responsible_sector_id=?, responsible_user_id=?, complainant_id=?, updated_at=?
WHERE id=? AND updated_at=?`,
		m.Type, m.Status, m.Priority, m.Description, boolInt(m.Anonymous), boolInt(m.Confidential), m.Channel,
		m.Response, m.ResponseDeadline, m.RespondedAt, m.ClosedAt,
		m.ResponsibleSector, m.ResponsibleUserID, m.ComplainantID, m.UpdatedAt,
		m.ID, expectedUpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM manifestations WHERE id=?`, m.ID).Scan(&one)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (r Repo) DeleteManifestationTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM manifestations WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ManifestationFilters narrows ListManifestations.
type ManifestationFilters struct {
	Status          string
	Type            string
	SectorID        string
	UserID          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListManifestations(ctx context.Context, f ManifestationFilters) ([]domain.Manifestation, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.SectorID != "" {
		clauses = append(clauses, "responsible_sector_id=?")
		args = append(args, f.SectorID)
	}
	if f.UserID != "" {
		clauses = append(clauses, "responsible_user_id=?")
		args = append(args, f.UserID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + manifestationColumns + ` FROM manifestations WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Manifestation
	for rows.Next() {
		m, err := scanManifestation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// NextProtocol allocates the next protocol number for the given year inside
// tx, so two concurrent intakes can never share a protocol.
func (r Repo) NextProtocol(ctx context.Context, tx *sql.Tx, year int) (string, error) {
	var next int
	err := tx.QueryRowContext(ctx, `SELECT next FROM protocol_sequences WHERE year=?`, year).Scan(&next)
	if err == sql.ErrNoRows {
		next = 1
		if _, err := tx.ExecContext(ctx, `INSERT INTO protocol_sequences(year,next) VALUES (?,?)`, year, next+1); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	} else {
		if _, err := tx.ExecContext(ctx, `UPDATE protocol_sequences SET next=? WHERE year=?`, next+1, year); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("OUV-%d-%06d", year, next), nil
}

func (r Repo) UpsertOfficeConfig(ctx context.Context, officeID string, cfg *config.Config) error {
	return upsertOfficeConfig(ctx, r.DB, nil, officeID, cfg)
}

func (r Repo) UpsertOfficeConfigTx(ctx context.Context, tx *sql.Tx, officeID string, cfg *config.Config) error {
	return upsertOfficeConfig(ctx, nil, tx, officeID, cfg)
}

func upsertOfficeConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, officeID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Office.ID = officeID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO office_configs(office_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(office_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, officeID, string(payload), now, now)
	return err
}

func (r Repo) GetOfficeConfig(ctx context.Context, officeID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM office_configs WHERE office_id=?`, officeID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Office.ID == "" {
		cfg.Office.ID = officeID
	}
	return &cfg, cfg.Validate()
}

func (r Repo) SingleOfficeConfig(ctx context.Context) (string, *config.Config, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT office_id FROM office_configs`)
	if err != nil {
		return "", nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", nil, err
	}
	if len(ids) == 0 {
		return "", nil, ErrNotFound
	}
	if len(ids) > 1 {
		return "", nil, fmt.Errorf("multiple offices exist; specify --office")
	}
	cfg, err := r.GetOfficeConfig(ctx, ids[0])
	return ids[0], cfg, err
}

// --- helpers ---

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
