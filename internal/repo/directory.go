package repo

import (
	"context"
	"database/sql"

	"ouvidor/internal/domain"
)

// Sectors and users form the routing directory: a manifestation can only
// be forwarded to a sector that exists here.

func (r Repo) EnsureSector(ctx context.Context, tx *sql.Tx, id, name, now string) error {
	if name == "" {
		name = id
	}
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO sectors(id, name, created_at) VALUES (?,?,?)`, id, name, now)
	return err
}

func (r Repo) UpsertSector(ctx context.Context, s domain.Sector) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO sectors(id,name,description,created_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, description=excluded.description`,
		s.ID, s.Name, nullable(s.Description), s.CreatedAt)
	return err
}

func (r Repo) GetSector(ctx context.Context, id string) (domain.Sector, error) {
	var s domain.Sector
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,description,created_at FROM sectors WHERE id=?`, id).
		Scan(&s.ID, &s.Name, &desc, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Description = desc.String
	return s, nil
}

func (r Repo) SectorExistsTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM sectors WHERE id=?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) ListSectors(ctx context.Context) ([]domain.Sector, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,description,created_at FROM sectors ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Sector
	for rows.Next() {
		var s domain.Sector
		var desc sql.NullString
		if err := rows.Scan(&s.ID, &s.Name, &desc, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Description = desc.String
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) EnsureUser(ctx context.Context, tx *sql.Tx, id string, role domain.Role, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO users(id, role, created_at) VALUES (?,?,?)`, id, role, now)
	return err
}

func (r Repo) UpsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,name,role,sector_id,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, role=excluded.role, sector_id=excluded.sector_id`,
		u.ID, nullable(u.Name), u.Role, u.SectorID, u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	var name sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,role,sector_id,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &name, &u.Role, &u.SectorID, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.Name = name.String
	return u, nil
}

func (r Repo) ListUsers(ctx context.Context, sectorID string) ([]domain.User, error) {
	query := `SELECT id,name,role,sector_id,created_at FROM users`
	var args []any
	if sectorID != "" {
		query += ` WHERE sector_id=?`
		args = append(args, sectorID)
	}
	query += ` ORDER BY id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		var name sql.NullString
		if err := rows.Scan(&u.ID, &name, &u.Role, &u.SectorID, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Name = name.String
		res = append(res, u)
	}
	return res, rows.Err()
}

// ListSectorUsersTx returns the users of one sector inside tx, for
// notification fan-out during a lifecycle write.
func (r Repo) ListSectorUsersTx(ctx context.Context, tx *sql.Tx, sectorID string) ([]domain.User, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,name,role,sector_id,created_at FROM users WHERE sector_id=? ORDER BY id ASC`, sectorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		var name sql.NullString
		if err := rows.Scan(&u.ID, &name, &u.Role, &u.SectorID, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Name = name.String
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) InsertComplainantTx(ctx context.Context, tx *sql.Tx, c domain.Complainant) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO complainants(id,name,email,phone,consent,created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.Name, nullable(c.Email), nullable(c.Phone), boolInt(c.Consent), c.CreatedAt)
	return err
}

func (r Repo) GetComplainant(ctx context.Context, id string) (domain.Complainant, error) {
	var c domain.Complainant
	var email, phone sql.NullString
	var consent int
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,email,phone,consent,created_at FROM complainants WHERE id=?`, id).
		Scan(&c.ID, &c.Name, &email, &phone, &consent, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.Email = email.String
	c.Phone = phone.String
	c.Consent = consent != 0
	return c, nil
}
