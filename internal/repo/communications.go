package repo

import (
	"context"
	"database/sql"

	"ouvidor/internal/domain"
)

const communicationColumns = `id,manifestation_id,recipient,subject,body,protocol,status,error,created_at`

func (r Repo) InsertCommunication(ctx context.Context, c domain.Communication) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO communications(`+communicationColumns+`)
VALUES (?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ManifestationID, c.Recipient, c.Subject, nullable(c.Body), c.Protocol,
		c.Status, nullable(c.Error), c.CreatedAt)
	return err
}

func (r Repo) ListCommunications(ctx context.Context, manifestationID string) ([]domain.Communication, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+communicationColumns+` FROM communications
WHERE manifestation_id=? ORDER BY created_at DESC, id DESC`, manifestationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Communication
	for rows.Next() {
		var c domain.Communication
		var body, errText sql.NullString
		if err := rows.Scan(&c.ID, &c.ManifestationID, &c.Recipient, &c.Subject, &body,
			&c.Protocol, &c.Status, &errText, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Body = body.String
		c.Error = errText.String
		res = append(res, c)
	}
	return res, rows.Err()
}
