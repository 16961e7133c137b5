package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/credinor/crm-backend/internal/entity"
)

// SyncLogRepository persiste los intentos de sincronización en Postgres.
//
// Esquema esperado:
//
//	CREATE TABLE sync_logs (
//	    id           uuid PRIMARY KEY,
//	    lead_id      text,
//	    tipo         text NOT NULL,
//	    direccion    text NOT NULL,
//	    estado       text NOT NULL DEFAULT 'pending',
//	    reintentos   int  NOT NULL DEFAULT 0,
//	    error        text,
//	    snapshot     jsonb,
//	    created_at   timestamptz NOT NULL DEFAULT NOW(),
//	    completed_at timestamptz
//	);
type SyncLogRepository struct {
	DB *sql.DB
}

func (r *SyncLogRepository) Create(ctx context.Context, e *entity.SyncLogEntry) error {
	query := `
		INSERT INTO sync_logs (id, lead_id, tipo, direccion, estado, reintentos, snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.DB.ExecContext(
		ctx,
		query,
		e.ID,
		e.LeadID,
		e.Type,
		e.Direction,
		e.Status,
		e.RetryCount,
		nullBytes(e.Snapshot),
		e.CreatedAt,
	)
	return err
}

func (r *SyncLogRepository) MarkSuccess(ctx context.Context, id string, snapshot []byte) error {
	query := `
		UPDATE sync_logs
		SET estado = 'success',
		    snapshot = COALESCE($2, snapshot),
		    completed_at = NOW()
		WHERE id = $1 AND estado = 'pending'
	`

	_, err := r.DB.ExecContext(ctx, query, id, nullBytes(snapshot))
	return err
}

// MarkFailed cierra el intento en failed y cuenta el intento fallido
func (r *SyncLogRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	query := `
		UPDATE sync_logs
		SET estado = 'failed',
		    error = $2,
		    reintentos = reintentos + 1,
		    completed_at = NOW()
		WHERE id = $1 AND estado = 'pending'
	`

	_, err := r.DB.ExecContext(ctx, query, id, errMsg)
	return err
}

func (r *SyncLogRepository) SetLeadID(ctx context.Context, id, leadID string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE sync_logs SET lead_id = $2 WHERE id = $1`, id, leadID)
	return err
}

func (r *SyncLogRepository) IncrementRetry(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE sync_logs SET reintentos = reintentos + 1 WHERE id = $1`, id)
	return err
}

func (r *SyncLogRepository) ListFailed(ctx context.Context, maxRetries, limit int) ([]entity.SyncLogEntry, error) {
	query := `
		SELECT id, lead_id, tipo, direccion, estado, reintentos, COALESCE(error, ''), snapshot, created_at, completed_at
		FROM sync_logs
		WHERE estado = 'failed' AND reintentos < $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.DB.QueryContext(ctx, query, maxRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (r *SyncLogRepository) List(ctx context.Context, leadID string, limit int) ([]entity.SyncLogEntry, error) {
	query := `
		SELECT id, lead_id, tipo, direccion, estado, reintentos, COALESCE(error, ''), snapshot, created_at, completed_at
		FROM sync_logs
		WHERE ($1 = '' OR lead_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.DB.QueryContext(ctx, query, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteSuccessfulBefore purga solo entradas exitosas; las fallidas quedan para auditoría
func (r *SyncLogRepository) DeleteSuccessfulBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(
		ctx,
		`DELETE FROM sync_logs WHERE estado = 'success' AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountPendingBefore cuenta intentos que nunca se cerraron (huérfanos)
func (r *SyncLogRepository) CountPendingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := r.DB.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM sync_logs WHERE estado = 'pending' AND created_at < $1`,
		cutoff,
	).Scan(&count)
	return count, err
}

func scanEntries(rows *sql.Rows) ([]entity.SyncLogEntry, error) {
	var entries []entity.SyncLogEntry
	for rows.Next() {
		var e entity.SyncLogEntry
		var snapshot []byte
		if err := rows.Scan(
			&e.ID,
			&e.LeadID,
			&e.Type,
			&e.Direction,
			&e.Status,
			&e.RetryCount,
			&e.Error,
			&snapshot,
			&e.CreatedAt,
			&e.CompletedAt,
		); err != nil {
			return nil, err
		}
		e.Snapshot = snapshot
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
