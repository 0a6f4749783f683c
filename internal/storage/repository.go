package storage

import (
	"context"

	"github.com/neway-security/clocking-monitor/internal/diagnostics"
)

func (r *Repository) InsertDiagnostics(ctx context.Context, entries []diagnostics.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO diagnostics (channel, kind, message, at)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, entry := range entries {
		if _, err := stmt.ExecContext(ctx, entry.Channel, entry.Kind, entry.Message, formatTime(entry.At)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecentDiagnostics returns up to limit entries, newest first.
func (r *Repository) RecentDiagnostics(ctx context.Context, limit int) ([]diagnostics.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT channel, kind, message, at
		FROM diagnostics
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]diagnostics.Entry, 0, limit)
	for rows.Next() {
		var (
			entry diagnostics.Entry
			at    string
		)
		if err := rows.Scan(&entry.Channel, &entry.Kind, &entry.Message, &at); err != nil {
			return nil, err
		}
		entry.At = parseTime(at)
		result = append(result, entry)
	}
	return result, rows.Err()
}

// PruneDiagnostics keeps only the newest keep rows.
func (r *Repository) PruneDiagnostics(ctx context.Context, keep int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM diagnostics
		WHERE id NOT IN (SELECT id FROM diagnostics ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
