package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/campus-insight/campus-insight-hub/internal/domain/record"
	"github.com/campus-insight/campus-insight-hub/internal/domain/student"
	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY STATISTICS REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// DailyStatisticRepository implements record.DailyStatisticRepository using
// PostgreSQL. The values column is JSONB so each source can carry its own
// summary shape without schema churn.
type DailyStatisticRepository struct {
	conn *Connection
}

// NewDailyStatisticRepository creates a new PostgreSQL daily statistics repository.
func NewDailyStatisticRepository(conn *Connection) *DailyStatisticRepository {
	return &DailyStatisticRepository{conn: conn}
}

// ReplaceRange atomically replaces all daily statistics of one source
// inside [from, to] with the given rows.
func (r *DailyStatisticRepository) ReplaceRange(ctx context.Context, source record.SourceType, from, to time.Time, rows []record.DailyStatistic) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`DELETE FROM daily_statistics WHERE source = $1 AND stat_date >= $2 AND stat_date <= $3`,
			string(source), from, to,
		)
		if err != nil {
			return fmt.Errorf("failed to clear daily statistics: %w", err)
		}

		for _, row := range rows {
			_, err := tx.Exec(ctx, `
				INSERT INTO daily_statistics (student_id, source, stat_date, stat_values)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (student_id, source, stat_date) DO UPDATE SET stat_values = EXCLUDED.stat_values`,
				string(row.StudentID), string(row.Source), row.Date, row.Values,
			)
			if err != nil {
				return fmt.Errorf("failed to insert daily statistic: %w", err)
			}
		}
		return nil
	})
}

// FetchRange returns daily statistics for one student and source, ordered
// by date.
func (r *DailyStatisticRepository) FetchRange(ctx context.Context, id student.ID, source record.SourceType, from, to time.Time) ([]record.DailyStatistic, error) {
	query := `SELECT student_id, source, stat_date, stat_values FROM daily_statistics
		WHERE student_id = $1 AND source = $2 AND stat_date >= $3 AND stat_date <= $4
		ORDER BY stat_date`

	rows, err := r.conn.Query(ctx, query, string(id), string(source), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch daily statistics: %w", err)
	}
	defer rows.Close()

	var out []record.DailyStatistic
	for rows.Next() {
		var (
			stat record.DailyStatistic
			sid  string
			src  string
		)
		if err := rows.Scan(&sid, &src, &stat.Date, &stat.Values); err != nil {
			return nil, fmt.Errorf("failed to scan daily statistic: %w", err)
		}
		stat.StudentID = student.ID(sid)
		stat.Source = record.SourceType(src)
		out = append(out, stat)
	}
	return out, rows.Err()
}
