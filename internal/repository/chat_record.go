package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"trainer/internal/models"
)

// ErrMalformedRecord is returned when a chat log row lacks its message or sender.
var ErrMalformedRecord = errors.New("malformed chat record")

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ChatRecordRepository reads the historical chat log.
type ChatRecordRepository interface {
	GetAllRecords(ctx context.Context) ([]models.ChatRecord, error)
}

type chatRecordRepository struct {
	db     *sqlx.DB
	table  string
	logger *zap.Logger
}

// NewChatRecordRepository creates a repository over the given chat log table.
func NewChatRecordRepository(db *sqlx.DB, table string, logger *zap.Logger) (ChatRecordRepository, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid chat table name %q", table)
	}
	return &chatRecordRepository{db: db, table: table, logger: logger}, nil
}

// GetAllRecords returns every row of the chat log in store order.
// Message and sender are coerced to text by the query itself.
func (r *chatRecordRepository) GetAllRecords(ctx context.Context) ([]models.ChatRecord, error) {
	query := fmt.Sprintf(`SELECT CAST(message AS TEXT) AS message, CAST(sender AS TEXT) AS sender FROM %s`, r.table)

	var rows []models.ChatRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", r.table, err)
	}

	records := make([]models.ChatRecord, 0, len(rows))
	for i, row := range rows {
		if !row.Message.Valid {
			return nil, fmt.Errorf("%w: row %d has no message", ErrMalformedRecord, i)
		}
		if !row.Sender.Valid {
			return nil, fmt.Errorf("%w: row %d has no sender", ErrMalformedRecord, i)
		}
		records = append(records, models.ChatRecord{Text: row.Message.String, Sender: row.Sender.String})
	}

	r.logger.Debug("Loaded chat records", zap.String("table", r.table), zap.Int("count", len(records)))
	return records, nil
}
