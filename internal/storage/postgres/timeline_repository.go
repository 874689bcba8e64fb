package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/mos/internal/domain"
)

const (
	sqlTimelineInsert = `
		INSERT INTO timeline_events (product_line, order_id, event_type, reason, occurred_at)
		VALUES ($1,$2,$3,$4,$5)`

	sqlTimelineSelect = `
		SELECT product_line, order_id, event_type, reason, occurred_at FROM timeline_events
		WHERE product_line = $1 AND order_id = $2
		ORDER BY occurred_at ASC, id ASC`
)

type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository возвращает журнал жизненного цикла заказов
// поверх PostgreSQL.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)

func (r *timelineRepository) Append(event domain.TimelineEvent) error {
	if !event.Line.Valid() {
		return domain.ErrUnknownProductLine
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	ctx, cancel := opCtx()
	defer cancel()

	_, err := r.db.ExecContext(ctx, sqlTimelineInsert,
		string(event.Line), event.OrderID, event.Type, event.Reason, event.Occurred)
	if err != nil {
		return fmt.Errorf("insert timeline event: %w", err)
	}

	return nil
}

func (r *timelineRepository) List(line domain.ProductLine, orderID int64) ([]domain.TimelineEvent, error) {
	if !line.Valid() {
		return nil, domain.ErrUnknownProductLine
	}

	ctx, cancel := opCtx()
	defer cancel()

	rows, err := r.db.QueryContext(ctx, sqlTimelineSelect, string(line), orderID)
	if err != nil {
		return nil, fmt.Errorf("select timeline events: %w", err)
	}
	defer rows.Close()

	history := make([]domain.TimelineEvent, 0)
	for rows.Next() {
		event, err := scanTimelineEvent(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("walk timeline rows: %w", err)
	}

	return history, nil
}

func scanTimelineEvent(rows *sql.Rows) (domain.TimelineEvent, error) {
	var (
		event   domain.TimelineEvent
		lineRaw string
	)
	if err := rows.Scan(&lineRaw, &event.OrderID, &event.Type, &event.Reason, &event.Occurred); err != nil {
		return domain.TimelineEvent{}, fmt.Errorf("scan timeline event: %w", err)
	}
	event.Line = domain.ProductLine(lineRaw)
	return event, nil
}
