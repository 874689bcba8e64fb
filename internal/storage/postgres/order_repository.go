package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/mos/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

// orderTables — набор таблиц, обслуживающих одну производственную линию.
type orderTables struct {
	orders  string
	details string
	parties string
	models  string
}

func tablesFor(line domain.ProductLine) (orderTables, error) {
	switch line {
	case domain.LineCover:
		return orderTables{
			orders:  "cover_orders",
			details: "cover_order_details",
			parties: "cover_parties",
			models:  "cover_models",
		}, nil
	case domain.LineBlade:
		return orderTables{
			orders:  "blade_orders",
			details: "blade_order_details",
			parties: "blade_parties",
			models:  "blade_models",
		}, nil
	default:
		return orderTables{}, domain.ErrUnknownProductLine
	}
}

type orderRepository struct {
	db *sql.DB
}

var _ domain.OrderRepository = (*orderRepository)(nil)

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(order domain.Order) (domain.Order, error) {
	tables, err := tablesFor(order.Line)
	if err != nil {
		return domain.Order{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if order.Line.UsesVoucher() {
		order.VoucherNo, err = nextVoucherTx(ctx, tx, order.Line)
		if err != nil {
			return domain.Order{}, err
		}
	}

	if order.Line.UsesVoucher() {
		err = tx.QueryRowContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (voucher_no, received_date, delivery_date, party_id, total_qty, total_units)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at, updated_at
		`, tables.orders),
			order.VoucherNo, order.ReceivedDate, order.DeliveryDate,
			order.PartyID, order.TotalQty, order.TotalUnits,
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	} else {
		err = tx.QueryRowContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (received_date, delivery_date, party_id)
			VALUES ($1, $2, $3)
			RETURNING id, created_at, updated_at
		`, tables.orders),
			order.ReceivedDate, order.DeliveryDate, order.PartyID,
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Order{}, domain.ErrVoucherConflict
		}
		if isForeignKeyViolation(err) {
			return domain.Order{}, domain.ErrReferenceNotFound
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	if err = insertItemsTx(ctx, tx, tables, order.ID, order.Line, order.Items); err != nil {
		return domain.Order{}, err
	}

	if err = tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit create order: %w", err)
	}

	return order, nil
}

func (r *orderRepository) Replace(order domain.Order) error {
	tables, err := tablesFor(order.Line)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Номер ваучера и ID неизменяемы, обновляются только изменяемые поля мастера.
	var res sql.Result
	if order.Line.UsesVoucher() {
		res, err = tx.ExecContext(ctx, fmt.Sprintf(`
			UPDATE %s
			SET received_date = $1, delivery_date = $2, party_id = $3,
			    total_qty = $4, total_units = $5, updated_at = NOW()
			WHERE id = $6
		`, tables.orders),
			order.ReceivedDate, order.DeliveryDate, order.PartyID,
			order.TotalQty, order.TotalUnits, order.ID,
		)
	} else {
		res, err = tx.ExecContext(ctx, fmt.Sprintf(`
			UPDATE %s
			SET received_date = $1, delivery_date = $2, party_id = $3, updated_at = NOW()
			WHERE id = $4
		`, tables.orders),
			order.ReceivedDate, order.DeliveryDate, order.PartyID, order.ID,
		)
	}
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrReferenceNotFound
		}
		return fmt.Errorf("update order: %w", err)
	}

	var affected int64
	affected, err = res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order rows affected: %w", err)
	}
	if affected == 0 {
		err = domain.ErrOrderNotFound
		return err
	}

	if _, err = tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE order_id = $1`, tables.details), order.ID,
	); err != nil {
		return fmt.Errorf("delete order details: %w", err)
	}

	if err = insertItemsTx(ctx, tx, tables, order.ID, order.Line, order.Items); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace order: %w", err)
	}

	return nil
}

func (r *orderRepository) Delete(line domain.ProductLine, id int64) error {
	tables, err := tablesFor(line)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Сначала позиции, затем мастер: иначе сработает внешний ключ.
	if _, err = tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE order_id = $1`, tables.details), id,
	); err != nil {
		return fmt.Errorf("delete order details: %w", err)
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, tables.orders), id,
	)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}

	var affected int64
	affected, err = res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete order rows affected: %w", err)
	}
	if affected == 0 {
		err = domain.ErrOrderNotFound
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete order: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(line domain.ProductLine, id int64) (domain.Order, error) {
	tables, err := tablesFor(line)
	if err != nil {
		return domain.Order{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.readOrder(ctx, line, tables, "o.id", id)
}

func (r *orderRepository) GetByVoucher(line domain.ProductLine, voucherNo int64) (domain.Order, error) {
	tables, err := tablesFor(line)
	if err != nil {
		return domain.Order{}, err
	}
	if !line.UsesVoucher() {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.readOrder(ctx, line, tables, "o.voucher_no", voucherNo)
}

// queryer покрывает *sql.DB и *sql.Tx в читающих методах.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// readOrder читает мастер и позиции в одном снимке repeatable read:
// параллельный Replace не может подмешать новые позиции к старому мастеру.
func (r *orderRepository) readOrder(ctx context.Context, line domain.ProductLine, tables orderTables, column string, value int64) (domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin read tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order, err := r.getWhere(ctx, tx, line, tables, column, value)
	if err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit read tx: %w", err)
	}

	return order, nil
}

func (r *orderRepository) getWhere(ctx context.Context, q queryer, line domain.ProductLine, tables orderTables, column string, value int64) (domain.Order, error) {
	order := domain.Order{Line: line}
	var partyName sql.NullString

	var err error
	if line.UsesVoucher() {
		err = q.QueryRowContext(ctx, fmt.Sprintf(`
			SELECT o.id, o.voucher_no, o.received_date, o.delivery_date, o.party_id,
			       o.total_qty, o.total_units, o.created_at, o.updated_at, p.name
			FROM %s o
			LEFT JOIN %s p ON p.id = o.party_id
			WHERE %s = $1
		`, tables.orders, tables.parties, column), value).Scan(
			&order.ID, &order.VoucherNo, &order.ReceivedDate, &order.DeliveryDate,
			&order.PartyID, &order.TotalQty, &order.TotalUnits,
			&order.CreatedAt, &order.UpdatedAt, &partyName,
		)
	} else {
		err = q.QueryRowContext(ctx, fmt.Sprintf(`
			SELECT o.id, o.received_date, o.delivery_date, o.party_id,
			       o.created_at, o.updated_at, p.name
			FROM %s o
			LEFT JOIN %s p ON p.id = o.party_id
			WHERE %s = $1
		`, tables.orders, tables.parties, column), value).Scan(
			&order.ID, &order.ReceivedDate, &order.DeliveryDate, &order.PartyID,
			&order.CreatedAt, &order.UpdatedAt, &partyName,
		)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	order.PartyName = partyName.String

	items, err := r.loadItems(ctx, q, line, tables, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, q queryer, line domain.ProductLine, tables orderTables, orderID int64) ([]domain.OrderItem, error) {
	var (
		query string
		rows  *sql.Rows
		err   error
	)

	// ORDER BY d.id воспроизводит порядок вставки позиций.
	if line.UsesVoucher() {
		query = fmt.Sprintf(`
			SELECT d.model_id, d.pl_dx, d.lq_pc, d.colours, d.qty, d.units,
			       d.box, d.stc, d.trims, m.name
			FROM %s d
			LEFT JOIN %s m ON m.id = d.model_id
			WHERE d.order_id = $1
			ORDER BY d.id
		`, tables.details, tables.models)
	} else {
		query = fmt.Sprintf(`
			SELECT d.model_id, d.pl_dx, d.lq_pc, d.colours, d.qty, d.units, m.name
			FROM %s d
			LEFT JOIN %s m ON m.id = d.model_id
			WHERE d.order_id = $1
			ORDER BY d.id
		`, tables.details, tables.models)
	}

	rows, err = q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("select order details: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0, 8)
	for rows.Next() {
		var item domain.OrderItem
		var modelName sql.NullString

		if line.UsesVoucher() {
			err = rows.Scan(
				&item.ModelID, &item.PlDx, &item.LqPc, &item.Colours,
				&item.Qty, &item.Units, &item.Box, &item.Stc, &item.Trims,
				&modelName,
			)
		} else {
			err = rows.Scan(
				&item.ModelID, &item.PlDx, &item.LqPc, &item.Colours,
				&item.Qty, &item.Units, &modelName,
			)
		}
		if err != nil {
			return nil, fmt.Errorf("scan order detail: %w", err)
		}
		item.ModelName = modelName.String
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order details: %w", err)
	}

	return items, nil
}

// nextVoucherTx атомарно выдаёт следующий номер ваучера внутри транзакции
// создания заказа: при её откате номер не фиксируется.
func nextVoucherTx(ctx context.Context, tx *sql.Tx, line domain.ProductLine) (int64, error) {
	var voucherNo int64
	err := tx.QueryRowContext(ctx, `
		UPDATE voucher_sequences
		SET last_value = last_value + 1
		WHERE product_line = $1
		RETURNING last_value
	`, string(line)).Scan(&voucherNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("voucher sequence for line %q is not seeded", line)
		}
		return 0, fmt.Errorf("next voucher number: %w", err)
	}
	return voucherNo, nil
}

func insertItemsTx(ctx context.Context, tx *sql.Tx, tables orderTables, orderID int64, line domain.ProductLine, items []domain.OrderItem) error {
	for _, item := range items {
		var err error
		if line.UsesVoucher() {
			_, err = tx.ExecContext(ctx, fmt.Sprintf(`
				INSERT INTO %s (
					order_id, model_id, pl_dx, lq_pc, colours, qty, units, box, stc, trims
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			`, tables.details),
				orderID, item.ModelID, item.PlDx, item.LqPc, item.Colours,
				item.Qty, item.Units, item.Box, item.Stc, item.Trims,
			)
		} else {
			_, err = tx.ExecContext(ctx, fmt.Sprintf(`
				INSERT INTO %s (
					order_id, model_id, pl_dx, lq_pc, colours, qty, units
				) VALUES ($1,$2,$3,$4,$5,$6,$7)
			`, tables.details),
				orderID, item.ModelID, item.PlDx, item.LqPc, item.Colours,
				item.Qty, item.Units,
			)
		}
		if err != nil {
			if isForeignKeyViolation(err) {
				return domain.ErrReferenceNotFound
			}
			return fmt.Errorf("insert order detail: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
