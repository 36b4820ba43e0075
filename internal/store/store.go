package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/AH96HSQ/Zurtex-Global/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("order not found")

	// ErrIndexClaimed surfaces the allocation race: two creations read the
	// same max index and the second insert trips a uniqueness constraint.
	ErrIndexClaimed = errors.New("derivation index or address already claimed")
)

const orderColumns = `
	id, order_id, email, plan_type, price_usd, price_ltc, expected_litoshi,
	payment_address, address_index, status, tx_hash, confirmations,
	received_litoshi, created_at, expires_at, paid_at, completed_at,
	swept, swept_at, swept_tx_hash, updated_at`

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

// MaxAddressIndex returns the highest allocated derivation index, or -1 when
// no order exists yet. The orders table is the allocation ledger; there is no
// separate counter to drift or reset.
func (s *Store) MaxAddressIndex(ctx context.Context) (int64, error) {
	var idx int64
	err := s.Pool.QueryRow(ctx, `SELECT COALESCE(MAX(address_index), -1) FROM orders`).Scan(&idx)
	return idx, err
}

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO orders (
			order_id, email, plan_type, price_usd, price_ltc, expected_litoshi,
			payment_address, address_index, status, created_at, expires_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		order.OrderID,
		order.Email,
		order.PlanType,
		order.PriceUSD,
		order.PriceLTC,
		order.ExpectedLitoshi,
		order.PaymentAddress,
		order.AddressIndex,
		order.Status,
		order.CreatedAt,
		order.ExpiresAt,
		order.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrIndexClaimed
	}
	return err
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id=$1`, orderID)
	return scanOrder(row)
}

// GetOpenOrderByAddress resolves a webhook or socket event to the one order
// still watching the address.
func (s *Store) GetOpenOrderByAddress(ctx context.Context, address string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE payment_address=$1 AND status IN ('pending','confirming')
	`, address)
	return scanOrder(row)
}

func (s *Store) ListOpenOrders(ctx context.Context, now time.Time) ([]*models.Order, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status IN ('pending','confirming') AND expires_at > $1
		ORDER BY created_at
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *Store) ListByEmail(ctx context.Context, email string, limit int) ([]*models.Order, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE email=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, email, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

// ListSweepable returns completed orders whose funds have not been
// consolidated, oldest derivation index first.
func (s *Store) ListSweepable(ctx context.Context) ([]*models.Order, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status='completed' AND swept=FALSE
		ORDER BY address_index
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (s *Store) CountByStatus(ctx context.Context) (map[models.OrderStatus]int64, error) {
	rows, err := s.Pool.Query(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.OrderStatus]int64)
	for rows.Next() {
		var raw string
		var n int64
		if err := rows.Scan(&raw, &n); err != nil {
			return nil, err
		}
		status, err := models.ParseStatus(raw)
		if err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (s *Store) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET status='expired', updated_at=$1
		WHERE status='pending' AND expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

// ExpireOrder lazily expires one order, guarded so a late observation that
// already moved it forward is never clobbered.
func (s *Store) ExpireOrder(ctx context.Context, orderID string, now time.Time) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET status='expired', updated_at=$2
		WHERE order_id=$1 AND status='pending' AND expires_at < $2
	`, orderID, now)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// RecordObservation writes the observed chain state and a non-terminal status.
// The status guard makes the poll/webhook race harmless: whoever loses simply
// updates zero rows.
func (s *Store) RecordObservation(ctx context.Context, orderID string, status models.OrderStatus, txHash string, confirmations, receivedLitoshi int64, observedAt time.Time) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET status=$2, tx_hash=$3, confirmations=$4, received_litoshi=$5,
			paid_at=COALESCE(paid_at, $6), updated_at=$6
		WHERE order_id=$1 AND status IN ('pending','confirming')
	`, orderID, status, txHash, confirmations, receivedLitoshi, observedAt)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// CompleteOrder is the single gate into the completed state. Exactly one
// caller wins the conditional update; completed_at is written once and the
// winner owns the completion side effects.
func (s *Store) CompleteOrder(ctx context.Context, orderID string, txHash string, confirmations, receivedLitoshi int64, observedAt time.Time) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET status='completed', tx_hash=$2, confirmations=$3, received_litoshi=$4,
			paid_at=COALESCE(paid_at, $5), completed_at=$5, updated_at=$5
		WHERE order_id=$1 AND status IN ('pending','confirming')
	`, orderID, txHash, confirmations, receivedLitoshi, observedAt)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// MarkSwept flips the swept flag for the given orders. A nil txHash records a
// sweep reconstructed from a zero on-chain balance, where the consolidating
// transaction is unknown.
func (s *Store) MarkSwept(ctx context.Context, orderIDs []string, txHash *string, at time.Time) (int64, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET swept=TRUE, swept_at=$2, swept_tx_hash=$3, updated_at=$2
		WHERE order_id=ANY($1) AND swept=FALSE
	`, orderIDs, at, txHash)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var order models.Order
	var rawStatus string
	var txHash, sweptTxHash sql.NullString
	var paidAt, completedAt, sweptAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.OrderID,
		&order.Email,
		&order.PlanType,
		&order.PriceUSD,
		&order.PriceLTC,
		&order.ExpectedLitoshi,
		&order.PaymentAddress,
		&order.AddressIndex,
		&rawStatus,
		&txHash,
		&order.Confirmations,
		&order.ReceivedLitoshi,
		&order.CreatedAt,
		&order.ExpiresAt,
		&paidAt,
		&completedAt,
		&order.Swept,
		&sweptAt,
		&sweptTxHash,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	order.Status, err = models.ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	if txHash.Valid {
		order.TxHash = &txHash.String
	}
	if sweptTxHash.Valid {
		order.SweptTxHash = &sweptTxHash.String
	}
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	if completedAt.Valid {
		order.CompletedAt = &completedAt.Time
	}
	if sweptAt.Valid {
		order.SweptAt = &sweptAt.Time
	}
	return &order, nil
}

func scanOrders(rows pgx.Rows) ([]*models.Order, error) {
	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}
