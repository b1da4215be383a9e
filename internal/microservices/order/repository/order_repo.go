package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"comanda/internal/config"
	"comanda/internal/connections/database"
	"comanda/internal/domain"
)

// AdmitOrderInput is the already-validated shape the service hands to the
// transaction. Quantities and line counts were range-checked before this
// point; everything stock- and scope-related is checked inside the tx.
type AdmitOrderInput struct {
	BranchID        int64
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
	PaymentMethodID int64
	DeliveryTypeID  int64
	Observations    string
	Lines           []AdmitLine
}

type AdmitLine struct {
	ProductID int64
	Quantity  int
	Note      string
}

type OrderRepositoryInterface interface {
	AdmitOrderTx(ctx context.Context, in AdmitOrderInput) (domain.Order, error)
	TransitionTx(ctx context.Context, actor domain.Actor, orderID int64, to domain.OrderStatus) (domain.Order, domain.OrderStatus, error)
	GetOrder(ctx context.Context, id int64) (domain.Order, error)
}

type OrderRepository struct {
	db  *database.Conn
	cfg config.Admission
}

func NewOrderRepository(db *database.Conn, cfg config.Admission) OrderRepositoryInterface {
	return &OrderRepository{db: db, cfg: cfg}
}

// AdmitOrderTx runs the whole admission as one atomic unit, retried a
// bounded number of times on write conflicts. It either admits the complete
// order (stock reserved, prices snapshotted, total computed, rows durable)
// or changes nothing.
func (r *OrderRepository) AdmitOrderTx(ctx context.Context, in AdmitOrderInput) (domain.Order, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
			case <-ctx.Done():
				return domain.Order{}, ctx.Err()
			}
		}
		order, err := r.admitOnce(ctx, in)
		if err == nil {
			return order, nil
		}
		if !retryable(err) {
			return domain.Order{}, asTimeout(err)
		}
		lastErr = err
	}
	return domain.Order{}, fmt.Errorf("%w: %v", domain.ErrConflict, lastErr)
}

func (r *OrderRepository) admitOnce(ctx context.Context, in AdmitOrderInput) (domain.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// bound how long we sit on somebody else's product locks
	if _, err := tx.Exec(ctx,
		fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.cfg.LockTimeoutMS)); err != nil {
		return domain.Order{}, err
	}

	// 1) branch must exist and be active
	var (
		businessID  int64
		feeText     string
		branchAlive bool
	)
	err = tx.QueryRow(ctx, `
		SELECT business_id, delivery_fee::text, active FROM branches WHERE id = $1
	`, in.BranchID).Scan(&businessID, &feeText, &branchAlive)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.Invalid("branch_id", "unknown branch")
	}
	if err != nil {
		return domain.Order{}, err
	}
	if !branchAlive {
		return domain.Order{}, domain.Invalid("branch_id", "branch is not accepting orders")
	}
	deliveryFee, err := decimal.NewFromString(feeText)
	if err != nil {
		return domain.Order{}, fmt.Errorf("parse delivery fee: %w", err)
	}

	// 2) payment method and delivery type must be active for this branch
	var pmActive bool
	err = tx.QueryRow(ctx, `
		SELECT pm.active FROM payment_methods pm
		JOIN branch_payment_methods bpm ON bpm.payment_method_id = pm.id
		WHERE pm.id = $1 AND bpm.branch_id = $2
	`, in.PaymentMethodID, in.BranchID).Scan(&pmActive)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !pmActive) {
		return domain.Order{}, domain.Invalid("payment_method_id", "not available for this branch")
	}
	if err != nil {
		return domain.Order{}, err
	}

	var dtActive, requiresAddress bool
	err = tx.QueryRow(ctx, `
		SELECT dt.active, dt.requires_address FROM delivery_types dt
		JOIN branch_delivery_types bdt ON bdt.delivery_type_id = dt.id
		WHERE dt.id = $1 AND bdt.branch_id = $2
	`, in.DeliveryTypeID, in.BranchID).Scan(&dtActive, &requiresAddress)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !dtActive) {
		return domain.Order{}, domain.Invalid("delivery_type_id", "not available for this branch")
	}
	if err != nil {
		return domain.Order{}, err
	}
	if requiresAddress && in.CustomerAddress == "" {
		return domain.Order{}, domain.Invalid("customer.address", "required for delivery")
	}

	// 3) lock referenced products in id order (стабильный порядок — без
	// взаимных дедлоков между конкурирующими заказами)
	ids := make([]int64, 0, len(in.Lines))
	want := make(map[int64]AdmitLine, len(in.Lines))
	for _, l := range in.Lines {
		ids = append(ids, l.ProductID)
		want[l.ProductID] = l
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows, err := tx.Query(ctx, `
		SELECT id, price::text, stock, branch_id, active
		FROM products WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return domain.Order{}, err
	}

	type lockedProduct struct {
		price decimal.Decimal
		stock int
	}
	locked := make(map[int64]lockedProduct, len(ids))
	for rows.Next() {
		var (
			id        int64
			priceText string
			stock     int
			branchID  int64
			active    bool
		)
		if err := rows.Scan(&id, &priceText, &stock, &branchID, &active); err != nil {
			rows.Close()
			return domain.Order{}, err
		}
		if branchID != in.BranchID || !active {
			rows.Close()
			return domain.Order{}, domain.Invalid("lines.product_id",
				fmt.Sprintf("product %d is not sold by this branch", id))
		}
		price, err := decimal.NewFromString(priceText)
		if err != nil {
			rows.Close()
			return domain.Order{}, fmt.Errorf("parse price of product %d: %w", id, err)
		}
		locked[id] = lockedProduct{price: price, stock: stock}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.Order{}, err
	}

	// 4) verify stock per line; any shortage aborts the whole order
	lines := make([]domain.OrderLine, 0, len(ids))
	for _, id := range ids {
		p, ok := locked[id]
		if !ok {
			return domain.Order{}, domain.Invalid("lines.product_id",
				fmt.Sprintf("product %d does not exist", id))
		}
		l := want[id]
		if p.stock < l.Quantity {
			return domain.Order{}, &domain.InsufficientStockError{
				ProductID: id, Requested: l.Quantity, Available: p.stock,
			}
		}
		lines = append(lines, domain.OrderLine{
			ProductID: id,
			Quantity:  l.Quantity,
			UnitPrice: p.price, // snapshot: price changes later never touch this order
			Note:      l.Note,
		})
	}

	// 5) reserve stock
	for _, l := range lines {
		if _, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock - $2 WHERE id = $1
		`, l.ProductID, l.Quantity); err != nil {
			return domain.Order{}, err
		}
	}

	total := domain.OrderTotal(lines, deliveryFee, requiresAddress)

	// 6) persist order + lines + initial status log entry
	order := domain.Order{
		BranchID:        in.BranchID,
		CustomerName:    in.CustomerName,
		CustomerPhone:   in.CustomerPhone,
		CustomerAddress: in.CustomerAddress,
		PaymentMethodID: in.PaymentMethodID,
		DeliveryTypeID:  in.DeliveryTypeID,
		Observations:    in.Observations,
		Total:           total,
		Status:          domain.StatusPending,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders
			(branch_id, customer_name, customer_phone, customer_address,
			 payment_method_id, delivery_type_id, observations, total, status,
			 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8::numeric,$9,now(),now())
		RETURNING id, created_at
	`, order.BranchID, order.CustomerName, order.CustomerPhone, order.CustomerAddress,
		order.PaymentMethodID, order.DeliveryTypeID, order.Observations,
		order.Total.String(), string(order.Status),
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return domain.Order{}, err
	}

	order.Number = fmt.Sprintf("ORD_%s_%06d", order.CreatedAt.UTC().Format("20060102"), order.ID)
	if _, err := tx.Exec(ctx, `UPDATE orders SET number = $2 WHERE id = $1`, order.ID, order.Number); err != nil {
		return domain.Order{}, err
	}

	for i := range lines {
		lines[i].OrderID = order.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO order_lines (order_id, product_id, quantity, unit_price, note)
			VALUES ($1,$2,$3,$4::numeric,$5)
			RETURNING id
		`, order.ID, lines[i].ProductID, lines[i].Quantity,
			lines[i].UnitPrice.String(), lines[i].Note,
		).Scan(&lines[i].ID)
		if err != nil {
			return domain.Order{}, err
		}
	}
	order.Lines = lines

	if _, err := tx.Exec(ctx, `
		INSERT INTO order_status_log (order_id, status, changed_by, changed_at)
		VALUES ($1, $2, 'order-service', now())
	`, order.ID, string(order.Status)); err != nil {
		return domain.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// TransitionTx locks the order row, checks actor scope and the status
// machine, and appends to the status log. Cancellation goes through the
// same path as every other transition.
func (r *OrderRepository) TransitionTx(ctx context.Context, actor domain.Actor, orderID int64, to domain.OrderStatus) (domain.Order, domain.OrderStatus, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Order{}, "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		from       string
		branchID   int64
		businessID int64
	)
	err = tx.QueryRow(ctx, `
		SELECT o.status, o.branch_id, b.business_id
		FROM orders o
		JOIN branches b ON b.id = o.branch_id
		WHERE o.id = $1
		FOR UPDATE OF o
	`, orderID).Scan(&from, &branchID, &businessID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, "", domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, "", err
	}

	if !actor.CanManageOrder(branchID, businessID) {
		return domain.Order{}, "", domain.ErrForbidden
	}

	old := domain.OrderStatus(from)
	if !domain.CanTransition(old, to) {
		return domain.Order{}, "", &domain.InvalidTransitionError{From: old, To: to}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now() WHERE id = $1
	`, orderID, string(to)); err != nil {
		return domain.Order{}, "", err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO order_status_log (order_id, status, changed_by, changed_at)
		VALUES ($1, $2, $3, now())
	`, orderID, string(to), changedBy(actor)); err != nil {
		return domain.Order{}, "", err
	}

	order, err := fetchOrder(ctx, tx, orderID)
	if err != nil {
		return domain.Order{}, "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, "", err
	}
	return order, old, nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	return fetchOrder(ctx, r.db, id)
}

func changedBy(a domain.Actor) string {
	if a.Role == domain.RoleStaff {
		return fmt.Sprintf("staff:branch-%d", a.BranchID)
	}
	return fmt.Sprintf("owner:business-%d", a.BusinessID)
}

// querier is satisfied by both pgx.Tx and *pgxpool.Pool.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func fetchOrder(ctx context.Context, q querier, id int64) (domain.Order, error) {
	var o domain.Order
	var totalText, status string
	err := q.QueryRow(ctx, `
		SELECT id, number, branch_id, customer_name, customer_phone,
		       customer_address, payment_method_id, delivery_type_id,
		       observations, total::text, status, created_at
		FROM orders WHERE id = $1
	`, id).Scan(&o.ID, &o.Number, &o.BranchID, &o.CustomerName, &o.CustomerPhone,
		&o.CustomerAddress, &o.PaymentMethodID, &o.DeliveryTypeID,
		&o.Observations, &totalText, &status, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	if o.Total, err = decimal.NewFromString(totalText); err != nil {
		return domain.Order{}, fmt.Errorf("parse total of order %d: %w", id, err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, product_id, quantity, unit_price::text, note
		FROM order_lines WHERE order_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return domain.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l domain.OrderLine
		var priceText string
		if err := rows.Scan(&l.ID, &l.ProductID, &l.Quantity, &priceText, &l.Note); err != nil {
			return domain.Order{}, err
		}
		if l.UnitPrice, err = decimal.NewFromString(priceText); err != nil {
			return domain.Order{}, fmt.Errorf("parse unit price of line %d: %w", l.ID, err)
		}
		l.OrderID = id
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}

// retryable: serialization failure and deadlock are worth another attempt;
// lock_timeout is surfaced as Timeout for the caller to decide.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01":
		return true
	}
	return false
}

// asTimeout rewrites a lock_timeout SQLSTATE into the domain error so the
// HTTP layer can tell the caller "retry later" instead of a generic 500.
func asTimeout(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "55P03" {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return err
}
