package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comanda/internal/domain"
	"comanda/internal/logger"
	"comanda/internal/microservices/order/repository"
)

// fakeStore implements the admission contract in memory: same locking
// promise (no two admissions oversell), same error taxonomy, no SQL.
type fakeStore struct {
	mu sync.Mutex

	deliveryFee     decimal.Decimal
	requiresAddress map[int64]bool // deliveryTypeID -> flag
	stock           map[int64]int
	price           map[int64]decimal.Decimal

	orders map[int64]domain.Order
	nextID int64

	admitCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		deliveryFee:     decimal.RequireFromString("2.00"),
		requiresAddress: map[int64]bool{1: false, 2: true},
		stock:           map[int64]int{},
		price:           map[int64]decimal.Decimal{},
		orders:          map[int64]domain.Order{},
	}
}

func (f *fakeStore) AdmitOrderTx(ctx context.Context, in repository.AdmitOrderInput) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admitCalls++

	isDelivery := f.requiresAddress[in.DeliveryTypeID]
	if isDelivery && in.CustomerAddress == "" {
		return domain.Order{}, domain.Invalid("customer.address", "required for delivery")
	}

	var lines []domain.OrderLine
	for _, l := range in.Lines {
		if f.stock[l.ProductID] < l.Quantity {
			return domain.Order{}, &domain.InsufficientStockError{
				ProductID: l.ProductID, Requested: l.Quantity, Available: f.stock[l.ProductID],
			}
		}
		lines = append(lines, domain.OrderLine{
			ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: f.price[l.ProductID], Note: l.Note,
		})
	}
	for _, l := range lines {
		f.stock[l.ProductID] -= l.Quantity
	}

	f.nextID++
	o := domain.Order{
		ID:       f.nextID,
		Number:   fmt.Sprintf("ORD_TEST_%06d", f.nextID),
		BranchID: in.BranchID,
		Status:   domain.StatusPending,
		Total:    domain.OrderTotal(lines, f.deliveryFee, isDelivery),
		Lines:    lines,
	}
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeStore) TransitionTx(ctx context.Context, actor domain.Actor, orderID int64, to domain.OrderStatus) (domain.Order, domain.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, "", domain.ErrNotFound
	}
	if !actor.CanManageOrder(o.BranchID, 1) {
		return domain.Order{}, "", domain.ErrForbidden
	}
	from := o.Status
	if !domain.CanTransition(from, to) {
		return domain.Order{}, "", &domain.InvalidTransitionError{From: from, To: to}
	}
	o.Status = to
	f.orders[orderID] = o
	return o, from, nil
}

func (f *fakeStore) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

type publishedEvent struct {
	kind string
	from domain.OrderStatus
	to   domain.OrderStatus
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) OrderCreated(ctx context.Context, order domain.Order) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{kind: domain.EventOrderCreated})
}

func (p *fakePublisher) StatusChanged(ctx context.Context, order domain.Order, from, to domain.OrderStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{kind: domain.EventStatusChanged, from: from, to: to})
}

func validInput() repository.AdmitOrderInput {
	return repository.AdmitOrderInput{
		BranchID:        1,
		CustomerName:    "Aruzhan",
		CustomerPhone:   "+77010000000",
		CustomerAddress: "Abay ave 1",
		PaymentMethodID: 1,
		DeliveryTypeID:  2, // delivery
		Lines:           []repository.AdmitLine{{ProductID: 10, Quantity: 2}},
	}
}

func TestAdmitOrder_Validation(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	svc := NewOrderService(store, pub, logger.Nop())

	cases := []struct {
		name   string
		mutate func(*repository.AdmitOrderInput)
	}{
		{"missing name", func(in *repository.AdmitOrderInput) { in.CustomerName = "" }},
		{"missing phone", func(in *repository.AdmitOrderInput) { in.CustomerPhone = "" }},
		{"no lines", func(in *repository.AdmitOrderInput) { in.Lines = nil }},
		{"zero quantity", func(in *repository.AdmitOrderInput) { in.Lines[0].Quantity = 0 }},
		{"quantity over 100", func(in *repository.AdmitOrderInput) { in.Lines[0].Quantity = 101 }},
		{"duplicate product", func(in *repository.AdmitOrderInput) {
			in.Lines = append(in.Lines, repository.AdmitLine{ProductID: 10, Quantity: 1})
		}},
		{"too many lines", func(in *repository.AdmitOrderInput) {
			in.Lines = nil
			for i := 0; i < 51; i++ {
				in.Lines = append(in.Lines, repository.AdmitLine{ProductID: int64(i + 1), Quantity: 1})
			}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := svc.AdmitOrder(context.Background(), in)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}
	assert.Zero(t, store.admitCalls, "validation failures must never reach the store")
	assert.Empty(t, pub.events)
}

func TestAdmitOrder_DeliveryScenario(t *testing.T) {
	store := newFakeStore()
	store.stock[10] = 5
	store.price[10] = decimal.RequireFromString("10.00")
	pub := &fakePublisher{}
	svc := NewOrderService(store, pub, logger.Nop())

	order, err := svc.AdmitOrder(context.Background(), validInput())
	require.NoError(t, err)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("22.00")), "2x10.00 + 2.00 fee, got %s", order.Total)
	assert.Equal(t, 3, store.stock[10])
	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.EventOrderCreated, pub.events[0].kind)

	// second concurrent-ish order wants 4, only 3 left: whole order rejected
	in := validInput()
	in.Lines[0].Quantity = 4
	_, err = svc.AdmitOrder(context.Background(), in)
	var ise *domain.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.EqualValues(t, 10, ise.ProductID)
	assert.Equal(t, 3, store.stock[10], "failed admission must not touch stock")
	assert.Len(t, pub.events, 1, "no event for a rejected order")
}

func TestAdmitOrder_ConcurrentNeverOversells(t *testing.T) {
	store := newFakeStore()
	const initialStock = 5
	store.stock[10] = initialStock
	store.price[10] = decimal.RequireFromString("10.00")
	svc := NewOrderService(store, &fakePublisher{}, logger.Nop())

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := validInput()
			in.Lines[0].Quantity = 1
			_, err := svc.AdmitOrder(context.Background(), in)
			if err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
				return
			}
			var ise *domain.InsufficientStockError
			assert.ErrorAs(t, err, &ise, "only stock shortage is acceptable here")
		}()
	}
	wg.Wait()

	assert.Equal(t, initialStock, admitted, "admitted quantities must sum to the initial stock")
	assert.Zero(t, store.stock[10])
}

func TestTransition(t *testing.T) {
	store := newFakeStore()
	store.stock[10] = 5
	store.price[10] = decimal.RequireFromString("10.00")
	pub := &fakePublisher{}
	svc := NewOrderService(store, pub, logger.Nop())

	order, err := svc.AdmitOrder(context.Background(), validInput())
	require.NoError(t, err)
	staff := domain.Actor{BusinessID: 1, Role: domain.RoleStaff, BranchID: order.BranchID}

	t.Run("unknown status is a validation error", func(t *testing.T) {
		_, err := svc.Transition(context.Background(), staff, order.ID, domain.OrderStatus("cooking"))
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("legal transition publishes", func(t *testing.T) {
		got, err := svc.Transition(context.Background(), staff, order.ID, domain.StatusInPreparation)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusInPreparation, got.Status)
		last := pub.events[len(pub.events)-1]
		assert.Equal(t, domain.EventStatusChanged, last.kind)
		assert.Equal(t, domain.StatusPending, last.from)
		assert.Equal(t, domain.StatusInPreparation, last.to)
	})

	t.Run("illegal transition is rejected", func(t *testing.T) {
		before := len(pub.events)
		_, err := svc.Transition(context.Background(), staff, order.ID, domain.StatusDelivered)
		var ite *domain.InvalidTransitionError
		require.ErrorAs(t, err, &ite)
		assert.Len(t, pub.events, before, "rejected transition must not publish")
	})

	t.Run("foreign staff is forbidden", func(t *testing.T) {
		outsider := domain.Actor{BusinessID: 1, Role: domain.RoleStaff, BranchID: order.BranchID + 1}
		_, err := svc.Transition(context.Background(), outsider, order.ID, domain.StatusReady)
		require.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := svc.Transition(context.Background(), staff, 9999, domain.StatusReady)
		require.True(t, errors.Is(err, domain.ErrNotFound))
	})
}
