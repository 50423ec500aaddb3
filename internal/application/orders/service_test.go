package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"sagaflow/internal/domain/order"
	"sagaflow/internal/infrastructure/memory"
	"sagaflow/internal/messaging"
)

type published struct {
	topic string
	body  []byte
	opts  messaging.PublishOptions
}

type stubPublisher struct {
	mu        sync.Mutex
	published []published
	err       error
}

func (p *stubPublisher) Publish(_ context.Context, routingKey string, body []byte, opts ...messaging.PublishOption) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	var o messaging.PublishOptions
	for _, opt := range opts {
		opt(&o)
	}
	p.published = append(p.published, published{topic: routingKey, body: body, opts: o})
	return nil
}

func (p *stubPublisher) last(t *testing.T) published {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.published) == 0 {
		t.Fatal("nothing published")
	}
	return p.published[len(p.published)-1]
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func newFixture() (*Service, *memory.OrderRepository, *stubPublisher) {
	repo := memory.NewOrderRepository()
	pub := &stubPublisher{}
	svc := NewService(repo, pub, nil, messaging.Backoff{Delay: time.Second, MaxTries: 5})
	return svc, repo, pub
}

func deliver[T any](t *testing.T, env messaging.Envelope[T]) messaging.Delivery {
	t.Helper()
	body, err := env.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return messaging.Delivery{Body: body}
}

func decodePublished[T any](t *testing.T, p published) messaging.Envelope[T] {
	t.Helper()
	env, err := messaging.Decode[T](p.body)
	if err != nil {
		t.Fatalf("published %s is malformed: %v", p.topic, err)
	}
	return env
}

func triggerEnvelope() messaging.Envelope[messaging.OrderCreate] {
	return messaging.NewEnvelope(messaging.OrderCreate{
		CustomerID: "cust-1",
		Customer: order.Customer{
			Name:    "Ada",
			Email:   "ada@example.com",
			Address: order.Address{Billing: "1 Main St", Delivery: "2 Oak Ave"},
		},
		Items:         []order.Item{{ItemID: 1, ItemName: "widget", UnitPrice: 10, Quantity: 2}},
		TotalAmount:   20,
		PaymentMethod: "credit-card",
	})
}

func createOrder(t *testing.T, svc *Service, repo *memory.OrderRepository, pub *stubPublisher) *order.Order {
	t.Helper()
	if err := svc.HandleOrderCreate(context.Background(), deliver(t, triggerEnvelope())); err != nil {
		t.Fatalf("create: %v", err)
	}
	cmd := decodePublished[messaging.PaymentCreate](t, pub.last(t))
	o, err := repo.FindByID(context.Background(), cmd.Data.OrderID)
	if err != nil {
		t.Fatalf("created order not stored: %v", err)
	}
	return o
}

func TestHappyPathEndsReady(t *testing.T) {
	svc, repo, pub := newFixture()
	ctx := context.Background()

	o := createOrder(t, svc, repo, pub)
	if o.Status != order.StatusPending {
		t.Fatalf("after create: %q", o.Status)
	}

	payCreate := decodePublished[messaging.PaymentCreate](t, pub.last(t))
	if payCreate.Data.Amount != 20 || payCreate.Data.BillingAddress != "1 Main St" {
		t.Errorf("payment.create payload: %+v", payCreate.Data)
	}

	err := svc.HandlePaymentCreateResult(ctx, deliver(t,
		messaging.Respond(payCreate, messaging.PaymentResult{OrderID: o.ID, Success: true, PaymentID: 42})))
	if err != nil {
		t.Fatalf("payment create result: %v", err)
	}
	payConfirm := decodePublished[messaging.PaymentConfirm](t, pub.last(t))
	if payConfirm.Data.PaymentID != 42 {
		t.Errorf("payment.confirm paymentId = %d", payConfirm.Data.PaymentID)
	}
	if payConfirm.EventID == payCreate.EventID {
		t.Error("confirm command reused the create unit's eventId")
	}

	err = svc.HandlePaymentConfirmResult(ctx, deliver(t,
		messaging.Respond(payConfirm, messaging.PaymentResult{OrderID: o.ID, Success: true, PaymentID: 42})))
	if err != nil {
		t.Fatalf("payment confirm result: %v", err)
	}
	stockCreate := decodePublished[messaging.StockCreate](t, pub.last(t))
	if len(stockCreate.Data.Items) != 1 {
		t.Errorf("stock.create items: %+v", stockCreate.Data.Items)
	}

	err = svc.HandleStockCreateResult(ctx, deliver(t,
		messaging.Respond(stockCreate, messaging.StockResult{OrderID: o.ID, Success: true, ReservationID: 7})))
	if err != nil {
		t.Fatalf("stock create result: %v", err)
	}
	stockConfirm := decodePublished[messaging.StockConfirm](t, pub.last(t))
	if stockConfirm.Data.ReservationID != 7 {
		t.Errorf("stock.confirm reservationId = %d", stockConfirm.Data.ReservationID)
	}

	err = svc.HandleStockConfirmResult(ctx, deliver(t,
		messaging.Respond(stockConfirm, messaging.StockResult{OrderID: o.ID, Success: true, ReservationID: 7})))
	if err != nil {
		t.Fatalf("stock confirm result: %v", err)
	}

	final, err := repo.FindByID(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != order.StatusReady {
		t.Errorf("final status = %q, want ready", final.Status)
	}
	wantHistory := []order.Status{
		order.StatusPending,
		order.StatusPendingPayment,
		order.StatusPendingStock,
		order.StatusPendingStock,
		order.StatusReady,
	}
	if len(final.StatusHistory) != len(wantHistory) {
		t.Fatalf("history length = %d, want %d", len(final.StatusHistory), len(wantHistory))
	}
	for i, want := range wantHistory {
		if final.StatusHistory[i].Status != want {
			t.Errorf("history[%d] = %q, want %q", i, final.StatusHistory[i].Status, want)
		}
	}
}

func TestDuplicateResultIsSkipped(t *testing.T) {
	svc, repo, pub := newFixture()
	ctx := context.Background()

	o := createOrder(t, svc, repo, pub)
	payCreate := decodePublished[messaging.PaymentCreate](t, pub.last(t))
	result := deliver(t, messaging.Respond(payCreate,
		messaging.PaymentResult{OrderID: o.ID, Success: true, PaymentID: 42}))

	if err := svc.HandlePaymentCreateResult(ctx, result); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	before := pub.count()

	// redelivery of the same result must be acknowledged without effects
	if err := svc.HandlePaymentCreateResult(ctx, result); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if pub.count() != before {
		t.Error("redelivery published a new command")
	}
	got, _ := repo.FindByID(ctx, o.ID)
	if len(got.StatusHistory) != 2 {
		t.Errorf("history length = %d, want 2", len(got.StatusHistory))
	}
}

func TestDuplicateTriggerCreatesOneOrder(t *testing.T) {
	svc, repo, pub := newFixture()
	ctx := context.Background()

	trigger := triggerEnvelope()
	if err := svc.HandleOrderCreate(ctx, deliver(t, trigger)); err != nil {
		t.Fatal(err)
	}
	before := pub.count()
	if err := svc.HandleOrderCreate(ctx, deliver(t, trigger)); err != nil {
		t.Fatal(err)
	}
	if pub.count() != before {
		t.Error("redelivered trigger published another payment.create")
	}
	counts, _ := repo.CountByStatus(ctx)
	if counts[order.StatusPending] != 1 {
		t.Errorf("pending orders = %d, want 1", counts[order.StatusPending])
	}
}

func TestPaymentRejectionCancels(t *testing.T) {
	svc, repo, pub := newFixture()
	ctx := context.Background()

	o := createOrder(t, svc, repo, pub)
	payCreate := decodePublished[messaging.PaymentCreate](t, pub.last(t))

	err := svc.HandlePaymentCreateResult(ctx, deliver(t,
		messaging.Respond(payCreate, messaging.PaymentResult{OrderID: o.ID, Message: "card declined"})))
	if err != nil {
		t.Fatal(err)
	}
	got, _ := repo.FindByID(ctx, o.ID)
	if got.Status != order.StatusCanceled {
		t.Fatalf("status = %q, want canceled", got.Status)
	}
	last := got.StatusHistory[len(got.StatusHistory)-1]
	if last.Reason == "" {
		t.Error("cancellation reason not recorded")
	}
}

func TestFailedConfirmSchedulesRetry(t *testing.T) {
	svc, repo, pub := newFixture()
	ctx := context.Background()

	o := createOrder(t, svc, repo, pub)
	payCreate := decodePublished[messaging.PaymentCreate](t, pub.last(t))
	if err := svc.HandlePaymentCreateResult(ctx, deliver(t,
		messaging.Respond(payCreate, messaging.PaymentResult{OrderID: o.ID, Success: true, PaymentID: 42}))); err != nil {
		t.Fatal(err)
	}
	payConfirm := decodePublished[messaging.PaymentConfirm](t, pub.last(t))

	failed := messaging.Respond(payConfirm, messaging.PaymentResult{OrderID: o.ID, Message: "gateway timeout"})
	if err := svc.HandlePaymentConfirmResult(ctx, deliver(t, failed)); err != nil {
		t.Fatal(err)
	}

	retry := pub.last(t)
	if retry.topic != messaging.TopicPaymentConfirm {
		t.Fatalf("retry topic = %q", retry.topic)
	}
	env := decodePublished[messaging.PaymentConfirm](t, retry)
	if env.EventID != payConfirm.EventID {
		t.Error("retry minted a new eventId")
	}
	if env.CurrentTry != payConfirm.CurrentTry+1 {
		t.Errorf("retry currentTry = %d, want %d", env.CurrentTry, payConfirm.CurrentTry+1)
	}
	if want := env.RetryDelay(); retry.opts.Delay != want {
		t.Errorf("retry delay = %v, want %v", retry.opts.Delay, want)
	}

	// a failed retry does not touch the stored order
	got, _ := repo.FindByID(ctx, o.ID)
	if got.Status != order.StatusPendingPayment {
		t.Errorf("status = %q, want pending-payment", got.Status)
	}
}

func TestExhaustedRetriesCancel(t *testing.T) {
	svc, repo, pub := newFixture()
	ctx := context.Background()

	o := createOrder(t, svc, repo, pub)
	payCreate := decodePublished[messaging.PaymentCreate](t, pub.last(t))
	if err := svc.HandlePaymentCreateResult(ctx, deliver(t,
		messaging.Respond(payCreate, messaging.PaymentResult{OrderID: o.ID, Success: true, PaymentID: 42}))); err != nil {
		t.Fatal(err)
	}
	payConfirm := decodePublished[messaging.PaymentConfirm](t, pub.last(t))

	// the result of the attempt past maxTries
	failed := messaging.Respond(payConfirm, messaging.PaymentResult{OrderID: o.ID, Message: "still down"})
	failed.CurrentTry = 6
	before := pub.count()
	if err := svc.HandlePaymentConfirmResult(ctx, deliver(t, failed)); err != nil {
		t.Fatal(err)
	}

	got, _ := repo.FindByID(ctx, o.ID)
	if got.Status != order.StatusCanceled {
		t.Errorf("status = %q, want canceled", got.Status)
	}
	if pub.count() != before {
		t.Error("exhausted result still re-emitted a retry")
	}
}

func TestLateResultAfterTerminalIsDropped(t *testing.T) {
	svc, repo, pub := newFixture()
	ctx := context.Background()

	o := createOrder(t, svc, repo, pub)
	payCreate := decodePublished[messaging.PaymentCreate](t, pub.last(t))
	if err := svc.HandlePaymentCreateResult(ctx, deliver(t,
		messaging.Respond(payCreate, messaging.PaymentResult{OrderID: o.ID, Message: "declined"}))); err != nil {
		t.Fatal(err)
	}
	// order is canceled; a late success for a different unit must be dropped
	before := pub.count()
	late := messaging.NewEnvelope(messaging.PaymentResult{OrderID: o.ID, Success: true, PaymentID: 42})
	if err := svc.HandlePaymentCreateResult(ctx, deliver(t, late)); err != nil {
		t.Fatal(err)
	}
	got, _ := repo.FindByID(ctx, o.ID)
	if got.Status != order.StatusCanceled {
		t.Errorf("status = %q, want canceled", got.Status)
	}
	if pub.count() != before {
		t.Error("late result published a command")
	}
}

func TestResultForUnknownOrderIsAcknowledged(t *testing.T) {
	svc, _, _ := newFixture()
	env := messaging.NewEnvelope(messaging.PaymentResult{OrderID: "o-ghost", Success: true, PaymentID: 1})
	if err := svc.HandlePaymentCreateResult(context.Background(), deliver(t, env)); err != nil {
		t.Errorf("unknown order result = %v, want nil", err)
	}
}

func TestStockConfirmFailureRetriesThenCancels(t *testing.T) {
	svc, repo, pub := newFixture()
	ctx := context.Background()

	o := createOrder(t, svc, repo, pub)
	payCreate := decodePublished[messaging.PaymentCreate](t, pub.last(t))
	if err := svc.HandlePaymentCreateResult(ctx, deliver(t,
		messaging.Respond(payCreate, messaging.PaymentResult{OrderID: o.ID, Success: true, PaymentID: 42}))); err != nil {
		t.Fatal(err)
	}
	payConfirm := decodePublished[messaging.PaymentConfirm](t, pub.last(t))
	if err := svc.HandlePaymentConfirmResult(ctx, deliver(t,
		messaging.Respond(payConfirm, messaging.PaymentResult{OrderID: o.ID, Success: true, PaymentID: 42}))); err != nil {
		t.Fatal(err)
	}
	stockCreate := decodePublished[messaging.StockCreate](t, pub.last(t))
	if err := svc.HandleStockCreateResult(ctx, deliver(t,
		messaging.Respond(stockCreate, messaging.StockResult{OrderID: o.ID, Success: true, ReservationID: 7}))); err != nil {
		t.Fatal(err)
	}
	stockConfirm := decodePublished[messaging.StockConfirm](t, pub.last(t))

	failed := messaging.Respond(stockConfirm, messaging.StockResult{OrderID: o.ID, Message: "warehouse offline"})
	if err := svc.HandleStockConfirmResult(ctx, deliver(t, failed)); err != nil {
		t.Fatal(err)
	}
	retry := decodePublished[messaging.StockConfirm](t, pub.last(t))
	if retry.CurrentTry != 1 || retry.EventID != stockConfirm.EventID {
		t.Errorf("retry = try %d event %q", retry.CurrentTry, retry.EventID)
	}

	exhausted := messaging.Respond(stockConfirm, messaging.StockResult{OrderID: o.ID, Message: "warehouse offline"})
	exhausted.CurrentTry = 6
	if err := svc.HandleStockConfirmResult(ctx, deliver(t, exhausted)); err != nil {
		t.Fatal(err)
	}
	got, _ := repo.FindByID(ctx, o.ID)
	if got.Status != order.StatusCanceled {
		t.Errorf("status = %q, want canceled", got.Status)
	}
}
