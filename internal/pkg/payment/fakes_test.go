package payment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/paykit/app/models"
	"github.com/ManuelReschke/paykit/internal/pkg/credentials"
	"github.com/ManuelReschke/paykit/internal/pkg/events"
	"github.com/ManuelReschke/paykit/internal/pkg/razorpay"
	"github.com/ManuelReschke/paykit/internal/pkg/whatsapp"
)

const (
	testTenant      = "3d1f0c7a-8e6b-4f2a-9c1d-5b7e2a9f0c11"
	otherTenant     = "9a2b3c4d-1e2f-4a5b-8c6d-7e8f9a0b1c2d"
	testKeyID       = "rzp_test_key"
	testKeySecret   = "key-secret"
	testHookSecret  = "webhook-secret"
	testMsgToken    = "msg-token"
	testMsgSenderID = "1098765432"
)

// memOrderStore serializes Update calls the way a row lock does.
type memOrderStore struct {
	mu      sync.Mutex
	orders  map[string]models.Order
	updates   int
	saves     int
	updateErr error
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: map[string]models.Order{}}
}

func (m *memOrderStore) Create(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	m.orders[order.ID] = *order
	return nil
}

func (m *memOrderStore) put(order models.Order) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	m.orders[order.ID] = order
	return &order
}

func (m *memOrderStore) get(id string) models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

func (m *memOrderStore) GetByID(_ context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &o, nil
}

func (m *memOrderStore) find(match func(o models.Order) bool) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if match(o) {
			found := o
			return &found, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memOrderStore) GetByGatewayOrderID(_ context.Context, id string) (*models.Order, error) {
	return m.find(func(o models.Order) bool { return o.GatewayOrderID == id })
}

func (m *memOrderStore) GetByGatewayPaymentID(_ context.Context, id string) (*models.Order, error) {
	return m.find(func(o models.Order) bool { return o.GatewayPaymentID == id })
}

func (m *memOrderStore) ListByTenant(_ context.Context, tenantID string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if o.TenantID == tenantID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memOrderStore) Update(_ context.Context, id string, fn func(order *models.Order) (bool, error)) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	current, ok := m.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	working := current
	save, err := fn(&working)
	if err != nil {
		return nil, err
	}
	if !save {
		return &current, nil
	}
	m.saves++
	m.orders[id] = working
	return &working, nil
}

type memLedger struct {
	mu      sync.Mutex
	events  map[string]models.WebhookEvent
	records int
	err     error
}

func newMemLedger() *memLedger {
	return &memLedger{events: map[string]models.WebhookEvent{}}
}

func (l *memLedger) Exists(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	_, ok := l.events[key]
	return ok, nil
}

func (l *memLedger) Record(_ context.Context, event *models.WebhookEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.events[event.EventKey]; ok {
		return nil
	}
	l.records++
	l.events[event.EventKey] = *event
	return nil
}

func (l *memLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

type fakeResolver struct {
	sets map[string]credentials.Set
	err  error
}

func (r *fakeResolver) Resolve(_ context.Context, tenantID string) (credentials.Set, error) {
	if r.err != nil {
		return credentials.Set{}, r.err
	}
	if set, ok := r.sets[tenantID]; ok {
		return set, nil
	}
	return credentials.Set{TenantID: tenantID}, nil
}

type fakeGateway struct {
	mu         sync.Mutex
	created    []razorpay.CreateOrderRequest
	seq        int
	payments   map[string]razorpay.Payment
	refunds    map[string]razorpay.Refund
	listed     map[string][]razorpay.Payment
	refundCall []string
	err        error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		payments: map[string]razorpay.Payment{},
		refunds:  map[string]razorpay.Refund{},
		listed:   map[string][]razorpay.Payment{},
	}
}

func (g *fakeGateway) CreateOrder(_ context.Context, req razorpay.CreateOrderRequest) (*razorpay.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.seq++
	g.created = append(g.created, req)
	return &razorpay.Order{ID: fmt.Sprintf("order_%03d", g.seq), Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}, nil
}

func (g *fakeGateway) FetchPayment(_ context.Context, id string) (*razorpay.Payment, error) {
	if g.err != nil {
		return nil, g.err
	}
	p, ok := g.payments[id]
	if !ok {
		return nil, &razorpay.APIError{StatusCode: 400, Code: "BAD_REQUEST_ERROR", Description: "The id provided does not exist"}
	}
	return &p, nil
}

func (g *fakeGateway) FetchRefund(_ context.Context, id string) (*razorpay.Refund, error) {
	if g.err != nil {
		return nil, g.err
	}
	r, ok := g.refunds[id]
	if !ok {
		return nil, errors.New("refund not found")
	}
	return &r, nil
}

func (g *fakeGateway) ListPaymentsForOrder(_ context.Context, id string) ([]razorpay.Payment, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.listed[id], nil
}

func (g *fakeGateway) Refund(_ context.Context, paymentID string) (*razorpay.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.refundCall = append(g.refundCall, paymentID)
	return &razorpay.Refund{ID: "rfnd_" + paymentID, PaymentID: paymentID, Status: razorpay.RefundStatusPending}, nil
}

type sentText struct {
	To   string
	Body string
}

type fakeMessenger struct {
	mu       sync.Mutex
	texts    []sentText
	requests []whatsapp.PaymentRequest
	err      error
}

func (m *fakeMessenger) SendInteractivePaymentRequest(_ context.Context, req whatsapp.PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.requests = append(m.requests, req)
	return nil
}

func (m *fakeMessenger) SendText(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.texts = append(m.texts, sentText{To: to, Body: body})
	return nil
}

func (m *fakeMessenger) textCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.texts)
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []events.StatusChange
}

func (p *recordingPublisher) PublishStatusChange(_ context.Context, c events.StatusChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return nil
}

type recordingArchive struct {
	mu   sync.Mutex
	keys []string
}

func (a *recordingArchive) Archive(_ context.Context, key string, _ []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	return nil
}

type recordingOutcomes struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *recordingOutcomes) AddWebhookOutcome(_ context.Context, outcome string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[outcome]++
	return nil
}

type testEnv struct {
	svc       *Service
	orders    *memOrderStore
	ledger    *memLedger
	creds     *fakeResolver
	gateway   *fakeGateway
	messenger *fakeMessenger
	events    *recordingPublisher
	archive   *recordingArchive
	outcomes  *recordingOutcomes
	now       time.Time
}

func fullCredentials(tenantID string) credentials.Set {
	return credentials.Set{
		TenantID:             tenantID,
		GatewayKeyID:         testKeyID,
		GatewayKeySecret:     testKeySecret,
		GatewayWebhookSecret: testHookSecret,
		MessagingAccessToken: testMsgToken,
		MessagingSenderID:    testMsgSenderID,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		orders:    newMemOrderStore(),
		ledger:    newMemLedger(),
		creds:     &fakeResolver{sets: map[string]credentials.Set{testTenant: fullCredentials(testTenant)}},
		gateway:   newFakeGateway(),
		messenger: &fakeMessenger{},
		events:    &recordingPublisher{},
		archive:   &recordingArchive{},
		outcomes:  &recordingOutcomes{counts: map[string]int{}},
		now:       time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	env.svc = NewService(Options{
		Orders:        env.orders,
		Ledger:        env.ledger,
		Credentials:   env.creds,
		Gateways:      func(keyID, keySecret string) Gateway { return env.gateway },
		Messengers:    func(token, sender string) Messenger { return env.messenger },
		Events:        env.events,
		Archive:       env.archive,
		Outcomes:      env.outcomes,
		PublicBaseURL: "https://pay.example.com/",
		Now:           func() time.Time { return env.now },
	})
	return env
}

// seedOrder stores an order of testTenant in the given status.
func (e *testEnv) seedOrder(status models.OrderStatus, mutate ...func(o *models.Order)) *models.Order {
	o := models.Order{
		ID:              uuid.NewString(),
		TenantID:        testTenant,
		CustomerName:    "Asha",
		CustomerContact: "919876543210",
		Amount:          50000,
		Currency:        "INR",
		Status:          status,
		CreatedAt:       e.now,
	}
	for _, m := range mutate {
		m(&o)
	}
	return e.orders.put(o)
}
