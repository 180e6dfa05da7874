package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/longle289/TrustAustralia/common/errors"
	"github.com/longle289/TrustAustralia/models"
	"github.com/longle289/TrustAustralia/repository"
	"github.com/longle289/TrustAustralia/sender"
	"github.com/longle289/TrustAustralia/services"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// ---- in-memory order store ----

// memOrders mirrors the conditional updates of the SQL repository under a mutex.
type memOrders struct {
	mu          sync.Mutex
	byID        map[uuid.UUID]*models.Order
	completeErr error
	createErr   error
	attachErr   error
}

func newMemOrders() *memOrders {
	return &memOrders{byID: make(map[uuid.UUID]*models.Order)}
}

func (m *memOrders) put(o *models.Order) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	m.byID[o.ID] = o
	return o
}

func (m *memOrders) get(id uuid.UUID) models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.byID[id]
}

func (m *memOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func (m *memOrders) bySession(sessionID string) *models.Order {
	for _, o := range m.byID {
		if o.SessionID() == sessionID {
			return o
		}
	}
	return nil
}

func isOpen(s models.OrderStatus) bool {
	return s == models.StatusPending || s == models.StatusProcessing
}

func (m *memOrders) Create(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.byID[o.ID]; ok {
		return errors.New("duplicate key value violates unique constraint \"orders_pkey\"")
	}
	if sid := o.SessionID(); sid != "" && m.bySession(sid) != nil {
		return errors.New("duplicate key value violates unique constraint \"idx_orders_stripe_session_id\"")
	}
	if o.Status == "" {
		o.Status = models.StatusPending
	}
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *memOrders) AttachSession(_ context.Context, orderID uuid.UUID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attachErr != nil {
		return m.attachErr
	}
	o, ok := m.byID[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if o.StripeSessionID != nil && *o.StripeSessionID != sessionID {
		return repository.ErrSessionConflict
	}
	sid := sessionID
	o.StripeSessionID = &sid
	return nil
}

func (m *memOrders) FindByID(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) FindBySessionID(_ context.Context, sessionID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.bySession(sessionID)
	if o == nil {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) FindByUserID(_ context.Context, userID uuid.UUID, _, _ int) ([]models.Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.byID {
		if o.UserID != nil && *o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memOrders) FindByIDAndUserID(_ context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[orderID]
	if !ok || o.UserID == nil || *o.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) Complete(_ context.Context, sessionID, paymentID, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return false, m.completeErr
	}
	o := m.bySession(sessionID)
	if o == nil || !isOpen(o.Status) {
		return false, nil
	}
	now := time.Now()
	o.Status = models.StatusCompleted
	o.CompletedAt = &now
	if paymentID != "" {
		o.StripePaymentID = &paymentID
	}
	if email != "" {
		o.Email = email
	}
	return true, nil
}

func (m *memOrders) Fail(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail(m.bySession(sessionID)), nil
}

func (m *memOrders) FailByID(_ context.Context, orderID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail(m.byID[orderID]), nil
}

func (m *memOrders) fail(o *models.Order) bool {
	if o == nil || !isOpen(o.Status) {
		return false
	}
	now := time.Now()
	o.Status = models.StatusFailed
	o.FailedAt = &now
	return true
}

func (m *memOrders) LinkUser(_ context.Context, orderID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[orderID]
	if !ok || o.UserID != nil {
		return false, nil
	}
	o.UserID = &userID
	return true, nil
}

func (m *memOrders) LinkGuestOrders(_ context.Context, email string, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, o := range m.byID {
		if o.UserID == nil && email != "" && strings.EqualFold(o.Email, email) {
			uid := userID
			o.UserID = &uid
			n++
		}
	}
	return n, nil
}

func (m *memOrders) ClaimConfirmation(_ context.Context, orderID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[orderID]
	if !ok || o.ConfirmationSentAt != nil {
		return false, nil
	}
	now := time.Now()
	o.ConfirmationSentAt = &now
	return true, nil
}

func (m *memOrders) ReleaseConfirmation(_ context.Context, orderID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.byID[orderID]; ok {
		o.ConfirmationSentAt = nil
	}
	return nil
}

func (m *memOrders) MarkPDFGenerated(_ context.Context, orderID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[orderID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.PDFGenerated = true
	return nil
}

// ---- accounts ----

type memUsers map[string]*models.User

func (m memUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if u, ok := m[strings.ToLower(email)]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

// ---- notifier / publisher / metrics ----

type fakeNotifier struct {
	mu     sync.Mutex
	sent   []services.OrderConfirmation
	alerts []services.OrderConfirmation
	err    error
	delay  time.Duration
}

func (n *fakeNotifier) SendOrderConfirmation(_ context.Context, oc services.OrderConfirmation) error {
	time.Sleep(n.delay)
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, oc)
	return nil
}

func (n *fakeNotifier) SendPaidFailedAlert(_ context.Context, oc services.OrderConfirmation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.alerts = append(n.alerts, oc)
	return nil
}

func (n *fakeNotifier) alertCalls() []services.OrderConfirmation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]services.OrderConfirmation(nil), n.alerts...)
}

func (n *fakeNotifier) calls() []services.OrderConfirmation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]services.OrderConfirmation(nil), n.sent...)
}

func (n *fakeNotifier) setErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.OrderEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, e models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *fakePublisher) published() []models.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.OrderEvent(nil), p.events...)
}

type fakeMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{counts: make(map[string]int)}
}

func (m *fakeMetrics) RecordCount(_ context.Context, name string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name]++
	return nil
}

func (m *fakeMetrics) RecordLatency(context.Context, string, time.Duration, map[string]string) error {
	return nil
}

func (m *fakeMetrics) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

// ---- payment gateway ----

type keyedSession struct {
	input   services.CheckoutSessionInput
	session *stripe.CheckoutSession
}

// fakeGateway replays sessions by idempotency key and rejects a key reused
// with different parameters, as Stripe does.
type fakeGateway struct {
	mu        sync.Mutex
	sessions  map[string]*stripe.CheckoutSession
	byKey     map[string]keyedSession
	getErr    error
	createErr error
	inputs    []services.CheckoutSessionInput
	secret    string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sessions: make(map[string]*stripe.CheckoutSession),
		byKey:    make(map[string]keyedSession),
		secret:   "whsec_test",
	}
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, in services.CheckoutSessionInput) (*stripe.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inputs = append(g.inputs, in)
	if g.createErr != nil {
		return nil, g.createErr
	}
	if prev, ok := g.byKey[in.IdempotencyKey]; ok && in.IdempotencyKey != "" {
		if !reflect.DeepEqual(prev.input, in) {
			return nil, errors.New("idempotency_error: Keys for idempotent requests can only be used with the same parameters they were first used with")
		}
		return prev.session, nil
	}
	id := "cs_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	sess := &stripe.CheckoutSession{
		ID:            id,
		URL:           "https://checkout.stripe.com/c/pay/" + id,
		AmountTotal:   in.Amount,
		Currency:      stripe.Currency(in.Currency),
		PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
		Metadata:      services.SessionMetadata(in.ProductKey, in.OrderID, in.UserID, in.FormData, nil),
	}
	g.sessions[id] = sess
	if in.IdempotencyKey != "" {
		g.byKey[in.IdempotencyKey] = keyedSession{input: in, session: sess}
	}
	return sess, nil
}

func (g *fakeGateway) GetCheckoutSession(_ context.Context, id string) (*stripe.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return nil, g.getErr
	}
	sess, ok := g.sessions[id]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrSessionNotFound, errors.New("No such checkout.session"))
	}
	return sess, nil
}

func (g *fakeGateway) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, signature, g.secret)
}

func (g *fakeGateway) WebhookConfigured() bool {
	return g.secret != ""
}

func (g *fakeGateway) calls() []services.CheckoutSessionInput {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]services.CheckoutSessionInput(nil), g.inputs...)
}

// ---- fixtures ----

func discretionaryForm() map[string]interface{} {
	address := map[string]interface{}{"street": "1 George St", "suburb": "Sydney", "state": "NSW", "postcode": "2000"}
	person := func(first, last string) map[string]interface{} {
		return map[string]interface{}{"firstName": first, "lastName": last, "address": address}
	}
	return map[string]interface{}{
		"trustDetails": map[string]interface{}{"trustName": "Smith Family Trust", "establishmentDate": "2026-01-01", "state": "NSW"},
		"settlor": map[string]interface{}{
			"firstName": "Jane", "lastName": "Doe", "address": address, "settlementSum": "10",
		},
		"trustee":       map[string]interface{}{"type": "individual", "individual": person("John", "Smith")},
		"beneficiaries": map[string]interface{}{"primaryBeneficiaries": []interface{}{person("Amy", "Smith")}},
		"appointer":     map[string]interface{}{"type": "individual", "individual": person("John", "Smith")},
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

// pendingOrder stores a PENDING discretionary order bound to sessionID.
func pendingOrder(t *testing.T, orders *memOrders, sessionID string) *models.Order {
	t.Helper()
	o := &models.Order{
		ID:          uuid.New(),
		ProductType: models.ProductDiscretionary,
		ProductName: "Discretionary Trust Deed",
		Amount:      16500,
		Currency:    models.CurrencyAUD,
		FormData:    datatypes.JSON(mustJSON(t, discretionaryForm())),
		Status:      models.StatusPending,
	}
	if sessionID != "" {
		o.StripeSessionID = &sessionID
	}
	return orders.put(o)
}

func paidConfirmation(sessionID string) services.PaymentConfirmation {
	return services.PaymentConfirmation{
		SessionID:       sessionID,
		PaymentIntentID: "pi_" + sessionID,
		PayerEmail:      "buyer@example.com",
		PayerName:       "Jane Doe",
		AmountTotal:     16500,
		Currency:        "aud",
		Source:          services.SourceWebhook,
	}
}

type harness struct {
	orders    *memOrders
	users     memUsers
	notifier  *fakeNotifier
	publisher *fakePublisher
	metrics   *fakeMetrics
	svc       *services.FulfillmentService
}

func newHarness() *harness {
	h := &harness{
		orders:    newMemOrders(),
		users:     memUsers{},
		notifier:  &fakeNotifier{},
		publisher: &fakePublisher{},
		metrics:   newFakeMetrics(),
	}
	h.svc = services.NewFulfillmentService(h.orders, h.users, h.notifier, h.publisher, h.metrics, zap.NewNop())
	return h
}

var _ sender.EmailSender = (*flakySender)(nil)

// flakySender fails the first failures sends.
type flakySender struct {
	mu       sync.Mutex
	failures int
	sent     []sentEmail
}

type sentEmail struct {
	To, Subject, Body string
}

func (s *flakySender) SendEmail(_ context.Context, to, subject, body string) (sender.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return sender.SendResult{}, errors.New("smtp: 451 temporary failure")
	}
	s.sent = append(s.sent, sentEmail{To: to, Subject: subject, Body: body})
	return sender.SendResult{MessageID: "msg-" + to, SentAt: time.Now()}, nil
}

type memNotificationLogs struct {
	mu   sync.Mutex
	logs []models.NotificationLog
}

func (r *memNotificationLogs) SaveLog(_ context.Context, l *models.NotificationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *l)
	return nil
}

func (r *memNotificationLogs) ListForOrder(_ context.Context, orderID uuid.UUID) ([]models.NotificationLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.NotificationLog
	for _, l := range r.logs {
		if l.OrderID != nil && *l.OrderID == orderID {
			out = append(out, l)
		}
	}
	return out, nil
}
