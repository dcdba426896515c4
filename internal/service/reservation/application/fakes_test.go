package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
)

// fakeLedger 是 port.HoldLedger 的内存实现，语义对齐 Redis 适配器：
// TryPlaceHold 无条件递减，负值表示售罄。
type fakeLedger struct {
	mu      sync.Mutex
	counts  map[string]int64
	markers map[string]bool            // HoldKey -> 存在
	carts   map[string]map[string]bool // userID -> 条目集合

	failMarker bool
	failCart   bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		counts:  make(map[string]int64),
		markers: make(map[string]bool),
		carts:   make(map[string]map[string]bool),
	}
}

func (l *fakeLedger) TryPlaceHold(_ context.Context, productID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[productID]--
	return l.counts[productID], nil
}

func (l *fakeLedger) PlaceHoldMarker(_ context.Context, productID, userID, token string, _ time.Duration) error {
	if l.failMarker {
		return errors.New("marker write refused")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markers[domain.HoldKey(productID, userID, token)] = true
	return nil
}

func (l *fakeLedger) AddCartEntry(_ context.Context, userID string, entry domain.CartEntry) error {
	if l.failCart {
		return errors.New("cart write refused")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.carts[userID] == nil {
		l.carts[userID] = make(map[string]bool)
	}
	l.carts[userID][entry.String()] = true
	return nil
}

func (l *fakeLedger) RemoveCartEntry(_ context.Context, userID string, entry domain.CartEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.carts[userID], entry.String())
	return nil
}

func (l *fakeLedger) ValidateCart(_ context.Context, userID string) (valid, expired []domain.CartEntry, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for raw := range l.carts[userID] {
		entry, perr := domain.ParseCartEntry(raw)
		if perr != nil {
			delete(l.carts[userID], raw)
			continue
		}
		if l.markers[domain.HoldKey(entry.ProductID, userID, entry.Token)] {
			valid = append(valid, entry)
		} else {
			delete(l.carts[userID], raw)
			expired = append(expired, entry)
		}
	}
	return valid, expired, nil
}

func (l *fakeLedger) Restore(_ context.Context, productID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[productID]++
	return l.counts[productID], nil
}

func (l *fakeLedger) SetAvailable(_ context.Context, available map[string]int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, n := range available {
		l.counts[id] = n
	}
	return nil
}

func (l *fakeLedger) GetAvailable(_ context.Context, productID string) (int64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.counts[productID]
	return n, ok, nil
}

func (l *fakeLedger) count(productID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[productID]
}

func (l *fakeLedger) cartSize(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.carts[userID])
}

// fakeStore 同时实现 ReservationRepository 与 ProductRepository，
// 状态守卫语义与 GORM 实现一致。
type fakeStore struct {
	mu       sync.Mutex
	seq      uint
	rows     map[string]*domain.Reservation // by ReservationID
	products map[string]*domain.Product

	failCreate bool
	failRevert bool
}

func newFakeStore(products ...*domain.Product) *fakeStore {
	s := &fakeStore{
		rows:     make(map[string]*domain.Reservation),
		products: make(map[string]*domain.Product),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *fakeStore) Create(_ context.Context, r *domain.Reservation) error {
	if s.failCreate {
		return errors.New("insert refused")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	r.ID = s.seq
	s.rows[r.ReservationID] = r
	return nil
}

func (s *fakeStore) FindByOrderID(_ context.Context, orderID uint) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ID == orderID {
			return r, nil
		}
	}
	return nil, domain.ErrReservationNotFound
}

func (s *fakeStore) TransitionToPaymentPending(_ context.Context, reservationIDs []string) ([]*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var moved []*domain.Reservation
	for _, id := range reservationIDs {
		r, ok := s.rows[id]
		if !ok || r.Status != domain.StatusPending {
			continue
		}
		r.Status = domain.StatusPaymentPending
		moved = append(moved, r)
	}
	return moved, nil
}

func (s *fakeStore) RevertToPending(_ context.Context, reservationIDs []string) (int64, error) {
	if s.failRevert {
		return 0, errors.New("revert refused")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range reservationIDs {
		if r, ok := s.rows[id]; ok && r.Status == domain.StatusPaymentPending {
			r.Status = domain.StatusPending
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) Expire(_ context.Context, reservationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[reservationID]
	if !ok || r.Status != domain.StatusPending {
		return false, nil
	}
	r.Status = domain.StatusExpired
	return true, nil
}

func (s *fakeStore) FindExpiredPending(_ context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Reservation
	for _, r := range s.rows {
		if r.Status == domain.StatusPending && !r.ExpiresAt.After(now) {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) Fulfill(_ context.Context, orderID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var row *domain.Reservation
	for _, r := range s.rows {
		if r.ID == orderID {
			row = r
			break
		}
	}
	if row == nil {
		return false, domain.ErrReservationNotFound
	}
	if row.Status == domain.StatusCompleted {
		return false, nil
	}
	if row.Status != domain.StatusPaymentPending {
		return false, nil
	}
	p := s.products[row.ProductID]
	if p == nil || p.Inventory <= 0 {
		return false, domain.ErrDurableStockExhausted
	}
	p.Inventory--
	now := time.Now()
	row.Status = domain.StatusCompleted
	row.CompletedAt = &now
	return true, nil
}

func (s *fakeStore) Cancel(_ context.Context, reservationID string) (bool, *domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[reservationID]
	if !ok {
		return false, nil, domain.ErrReservationNotFound
	}
	if r.Status.IsTerminal() {
		return false, r, nil
	}
	r.Status = domain.StatusCancelled
	return true, r, nil
}

func (s *fakeStore) CountActiveHolds(_ context.Context, now time.Time) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int64)
	for _, r := range s.rows {
		active := (r.Status == domain.StatusPending && r.ExpiresAt.After(now)) ||
			r.Status == domain.StatusPaymentPending
		if active {
			counts[r.ProductID]++
		}
	}
	return counts, nil
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return p, nil
}

func (s *fakeStore) ListAll(_ context.Context) ([]*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) status(reservationID string) domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[reservationID]; ok {
		return r.Status
	}
	return ""
}

// fakePayments 记录授权请求，按需失败。
type fakePayments struct {
	fail      bool
	gotAmount int64
	gotOrders []uint
	calls     int
}

func (p *fakePayments) Authorize(_ context.Context, amountCents int64, orderIDs []uint) (string, error) {
	p.calls++
	p.gotAmount = amountCents
	p.gotOrders = orderIDs
	if p.fail {
		return "", errors.New("card declined")
	}
	return "secret_test_123", nil
}

// fakeProducer 收集入队的结算任务。
type fakeProducer struct {
	mu   sync.Mutex
	jobs []*domain.SettlementJob
}

func (p *fakeProducer) Enqueue(_ context.Context, job *domain.SettlementJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return nil
}

// fakeJobStore 是 SettlementJobStore 的内存实现。
type fakeJobStore struct {
	mu      sync.Mutex
	records map[string]*domain.SettlementJobRecord
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{records: make(map[string]*domain.SettlementJobRecord)}
}

func (s *fakeJobStore) Create(_ context.Context, rec *domain.SettlementJobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return errors.New("duplicate job id")
	}
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	s.records[rec.ID] = rec
	return nil
}

func (s *fakeJobStore) FindByID(_ context.Context, id string) (*domain.SettlementJobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return rec, nil
}

func (s *fakeJobStore) ListByState(_ context.Context, state domain.JobState, limit int) ([]*domain.SettlementJobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.SettlementJobRecord
	for _, rec := range s.records {
		if rec.State == state {
			out = append(out, rec)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeJobStore) setState(id string, state domain.JobState, attempts int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	rec.State = state
	if attempts >= 0 {
		rec.Attempts = attempts
	}
	if lastError != "" {
		rec.LastError = lastError
	}
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *fakeJobStore) MarkActive(_ context.Context, id string, attempts int) error {
	return s.setState(id, domain.JobStateActive, attempts, "")
}

func (s *fakeJobStore) MarkCompleted(_ context.Context, id string) error {
	return s.setState(id, domain.JobStateCompleted, -1, "")
}

func (s *fakeJobStore) MarkFailed(_ context.Context, id string, lastError string) error {
	return s.setState(id, domain.JobStateFailed, -1, lastError)
}

func (s *fakeJobStore) MarkWaiting(_ context.Context, id string, attempts int) error {
	return s.setState(id, domain.JobStateWaiting, attempts, "")
}

func (s *fakeJobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *fakeJobStore) DeleteCompletedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.records {
		if rec.State == domain.JobStateCompleted && rec.UpdatedAt.Before(cutoff) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}
