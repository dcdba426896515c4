package interfaces

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
)

type captureProducer struct {
	jobs []*domain.SettlementJob
	fail bool
}

func (p *captureProducer) Enqueue(_ context.Context, job *domain.SettlementJob) error {
	if p.fail {
		return context.DeadlineExceeded
	}
	p.jobs = append(p.jobs, job)
	return nil
}

// stubReservations 只实现回调路径用到的订单查询，其余方法不会被调用。
type stubReservations struct {
	domain.ReservationRepository
	users map[uint]string
}

func (s *stubReservations) FindByOrderID(_ context.Context, orderID uint) (*domain.Reservation, error) {
	userID, ok := s.users[orderID]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return &domain.Reservation{ID: orderID, UserID: userID}, nil
}

func postEvent(t *testing.T, handler *WebhookHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestPaymentWebhookFansOutPerOrder(t *testing.T) {
	producer := &captureProducer{}
	reserves := &stubReservations{users: map[uint]string{7: "user_a", 8: "user_a", 9: "user_b"}}
	handler := NewWebhookHandler(producer, reserves, time.Second)

	rec := postEvent(t, handler, `{"type":"payment_succeeded","metadata":{"order_ids":"7, 8,9"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(producer.jobs) != 3 {
		t.Fatalf("enqueued %d jobs, want one per order", len(producer.jobs))
	}
	want := []uint{7, 8, 9}
	wantUsers := []string{"user_a", "user_a", "user_b"}
	for i, job := range producer.jobs {
		if job.OrderID != want[i] {
			t.Errorf("job %d order = %d, want %d", i, job.OrderID, want[i])
		}
		if job.UserID != wantUsers[i] {
			t.Errorf("job %d user = %q, want %q", i, job.UserID, wantUsers[i])
		}
		if job.Type != domain.JobTypeFulfill {
			t.Errorf("job type = %s", job.Type)
		}
		if job.Attempts != 0 {
			t.Errorf("fresh job attempts = %d", job.Attempts)
		}
	}
}

func TestPaymentWebhookUnknownOrderStillEnqueues(t *testing.T) {
	producer := &captureProducer{}
	handler := NewWebhookHandler(producer, &stubReservations{}, time.Second)

	rec := postEvent(t, handler, `{"type":"payment_succeeded","metadata":{"order_ids":"7"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(producer.jobs) != 1 || producer.jobs[0].UserID != "" {
		t.Errorf("jobs = %+v, want one job with empty user", producer.jobs)
	}
}

func TestPaymentWebhookIgnoresOtherEvents(t *testing.T) {
	producer := &captureProducer{}
	handler := NewWebhookHandler(producer, &stubReservations{}, time.Second)

	rec := postEvent(t, handler, `{"type":"payment_failed","metadata":{"order_ids":"7"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, unhandled events are acknowledged", rec.Code)
	}
	if len(producer.jobs) != 0 {
		t.Error("non-success events must not enqueue jobs")
	}
}

func TestPaymentWebhookBadPayload(t *testing.T) {
	handler := NewWebhookHandler(&captureProducer{}, &stubReservations{}, time.Second)
	if rec := postEvent(t, handler, `{not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPaymentWebhookEnqueueFailure(t *testing.T) {
	handler := NewWebhookHandler(&captureProducer{fail: true}, &stubReservations{users: map[uint]string{7: "user_a"}}, time.Second)
	// 5xx 让服务商重投整个事件，幂等履约吸收重复
	if rec := postEvent(t, handler, `{"type":"payment_succeeded","metadata":{"order_ids":"7"}}`); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
