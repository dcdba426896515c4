package application

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
)

func seedFailedJob(t *testing.T, jobs *fakeJobStore, orderID uint, userID string) *domain.SettlementJobRecord {
	t.Helper()
	job := domain.NewFulfillJob(orderID, userID, time.Second)
	job.Attempts = 3
	payload, err := json.Marshal(job)
	if err != nil {
		t.Fatal(err)
	}
	rec := &domain.SettlementJobRecord{
		ID:       job.ID,
		Type:     domain.JobTypeFulfill,
		Payload:  string(payload),
		Attempts: 3,
		State:    domain.JobStateFailed,
	}
	if err := jobs.Create(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	return rec
}

func newRecoveryFixture() (*RecoveryService, *fakeJobStore, *fakeLedger, *fakeStore, *fakeProducer) {
	jobs := newFakeJobStore()
	ledger := newFakeLedger()
	store := newFakeStore()
	producer := &fakeProducer{}
	svc := NewRecoveryService(jobs, store, ledger, producer, testTracer, time.Second)
	return svc, jobs, ledger, store, producer
}

func TestRetryJobResetsAttempts(t *testing.T) {
	svc, jobs, _, _, producer := newRecoveryFixture()
	rec := seedFailedJob(t, jobs, 42, "user_1")

	if err := svc.RetryJob(context.Background(), rec.ID); err != nil {
		t.Fatalf("RetryJob: %v", err)
	}
	if len(producer.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(producer.jobs))
	}
	got := producer.jobs[0]
	if got.ID != rec.ID || got.OrderID != 42 {
		t.Errorf("requeued job = %+v", got)
	}
	if got.Attempts != 0 {
		t.Errorf("attempts = %d, want reset to 0", got.Attempts)
	}
}

// 只有死信任务能重试，排队中或已完成的任务不可重复入队。
func TestRetryJobRejectsNonFailedStates(t *testing.T) {
	svc, jobs, _, _, producer := newRecoveryFixture()
	rec := seedFailedJob(t, jobs, 42, "user_1")

	for _, state := range []domain.JobState{domain.JobStateWaiting, domain.JobStateActive, domain.JobStateCompleted} {
		jobs.records[rec.ID].State = state
		if err := svc.RetryJob(context.Background(), rec.ID); !errors.Is(err, domain.ErrJobNotFailed) {
			t.Errorf("state %s: err = %v, want ErrJobNotFailed", state, err)
		}
	}
	if len(producer.jobs) != 0 {
		t.Errorf("enqueued %d jobs, non-failed jobs must not requeue", len(producer.jobs))
	}
}

func TestRetryJobUnknownID(t *testing.T) {
	svc, _, _, _, _ := newRecoveryFixture()
	if err := svc.RetryJob(context.Background(), "nope"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestCancelJobReleasesHold(t *testing.T) {
	svc, jobs, ledger, store, _ := newRecoveryFixture()
	r := placeHold(t, ledger, store, "product_a", "user_1", "t1", 10)
	store.rows[r.ReservationID].Status = domain.StatusPaymentPending
	rec := seedFailedJob(t, jobs, r.ID, "user_1")

	if err := svc.CancelJob(context.Background(), rec.ID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if store.status(r.ReservationID) != domain.StatusCancelled {
		t.Errorf("row status = %s, want cancelled", store.status(r.ReservationID))
	}
	if ledger.count("product_a") != 1 {
		t.Errorf("count = %d, want 1 restored unit", ledger.count("product_a"))
	}
	if ledger.cartSize("user_1") != 0 {
		t.Error("cart entry not pruned")
	}
	if _, err := jobs.FindByID(context.Background(), rec.ID); !errors.Is(err, domain.ErrJobNotFound) {
		t.Error("job record not deleted")
	}
}

// 预订已经完成时取消任务只清理记录，不回补库存。
func TestCancelJobSkipsTerminalReservation(t *testing.T) {
	svc, jobs, ledger, store, _ := newRecoveryFixture()
	r := placeHold(t, ledger, store, "product_a", "user_1", "t1", 10)
	store.rows[r.ReservationID].Status = domain.StatusCompleted
	rec := seedFailedJob(t, jobs, r.ID, "user_1")

	if err := svc.CancelJob(context.Background(), rec.ID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if store.status(r.ReservationID) != domain.StatusCompleted {
		t.Error("terminal row must not change state")
	}
	if ledger.count("product_a") != 0 {
		t.Error("terminal row must not restore stock")
	}
}

func TestPurgeCompleted(t *testing.T) {
	svc, jobs, _, _, _ := newRecoveryFixture()

	old := &domain.SettlementJobRecord{ID: "old", Type: domain.JobTypeFulfill, State: domain.JobStateCompleted}
	if err := jobs.Create(context.Background(), old); err != nil {
		t.Fatal(err)
	}
	jobs.records["old"].UpdatedAt = time.Now().Add(-48 * time.Hour)

	fresh := &domain.SettlementJobRecord{ID: "fresh", Type: domain.JobTypeFulfill, State: domain.JobStateCompleted}
	if err := jobs.Create(context.Background(), fresh); err != nil {
		t.Fatal(err)
	}

	if err := svc.PurgeCompleted(context.Background(), 24*time.Hour); err != nil {
		t.Fatalf("PurgeCompleted: %v", err)
	}
	if _, err := jobs.FindByID(context.Background(), "old"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Error("stale completed record not purged")
	}
	if _, err := jobs.FindByID(context.Background(), "fresh"); err != nil {
		t.Error("recent completed record must survive the purge")
	}
}
