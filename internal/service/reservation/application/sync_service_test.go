package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
)

func TestSyncOnceRecomputesCounts(t *testing.T) {
	ledger := newFakeLedger()
	store := newFakeStore(
		&domain.Product{ID: "product_a", Inventory: 10},
		&domain.Product{ID: "product_b", Inventory: 2},
		&domain.Product{ID: "product_c", Inventory: 4},
	)

	// product_a: 一个活跃 pending，一个已过 TTL 的 pending，一个结算中
	placeHold(t, ledger, store, "product_a", "user_1", "t1", 1)
	overdue := placeHold(t, ledger, store, "product_a", "user_2", "t2", 1)
	store.rows[overdue.ReservationID].ExpiresAt = time.Now().Add(-time.Minute)
	settling := placeHold(t, ledger, store, "product_a", "user_3", "t3", 1)
	store.rows[settling.ReservationID].Status = domain.StatusPaymentPending

	// product_b: 持留数超过持久库存，可售必须钳到 0
	for i, user := range []string{"u1", "u2", "u3"} {
		placeHold(t, ledger, store, "product_b", user, "tok"+string(rune('0'+i)), 1)
	}

	// 漂移的脏计数，应被覆写
	ledger.counts["product_c"] = -7

	svc := NewSyncService(ledger, store, store, testTracer, nil)
	if err := svc.SyncOnce(context.Background()); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}

	// product_a: 10 - (1 活跃 pending + 1 payment_pending) = 8，过期行不计
	if got := ledger.count("product_a"); got != 8 {
		t.Errorf("product_a = %d, want 8", got)
	}
	if got := ledger.count("product_b"); got != 0 {
		t.Errorf("product_b = %d, want clamped to 0", got)
	}
	if got := ledger.count("product_c"); got != 4 {
		t.Errorf("product_c = %d, want drift healed to 4", got)
	}
}

type fakeLocker struct {
	locked, unlocked int
	failLock         bool
}

func (l *fakeLocker) Lock() error {
	if l.failLock {
		return errors.New("lock held elsewhere")
	}
	l.locked++
	return nil
}

func (l *fakeLocker) Unlock() error {
	l.unlocked++
	return nil
}

func TestSyncOnceHonorsLock(t *testing.T) {
	ledger := newFakeLedger()
	store := newFakeStore(&domain.Product{ID: "product_a", Inventory: 1})
	locker := &fakeLocker{}

	svc := NewSyncService(ledger, store, store, testTracer, locker)
	if err := svc.SyncOnce(context.Background()); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	if locker.locked != 1 || locker.unlocked != 1 {
		t.Errorf("lock/unlock = %d/%d, want 1/1", locker.locked, locker.unlocked)
	}

	locker.failLock = true
	if err := svc.SyncOnce(context.Background()); err == nil {
		t.Error("SyncOnce must fail when the lock is unavailable")
	}
}
