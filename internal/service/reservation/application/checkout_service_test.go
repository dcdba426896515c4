package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/TheBigWealth89/product-reservation/internal/service/reservation/domain"
)

// placeHold 直接在 fake 里摆好一个完整的持留：持久行、标记、购物车条目。
func placeHold(t *testing.T, ledger *fakeLedger, store *fakeStore, productID, userID, token string, amount float64) *domain.Reservation {
	t.Helper()
	r, err := domain.NewReservation(productID, userID, token, amount, 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Create(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	entry := domain.CartEntry{ProductID: productID, Token: token}
	if err := ledger.PlaceHoldMarker(context.Background(), productID, userID, token, 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := ledger.AddCartEntry(context.Background(), userID, entry); err != nil {
		t.Fatal(err)
	}
	return r
}

func newCheckoutFixture() (*CheckoutService, *fakeLedger, *fakeStore, *fakePayments) {
	ledger := newFakeLedger()
	store := newFakeStore()
	payments := &fakePayments{}
	svc := NewCheckoutService(ledger, store, payments, testTracer)
	return svc, ledger, store, payments
}

func TestCheckoutSettlesValidCart(t *testing.T) {
	svc, ledger, store, payments := newCheckoutFixture()
	placeHold(t, ledger, store, "product_a", "user_1", "t1", 19.99)
	placeHold(t, ledger, store, "product_b", "user_1", "t2", 5.01)

	result, err := svc.Checkout(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if result.AuthorizationHandle != "secret_test_123" {
		t.Errorf("handle = %q", result.AuthorizationHandle)
	}
	if result.AmountCents != 2500 {
		t.Errorf("amount = %d cents, want 2500", result.AmountCents)
	}
	if len(result.OrderIDs) != 2 {
		t.Errorf("order ids = %v, want 2 entries", result.OrderIDs)
	}
	if payments.gotAmount != 2500 {
		t.Errorf("provider saw %d cents", payments.gotAmount)
	}
	for _, r := range store.rows {
		if r.Status != domain.StatusPaymentPending {
			t.Errorf("row %s in status %s, want payment_pending", r.ReservationID, r.Status)
		}
	}
	// 购物车条目在支付确认前保留
	if ledger.cartSize("user_1") != 2 {
		t.Errorf("cart size = %d, want 2", ledger.cartSize("user_1"))
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	svc, _, _, payments := newCheckoutFixture()

	_, err := svc.Checkout(context.Background(), "user_1")
	if !errors.Is(err, domain.ErrNoValidHolds) {
		t.Fatalf("err = %v, want ErrNoValidHolds", err)
	}
	if payments.calls != 0 {
		t.Error("provider must not be called for an empty cart")
	}
}

func TestCheckoutAllHoldsExpired(t *testing.T) {
	svc, ledger, store, payments := newCheckoutFixture()
	r := placeHold(t, ledger, store, "product_a", "user_1", "t1", 10)
	delete(ledger.markers, domain.HoldKey("product_a", "user_1", "t1"))

	result, err := svc.Checkout(context.Background(), "user_1")
	if !errors.Is(err, domain.ErrReservationExpired) {
		t.Fatalf("err = %v, want ErrReservationExpired", err)
	}
	if len(result.ExpiredEntries) != 1 || result.ExpiredEntries[0] != r.ReservationID {
		t.Errorf("expired entries = %v", result.ExpiredEntries)
	}
	if payments.calls != 0 {
		t.Error("provider must not be called")
	}
}

func TestCheckoutPrunesExpiredEntries(t *testing.T) {
	svc, ledger, store, _ := newCheckoutFixture()
	placeHold(t, ledger, store, "product_a", "user_1", "t1", 10)
	stale := placeHold(t, ledger, store, "product_b", "user_1", "t2", 20)
	// 模拟标记 TTL 到期：标记消失，购物车条目残留
	delete(ledger.markers, domain.HoldKey("product_b", "user_1", "t2"))

	result, err := svc.Checkout(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if result.AmountCents != 1000 {
		t.Errorf("amount = %d, want only the live hold", result.AmountCents)
	}
	if len(result.ExpiredEntries) != 1 || result.ExpiredEntries[0] != stale.ReservationID {
		t.Errorf("expired entries = %v", result.ExpiredEntries)
	}
	if ledger.cartSize("user_1") != 1 {
		t.Errorf("cart size after prune = %d, want 1", ledger.cartSize("user_1"))
	}
}

// 购物车条目通过了校验，但持久行已被过期回收器抢先处理。
func TestCheckoutRowsAlreadyReclaimed(t *testing.T) {
	svc, ledger, store, payments := newCheckoutFixture()
	r := placeHold(t, ledger, store, "product_a", "user_1", "t1", 10)
	store.rows[r.ReservationID].Status = domain.StatusExpired

	_, err := svc.Checkout(context.Background(), "user_1")
	if !errors.Is(err, domain.ErrNothingToSettle) {
		t.Fatalf("err = %v, want ErrNothingToSettle", err)
	}
	if payments.calls != 0 {
		t.Error("provider must not be called when nothing settled")
	}
}

func TestCheckoutCompensatesOnAuthFailure(t *testing.T) {
	svc, ledger, store, payments := newCheckoutFixture()
	payments.fail = true
	r1 := placeHold(t, ledger, store, "product_a", "user_1", "t1", 10)
	r2 := placeHold(t, ledger, store, "product_b", "user_1", "t2", 20)

	_, err := svc.Checkout(context.Background(), "user_1")
	if !errors.Is(err, domain.ErrPaymentAuthorizationFailed) {
		t.Fatalf("err = %v, want ErrPaymentAuthorizationFailed", err)
	}
	for _, id := range []string{r1.ReservationID, r2.ReservationID} {
		if store.status(id) != domain.StatusPending {
			t.Errorf("row %s in status %s, want pending after compensation", id, store.status(id))
		}
	}
	// 补偿不回补计数：预订仍然有效，失败的只是支付尝试
	if ledger.count("product_a") != 0 || ledger.count("product_b") != 0 {
		t.Error("compensation must not move volatile counts")
	}

	// 补偿后的购物车可以立即重新结算
	payments.fail = false
	if _, err := svc.Checkout(context.Background(), "user_1"); err != nil {
		t.Errorf("re-checkout after compensation: %v", err)
	}
}

func TestCheckoutCompensationFailure(t *testing.T) {
	svc, ledger, store, payments := newCheckoutFixture()
	payments.fail = true
	store.failRevert = true
	r := placeHold(t, ledger, store, "product_a", "user_1", "t1", 10)

	_, err := svc.Checkout(context.Background(), "user_1")
	if !errors.Is(err, domain.ErrCompensationFailed) {
		t.Fatalf("err = %v, want ErrCompensationFailed", err)
	}
	// 行保持失败前的状态，等待人工排查
	if store.status(r.ReservationID) != domain.StatusPaymentPending {
		t.Errorf("row status = %s, want payment_pending left for operators", store.status(r.ReservationID))
	}
}
