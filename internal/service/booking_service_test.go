package service

import (
	"context"
	"testing"
	"time"

	"booking-service/internal/apperr"
	"booking-service/internal/gateway"
	"booking-service/internal/models"
	"booking-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errNotFound() error { return store.ErrNotFound }

type fakeBookingStore struct {
	users     map[int64]*models.User
	boats     map[int64]*models.Boat
	bookings  []models.Booking
	payments  []models.Payment
	createErr error
}

func newFakeBookingStore() *fakeBookingStore {
	return &fakeBookingStore{
		users: map[int64]*models.User{
			1: {ID: 1, Name: "Ana", Email: "ana@example.com"},
		},
		boats: map[int64]*models.Boat{
			7: {ID: 7, OwnerID: 2, Name: "Sea Breeze"},
		},
	}
}

func (f *fakeBookingStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeBookingStore) GetBoatByID(_ context.Context, id int64) (*models.Boat, error) {
	if b, ok := f.boats[id]; ok {
		return b, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeBookingStore) HasBookingConflict(_ context.Context, boatID int64, start, end time.Time) (bool, error) {
	for i := range f.bookings {
		b := &f.bookings[i]
		if b.BoatID == boatID && b.Status != models.BookingStatusCancelled && b.OverlapsWith(start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBookingStore) CreateBookingWithPayment(_ context.Context, booking *models.Booking, payment *models.Payment) error {
	if f.createErr != nil {
		return f.createErr
	}
	booking.ID = int64(len(f.bookings) + 1)
	f.bookings = append(f.bookings, *booking)
	payment.ID = int64(len(f.payments) + 1)
	payment.BookingID = &booking.ID
	f.payments = append(f.payments, *payment)
	return nil
}

func (f *fakeBookingStore) GetBookingByIdempotencyKey(_ context.Context, key string) (*models.Booking, error) {
	for i := range f.bookings {
		if f.bookings[i].IdempotencyKey == key {
			return &f.bookings[i], nil
		}
	}
	return nil, nil
}

func (f *fakeBookingStore) GetBookingDetail(_ context.Context, id int64) (*models.BookingDetail, error) {
	for i := range f.bookings {
		if f.bookings[i].ID == id {
			return &models.BookingDetail{Booking: f.bookings[i]}, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeBookingStore) ListBookingsByUser(_ context.Context, userID int64, status string) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range f.bookings {
		if b.UserID == userID && (status == "" || b.Status == status) {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeCharger struct {
	result   *gateway.ChargeResult
	err      error
	charges  int
	refunded []string
}

func (f *fakeCharger) Charge(_ context.Context, _ *gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	f.charges++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeCharger) Refund(_ context.Context, transactionID string) error {
	f.refunded = append(f.refunded, transactionID)
	return nil
}

type fakeLocker struct {
	available bool
	released  int
}

func (f *fakeLocker) AcquireBoatLock(_ context.Context, _ int64, _ string, _ time.Duration) (bool, error) {
	return f.available, nil
}

func (f *fakeLocker) ReleaseBoatLock(_ context.Context, _ int64, _ string) error {
	f.released++
	return nil
}

type fakePublisher struct {
	bookingEvents []*models.BookingEvent
	paymentEvents []*models.PaymentEvent
}

func (f *fakePublisher) PublishBookingEvent(_ context.Context, e *models.BookingEvent) error {
	f.bookingEvents = append(f.bookingEvents, e)
	return nil
}

func (f *fakePublisher) PublishPaymentEvent(_ context.Context, e *models.PaymentEvent) error {
	f.paymentEvents = append(f.paymentEvents, e)
	return nil
}

type orchestratorFixture struct {
	orch      *BookingOrchestrator
	bookings  *fakeBookingStore
	charger   *fakeCharger
	locker    *fakeLocker
	publisher *fakePublisher
	start     time.Time
	end       time.Time
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()

	base := time.Now().Add(48 * time.Hour).Truncate(time.Hour)
	windows := &fakeWindowStore{windows: []models.AvailabilityWindow{
		{ID: 1, BoatID: 7, StartDate: base, EndDate: base.Add(12 * time.Hour), PricePerHourCents: 5000},
	}}

	bookings := newFakeBookingStore()
	charger := &fakeCharger{result: &gateway.ChargeResult{
		TransactionID: "txn-1", Status: models.PaymentStatusConfirmed, Message: "approved",
	}}
	locker := &fakeLocker{available: true}
	publisher := &fakePublisher{}

	orch := NewBookingOrchestrator(
		bookings,
		NewPricingResolver(windows),
		NewConflictDetector(bookings),
		charger,
		locker,
		publisher,
		15*time.Second,
	)

	return &orchestratorFixture{
		orch:      orch,
		bookings:  bookings,
		charger:   charger,
		locker:    locker,
		publisher: publisher,
		start:     base.Add(1 * time.Hour),
		end:       base.Add(6 * time.Hour),
	}
}

func (fx *orchestratorFixture) request() *CreateBookingRequest {
	return &CreateBookingRequest{
		UserID:        1,
		BoatID:        7,
		StartDate:     fx.start,
		EndDate:       fx.end,
		PaymentMethod: models.PaymentMethodPix,
	}
}

func TestCreateBookingConfirmed(t *testing.T) {
	fx := newOrchestratorFixture(t)

	resp, err := fx.orch.CreateBooking(context.Background(), fx.request())
	require.NoError(t, err)

	assert.Equal(t, models.BookingStatusConfirmed, resp.Status)
	assert.Equal(t, int64(25000), resp.TotalPriceCents)
	assert.Equal(t, "txn-1", resp.TransactionID)

	require.Len(t, fx.bookings.bookings, 1)
	require.Len(t, fx.bookings.payments, 1)
	assert.Equal(t, resp.BookingID, *fx.bookings.payments[0].BookingID)

	require.Len(t, fx.publisher.bookingEvents, 1)
	assert.Equal(t, models.EventTypeBookingConfirmed, fx.publisher.bookingEvents[0].EventType)
	assert.Equal(t, int64(2), fx.publisher.bookingEvents[0].OwnerID)
	assert.Equal(t, 1, fx.locker.released)
}

func TestCreateBookingPendingForDelayedMethod(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.charger.result.Status = models.PaymentStatusPending

	resp, err := fx.orch.CreateBooking(context.Background(), fx.request())
	require.NoError(t, err)

	assert.Equal(t, models.BookingStatusPending, resp.Status)
	require.Len(t, fx.publisher.bookingEvents, 1)
	assert.Equal(t, models.EventTypeBookingPending, fx.publisher.bookingEvents[0].EventType)
}

func TestCreateBookingDeclinedLeavesNothingBehind(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.charger.result = &gateway.ChargeResult{
		TransactionID: "txn-2", Status: models.PaymentStatusDeclined, Message: "insufficient funds",
	}

	_, err := fx.orch.CreateBooking(context.Background(), fx.request())
	require.Error(t, err)
	assert.Equal(t, apperr.KindGatewayDeclined, apperr.KindOf(err))

	assert.Empty(t, fx.bookings.bookings)
	assert.Empty(t, fx.bookings.payments)
	assert.Empty(t, fx.charger.refunded)
	assert.Empty(t, fx.publisher.bookingEvents)
}

func TestCreateBookingGatewayUnavailable(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.charger.err = gateway.ErrUnavailable

	_, err := fx.orch.CreateBooking(context.Background(), fx.request())
	require.Error(t, err)
	assert.Equal(t, apperr.KindGatewayUnavailable, apperr.KindOf(err))
	assert.Empty(t, fx.bookings.bookings)
	assert.Empty(t, fx.bookings.payments)
}

func TestCreateBookingRejectsExistingOverlap(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.bookings.bookings = append(fx.bookings.bookings, models.Booking{
		ID: 10, BoatID: 7, UserID: 3,
		StartDate: fx.end, EndDate: fx.end.Add(3 * time.Hour),
		Status: models.BookingStatusConfirmed,
	})

	// Boundaries are inclusive: the existing booking starts exactly when
	// this one ends, and that still conflicts.
	_, err := fx.orch.CreateBooking(context.Background(), fx.request())
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Zero(t, fx.charger.charges)
}

func TestCreateBookingIgnoresCancelledOverlap(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.bookings.bookings = append(fx.bookings.bookings, models.Booking{
		ID: 10, BoatID: 7, UserID: 3,
		StartDate: fx.start, EndDate: fx.end,
		Status: models.BookingStatusCancelled,
	})

	resp, err := fx.orch.CreateBooking(context.Background(), fx.request())
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, resp.Status)
}

func TestCreateBookingLockBusy(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.locker.available = false

	_, err := fx.orch.CreateBooking(context.Background(), fx.request())
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Zero(t, fx.charger.charges)
}

func TestCreateBookingLosesRaceAtCommit(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.bookings.createErr = store.ErrBookingConflict

	_, err := fx.orch.CreateBooking(context.Background(), fx.request())
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	assert.Empty(t, fx.bookings.bookings)
	assert.Empty(t, fx.publisher.bookingEvents)

	// The charge went through before the race was detected, so it must be
	// reversed.
	assert.Eventually(t, func() bool {
		return len(fx.charger.refunded) == 1 && fx.charger.refunded[0] == "txn-1"
	}, time.Second, 10*time.Millisecond)
}

func TestCreateBookingIdempotencyReplay(t *testing.T) {
	fx := newOrchestratorFixture(t)
	req := fx.request()
	req.IdempotencyKey = "key-123"

	first, err := fx.orch.CreateBooking(context.Background(), req)
	require.NoError(t, err)

	second, err := fx.orch.CreateBooking(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.BookingID, second.BookingID)
	assert.Len(t, fx.bookings.bookings, 1)
	assert.Equal(t, 1, fx.charger.charges)
}

func TestCreateBookingValidation(t *testing.T) {
	fx := newOrchestratorFixture(t)

	req := fx.request()
	req.UserID = 999
	_, err := fx.orch.CreateBooking(context.Background(), req)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	req = fx.request()
	req.BoatID = 999
	_, err = fx.orch.CreateBooking(context.Background(), req)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	req = fx.request()
	req.StartDate, req.EndDate = req.EndDate, req.StartDate
	_, err = fx.orch.CreateBooking(context.Background(), req)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	req = fx.request()
	req.StartDate = time.Now().Add(-24 * time.Hour)
	req.EndDate = time.Now().Add(-20 * time.Hour)
	_, err = fx.orch.CreateBooking(context.Background(), req)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	req = fx.request()
	req.PaymentMethod = "CASH"
	_, err = fx.orch.CreateBooking(context.Background(), req)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	req = fx.request()
	req.PaymentMethod = models.PaymentMethodCreditCard
	req.Card = nil
	_, err = fx.orch.CreateBooking(context.Background(), req)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	assert.Zero(t, fx.charger.charges)
}
