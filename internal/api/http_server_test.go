package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"innkeeper/internal/config"
	"innkeeper/internal/database"
	"innkeeper/internal/models"
	"innkeeper/internal/service"

	"github.com/rs/zerolog"
)

type testEnv struct {
	db   *database.DB
	svc  Services
	room *models.Room
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.BookingConfig{ConfirmationPrefix: "HTL", MaxStayNights: 30, TravelRefundMinDays: 2}
	env := &testEnv{
		db: db,
		svc: Services{
			Bookings:  service.NewBookingService(db, db, nil, nil, nil, cfg, &logger),
			Refunds:   service.NewRefundService(db, db, nil, nil, cfg, &logger),
			Travel:    service.NewTravelService(db, nil, &logger),
			Inventory: service.NewInventoryService(db, &logger),
		},
	}

	ctx := context.Background()
	rt := &models.RoomType{Name: "Standard", BasePrice: 80, MaxOccupancy: 2}
	if err := env.svc.Inventory.CreateRoomType(ctx, rt); err != nil {
		t.Fatalf("create room type: %v", err)
	}
	env.room = &models.Room{Number: "101", RoomTypeID: rt.ID, Floor: 1, Price: 100}
	if err := env.svc.Inventory.CreateRoom(ctx, env.room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	return env
}

func (e *testEnv) server(t *testing.T, cfg config.APIConfig) *httptest.Server {
	t.Helper()
	logger := zerolog.New(io.Discard)
	srv := NewHTTPServer(cfg, e.svc, &logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func openAPIConfig() config.APIConfig {
	return config.APIConfig{Enabled: true, HTTP: config.APIHTTPConfig{Enabled: true}}
}

// day returns a calendar date offset from today.
func day(offset int) string {
	return time.Now().UTC().AddDate(0, 0, offset).Format(models.DateLayout)
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", want, resp.StatusCode, raw)
	}
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func expectErrorCode(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	expectStatus(t, resp, status)
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	decodeBody(t, resp, &body)
	if body.Code != code {
		t.Fatalf("expected code %q, got %q (%s)", code, body.Code, body.Error)
	}
}

func (e *testEnv) createBooking(t *testing.T, baseURL string, checkIn, checkOut string) models.Booking {
	t.Helper()
	resp := doJSON(t, http.MethodPost, baseURL+"/api/v1/bookings", map[string]any{
		"customer_id":    7,
		"room_id":        e.room.ID,
		"check_in":       checkIn,
		"check_out":      checkOut,
		"guests":         2,
		"payment_method": "card",
	}, nil)
	expectStatus(t, resp, http.StatusCreated)

	var res service.CreateResult
	decodeBody(t, resp, &res)
	if res.Booking == nil || res.Booking.ID == 0 {
		t.Fatalf("expected stored booking, got %+v", res)
	}
	return *res.Booking
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t, openAPIConfig())

	resp := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, nil)
	expectStatus(t, resp, http.StatusOK)
}

func TestAvailabilityEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t, openAPIConfig())

	url := fmt.Sprintf("%s/api/v1/availability?room_id=%d&check_in=%s&check_out=%s", ts.URL, env.room.ID, day(10), day(12))
	check := func(want bool) {
		t.Helper()
		resp := doJSON(t, http.MethodGet, url, nil, nil)
		expectStatus(t, resp, http.StatusOK)
		var body struct {
			Available bool `json:"available"`
		}
		decodeBody(t, resp, &body)
		if body.Available != want {
			t.Fatalf("expected available=%v, got %v", want, body.Available)
		}
	}

	check(true)
	env.createBooking(t, ts.URL, day(11), day(13))
	check(false)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/availability?room_id=1&check_in=tomorrow&check_out="+day(2), nil, nil)
	expectErrorCode(t, resp, http.StatusBadRequest, "validation")

	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/availability?room_id=%d&check_in=%s&check_out=%s", ts.URL, env.room.ID, day(5), day(5)), nil, nil)
	expectErrorCode(t, resp, http.StatusBadRequest, "invalid_date_range")
}

func TestCreateBookingErrors(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t, openAPIConfig())
	env.createBooking(t, ts.URL, day(10), day(12))

	cases := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"Overlap", map[string]any{"customer_id": 8, "room_id": env.room.ID, "check_in": day(11), "check_out": day(14), "guests": 1}, http.StatusConflict, "room_unavailable"},
		{"BadDate", map[string]any{"customer_id": 8, "room_id": env.room.ID, "check_in": "20-01-2030", "check_out": day(14), "guests": 1}, http.StatusBadRequest, "validation"},
		{"UnknownField", map[string]any{"customer_id": 8, "room": "101"}, http.StatusBadRequest, "validation"},
		{"Reversed", map[string]any{"customer_id": 8, "room_id": env.room.ID, "check_in": day(20), "check_out": day(18), "guests": 1}, http.StatusBadRequest, "invalid_date_range"},
		{"TooLong", map[string]any{"customer_id": 8, "room_id": env.room.ID, "check_in": day(40), "check_out": day(80), "guests": 1}, http.StatusBadRequest, "invalid_stay_length"},
		{"UnknownRoom", map[string]any{"customer_id": 8, "room_id": 999, "check_in": day(20), "check_out": day(22), "guests": 1}, http.StatusNotFound, "room_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/bookings", tc.body, nil)
			expectErrorCode(t, resp, tc.status, tc.code)
		})
	}
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t, openAPIConfig())
	b := env.createBooking(t, ts.URL, day(0), day(2))
	base := fmt.Sprintf("%s/api/v1/bookings/%d", ts.URL, b.ID)

	resp := doJSON(t, http.MethodGet, base, nil, nil)
	expectStatus(t, resp, http.StatusOK)
	var got models.Booking
	decodeBody(t, resp, &got)
	if got.Status != models.BookingConfirmed || got.TotalPrice != 200 {
		t.Fatalf("unexpected booking: status=%s total=%v", got.Status, got.TotalPrice)
	}

	resp = doJSON(t, http.MethodPost, base+"/check-in", map[string]any{"notes": "late arrival"}, nil)
	expectStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &got)
	if got.Status != models.BookingCheckedIn {
		t.Fatalf("expected checked_in, got %s", got.Status)
	}

	resp = doJSON(t, http.MethodPost, base+"/check-in", nil, nil)
	expectErrorCode(t, resp, http.StatusConflict, "already_checked_in")

	room, err := env.svc.Inventory.GetRoom(context.Background(), env.room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if room.Status != models.RoomOccupied {
		t.Fatalf("expected room occupied, got %s", room.Status)
	}

	resp = doJSON(t, http.MethodPost, base+"/check-out", map[string]any{"additional_charges": 15.5}, nil)
	expectStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &got)
	if got.Status != models.BookingCheckedOut {
		t.Fatalf("expected checked_out, got %s", got.Status)
	}

	resp = doJSON(t, http.MethodPost, base+"/check-out", nil, nil)
	expectErrorCode(t, resp, http.StatusConflict, "invalid_transition")

	resp = doJSON(t, http.MethodGet, base+"/payments", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	var payments struct {
		Payments []models.Payment `json:"payments"`
	}
	decodeBody(t, resp, &payments)
	if len(payments.Payments) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(payments.Payments))
	}

	resp = doJSON(t, http.MethodPut, base+"/status", map[string]any{"status": "Confirmed"}, nil)
	expectStatus(t, resp, http.StatusOK)
	resp = doJSON(t, http.MethodPut, base+"/status", map[string]any{"status": "lost"}, nil)
	expectErrorCode(t, resp, http.StatusBadRequest, "validation")

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/bookings/999", nil, nil)
	expectErrorCode(t, resp, http.StatusNotFound, "not_found")
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/bookings/abc", nil, nil)
	expectErrorCode(t, resp, http.StatusBadRequest, "validation")
}

func TestRefundFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t, openAPIConfig())
	b := env.createBooking(t, ts.URL, day(10), day(12))

	cancelURL := fmt.Sprintf("%s/api/v1/bookings/%d/cancellation", ts.URL, b.ID)
	resp := doJSON(t, http.MethodPost, cancelURL, map[string]any{"customer_id": 8, "reason": "plans changed"}, nil)
	expectErrorCode(t, resp, http.StatusForbidden, "not_owner")

	resp = doJSON(t, http.MethodPost, cancelURL, map[string]any{"customer_id": 7, "reason": "plans changed"}, nil)
	expectStatus(t, resp, http.StatusAccepted)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/customers/7/bookings", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	var lists struct {
		Bookings []service.CustomerBooking `json:"bookings"`
		Travel   []service.CustomerTravel  `json:"travel"`
	}
	decodeBody(t, resp, &lists)
	if len(lists.Bookings) != 1 || lists.Bookings[0].RefundLabel != models.RefundLabelPending {
		t.Fatalf("expected one pending refund, got %+v", lists.Bookings)
	}

	approveURL := fmt.Sprintf("%s/api/v1/refunds/booking/%d/approve", ts.URL, b.ID)
	resp = doJSON(t, http.MethodPost, approveURL, nil, nil)
	expectStatus(t, resp, http.StatusOK)
	var decision service.RefundDecision
	decodeBody(t, resp, &decision)
	if decision.Label != models.RefundLabelApproved || decision.Booking.Status != models.BookingCancelled {
		t.Fatalf("unexpected decision: %+v", decision)
	}

	resp = doJSON(t, http.MethodPost, approveURL, nil, nil)
	expectErrorCode(t, resp, http.StatusConflict, "already_refunded")

	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/refunds/hotel/%d/decline", ts.URL, b.ID), nil, nil)
	expectErrorCode(t, resp, http.StatusBadRequest, "invalid_type")
}

func TestTravelOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t, openAPIConfig())

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/travel-bookings", map[string]any{
		"customer_id": 7, "attraction_name": "Zoo", "travel_date": day(1), "guests": 2, "total_price": 30,
	}, nil)
	expectStatus(t, resp, http.StatusCreated)
	var tb models.TravelBooking
	decodeBody(t, resp, &tb)

	refundURL := fmt.Sprintf("%s/api/v1/travel-bookings/%d/refund", ts.URL, tb.ID)
	resp = doJSON(t, http.MethodPost, refundURL, map[string]any{"customer_id": 7, "reason": "rain"}, nil)
	expectErrorCode(t, resp, http.StatusConflict, "too_close_to_travel_date")

	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/travel-bookings/%d", ts.URL, tb.ID), nil, nil)
	expectStatus(t, resp, http.StatusOK)

	resp = doJSON(t, http.MethodPut, fmt.Sprintf("%s/api/v1/travel-bookings/%d/status", ts.URL, tb.ID), map[string]any{"status": "confirmed"}, nil)
	expectStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &tb)
	if tb.Status != models.TravelConfirmed {
		t.Fatalf("expected confirmed, got %s", tb.Status)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/v1/travel-bookings", map[string]any{"customer_id": 7, "travel_date": day(3)}, nil)
	expectErrorCode(t, resp, http.StatusBadRequest, "validation")
}

func TestReceptionEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t, openAPIConfig())
	env.createBooking(t, ts.URL, day(0), day(2))

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/reception/bookings?status=confirmed", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	var list struct {
		Bookings []models.Booking `json:"bookings"`
	}
	decodeBody(t, resp, &list)
	if len(list.Bookings) != 1 {
		t.Fatalf("expected 1 confirmed booking, got %d", len(list.Bookings))
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/reception/bookings?status=checked_in", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	decodeBody(t, resp, &list)
	if len(list.Bookings) != 0 {
		t.Fatalf("expected no checked-in bookings, got %d", len(list.Bookings))
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/reception/bookings?status=lost", nil, nil)
	expectErrorCode(t, resp, http.StatusBadRequest, "validation")
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/reception/bookings?refund_requested=maybe", nil, nil)
	expectErrorCode(t, resp, http.StatusBadRequest, "validation")

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/reception/dashboard", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	var dash models.Dashboard
	decodeBody(t, resp, &dash)
	if dash.ArrivalsToday != 1 {
		t.Fatalf("expected 1 arrival today, got %d", dash.ArrivalsToday)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/reception/checked-in", nil, nil)
	expectStatus(t, resp, http.StatusOK)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/v1/reception/sweep", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	var report models.SweepReport
	decodeBody(t, resp, &report)
	if report.Closed != 0 || report.Failed != 0 {
		t.Fatalf("expected empty sweep, got %+v", report)
	}
}

func TestInventoryEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t, openAPIConfig())

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/room-types", map[string]any{"name": "Suite", "base_price": 250, "max_occupancy": 4}, nil)
	expectStatus(t, resp, http.StatusCreated)
	var rt models.RoomType
	decodeBody(t, resp, &rt)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/v1/rooms", map[string]any{"number": "401", "room_type_id": rt.ID, "floor": 4}, nil)
	expectStatus(t, resp, http.StatusCreated)
	var room models.Room
	decodeBody(t, resp, &room)
	if room.Status != models.RoomAvailable {
		t.Fatalf("expected new room available, got %s", room.Status)
	}

	resp = doJSON(t, http.MethodPut, fmt.Sprintf("%s/api/v1/rooms/%d/status", ts.URL, room.ID), map[string]any{"status": "maintenance"}, nil)
	expectStatus(t, resp, http.StatusOK)
	resp = doJSON(t, http.MethodPut, fmt.Sprintf("%s/api/v1/rooms/%d/status", ts.URL, room.ID), map[string]any{"status": "occupied"}, nil)
	expectErrorCode(t, resp, http.StatusConflict, "invalid_transition")

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/rooms", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	var rooms struct {
		Rooms []models.Room `json:"rooms"`
	}
	decodeBody(t, resp, &rooms)
	if len(rooms.Rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms.Rooms))
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/rooms/by-number/401", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	var byNumber models.Room
	decodeBody(t, resp, &byNumber)
	if byNumber.ID != room.ID {
		t.Fatalf("expected room %d, got %d", room.ID, byNumber.ID)
	}
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/rooms/by-number/999", nil, nil)
	expectErrorCode(t, resp, http.StatusNotFound, "room_not_found")

	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/v1/room-types/%d", ts.URL, rt.ID), nil, nil)
	expectErrorCode(t, resp, http.StatusConflict, "room_type_in_use")

	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/v1/rooms/%d", ts.URL, room.ID), nil, nil)
	expectStatus(t, resp, http.StatusNoContent)
	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/v1/room-types/%d", ts.URL, rt.ID), nil, nil)
	expectStatus(t, resp, http.StatusNoContent)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/room-types", nil, nil)
	expectStatus(t, resp, http.StatusOK)
}

type stubSideTasks struct {
	tasks []models.SyncTask
}

func (s stubSideTasks) FailedTasks(context.Context) ([]models.SyncTask, error) {
	return s.tasks, nil
}

func TestFailedSideTasksEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ts := env.server(t, openAPIConfig())

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/reception/side-tasks/failed", nil, nil)
	expectErrorCode(t, resp, http.StatusServiceUnavailable, "unavailable")

	lastError := "telegram send: chat not found"
	env.svc.SideTasks = stubSideTasks{tasks: []models.SyncTask{
		{ID: 3, TaskType: models.SideTaskNotify, BookingID: 1, Status: models.TaskFailed, LastError: &lastError},
	}}
	ts = env.server(t, openAPIConfig())

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/reception/side-tasks/failed", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	var body struct {
		Tasks []models.SyncTask `json:"tasks"`
		Count int               `json:"count"`
	}
	decodeBody(t, resp, &body)
	if body.Count != 1 || len(body.Tasks) != 1 || body.Tasks[0].ID != 3 {
		t.Fatalf("unexpected failed tasks %+v", body)
	}
}
