package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"innkeeper/internal/domain"
	"innkeeper/internal/models"
	"innkeeper/internal/service"
)

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", domain.ErrValidation, name)
	}
	return id, nil
}

func parseDateField(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", domain.ErrValidation, field)
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid %s; expected YYYY-MM-DD", domain.ErrValidation, field)
	}
	return d, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roomID, err := strconv.ParseInt(q.Get("room_id"), 10, 64)
	if err != nil || roomID <= 0 {
		s.writeDomainError(w, r, fmt.Errorf("%w: room_id is required", domain.ErrValidation))
		return
	}
	checkIn, err := parseDateField("check_in", q.Get("check_in"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	checkOut, err := parseDateField("check_out", q.Get("check_out"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	available, err := s.svc.Bookings.CheckAvailability(r.Context(), roomID, checkIn, checkOut)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room_id":   roomID,
		"check_in":  checkIn.Format(models.DateLayout),
		"check_out": checkOut.Format(models.DateLayout),
		"available": available,
	})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CustomerID      int64  `json:"customer_id"`
		RoomID          int64  `json:"room_id"`
		CheckIn         string `json:"check_in"`
		CheckOut        string `json:"check_out"`
		Guests          int    `json:"guests"`
		PaymentMethod   string `json:"payment_method"`
		SpecialRequests string `json:"special_requests"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	checkIn, err := parseDateField("check_in", body.CheckIn)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	checkOut, err := parseDateField("check_out", body.CheckOut)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	res, err := s.svc.Bookings.CreateBooking(r.Context(), service.CreateBookingRequest{
		CustomerID:      body.CustomerID,
		RoomID:          body.RoomID,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		Guests:          body.Guests,
		PaymentMethod:   body.PaymentMethod,
		SpecialRequests: body.SpecialRequests,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	b, err := s.svc.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var req service.CheckInRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	req.Actor = actorFrom(r.Context())

	b, err := s.svc.Bookings.CheckIn(r.Context(), id, req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var req service.CheckOutRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	req.Actor = actorFrom(r.Context())

	b, err := s.svc.Bookings.CheckOut(r.Context(), id, req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type statusBody struct {
	Status string `json:"status"`
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var body statusBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	b, err := s.svc.Bookings.UpdateStatus(r.Context(), id, body.Status, actorFrom(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type refundRequestBody struct {
	CustomerID int64  `json:"customer_id"`
	Reason     string `json:"reason"`
}

func (s *HTTPServer) handleRequestCancellation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var body refundRequestBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	b, err := s.svc.Refunds.RequestCancellation(r.Context(), id, body.CustomerID, body.Reason)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, b)
}

func (s *HTTPServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	entries, err := s.svc.Bookings.ListAudit(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit": entries})
}

func (s *HTTPServer) handlePayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	payments, err := s.svc.Bookings.ListPayments(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

func (s *HTTPServer) handleCustomerBookings(w http.ResponseWriter, r *http.Request) {
	customerID, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	bookings, err := s.svc.Bookings.ListForCustomer(r.Context(), customerID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	travel, err := s.svc.Travel.ListForCustomer(r.Context(), customerID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings, "travel": travel})
}

func (s *HTTPServer) handleCreateTravel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CustomerID     int64   `json:"customer_id"`
		AttractionName string  `json:"attraction_name"`
		TravelDate     string  `json:"travel_date"`
		Guests         int     `json:"guests"`
		TotalPrice     float64 `json:"total_price"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	travelDate, err := parseDateField("travel_date", body.TravelDate)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	tb, err := s.svc.Travel.Create(r.Context(), service.CreateTravelRequest{
		CustomerID:     body.CustomerID,
		AttractionName: body.AttractionName,
		TravelDate:     travelDate,
		Guests:         body.Guests,
		TotalPrice:     body.TotalPrice,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tb)
}

func (s *HTTPServer) handleGetTravel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	tb, err := s.svc.Travel.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tb)
}

func (s *HTTPServer) handleTravelStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var body statusBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	tb, err := s.svc.Travel.UpdateStatus(r.Context(), id, body.Status, actorFrom(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tb)
}

func (s *HTTPServer) handleRequestTravelRefund(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var body refundRequestBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	tb, err := s.svc.Refunds.RequestTravelRefund(r.Context(), id, body.CustomerID, body.Reason)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, tb)
}

func (s *HTTPServer) handleApproveRefund(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	decision, err := s.svc.Refunds.ApproveRefund(r.Context(), id, r.PathValue("type"), actorFrom(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

func (s *HTTPServer) handleDeclineRefund(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	decision, err := s.svc.Refunds.DeclineRefund(r.Context(), id, r.PathValue("type"), body.Reason, actorFrom(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// receptionFilter reads status, room_id, from, to, refund_requested and limit.
func receptionFilter(r *http.Request) (models.BookingFilter, error) {
	q := r.URL.Query()
	var f models.BookingFilter

	for _, raw := range splitCSV(q.Get("status")) {
		st, err := models.ParseBookingStatus(raw)
		if err != nil {
			return f, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		f.Statuses = append(f.Statuses, st)
	}
	if raw := q.Get("room_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return f, fmt.Errorf("%w: invalid room_id", domain.ErrValidation)
		}
		f.RoomID = id
	}
	if raw := q.Get("from"); raw != "" {
		d, err := parseDateField("from", raw)
		if err != nil {
			return f, err
		}
		f.From = d
	}
	if raw := q.Get("to"); raw != "" {
		d, err := parseDateField("to", raw)
		if err != nil {
			return f, err
		}
		f.To = d
	}
	if raw := q.Get("refund_requested"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("%w: invalid refund_requested", domain.ErrValidation)
		}
		f.RefundRequested = &v
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return f, fmt.Errorf("%w: invalid limit", domain.ErrValidation)
		}
		f.Limit = n
	}
	return f, nil
}

func (s *HTTPServer) handleReceptionBookings(w http.ResponseWriter, r *http.Request) {
	filter, err := receptionFilter(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	bookings, err := s.svc.Bookings.ListForReception(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleCheckedIn(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.svc.Bookings.CheckedIn(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Bookings.Dashboard(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *HTTPServer) handleSweep(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Bookings.SweepOverdue(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleFailedSideTasks(w http.ResponseWriter, r *http.Request) {
	if s.svc.SideTasks == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "side worker is not running")
		return
	}
	tasks, err := s.svc.SideTasks.FailedTasks(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []models.SyncTask{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

func (s *HTTPServer) handleListRoomTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.svc.Inventory.ListRoomTypes(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room_types": types})
}

func (s *HTTPServer) handleCreateRoomType(w http.ResponseWriter, r *http.Request) {
	var rt models.RoomType
	if err := decodeJSON(r, &rt); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	rt.ID = 0
	if err := s.svc.Inventory.CreateRoomType(r.Context(), &rt); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rt)
}

func (s *HTTPServer) handleDeleteRoomType(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := s.svc.Inventory.DeleteRoomType(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.svc.Inventory.ListRooms(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *HTTPServer) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var room models.Room
	if err := decodeJSON(r, &room); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	room.ID = 0
	if err := s.svc.Inventory.CreateRoom(r.Context(), &room); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (s *HTTPServer) handleRoomByNumber(w http.ResponseWriter, r *http.Request) {
	room, err := s.svc.Inventory.GetRoomByNumber(r.Context(), r.PathValue("number"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *HTTPServer) handleRoomStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var body statusBody
	if err := decodeJSON(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	room, err := s.svc.Inventory.SetRoomStatus(r.Context(), id, body.Status, actorFrom(r.Context()))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *HTTPServer) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := s.svc.Inventory.DeleteRoom(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
