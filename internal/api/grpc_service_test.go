package api

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"testing"
	"time"

	"innkeeper/internal/config"
	"innkeeper/internal/domain"
	"innkeeper/internal/models"
	"innkeeper/internal/service"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func dialBufconn(t *testing.T, env *testEnv, cfg config.APIConfig) *grpc.ClientConn {
	t.Helper()
	logger := zerolog.New(io.Discard)
	srv, err := newGRPCServer(&cfg, env.svc, &logger)
	if err != nil {
		t.Fatalf("new grpc server: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func mustDate(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := models.ParseDate(raw)
	if err != nil {
		t.Fatalf("parse date %q: %v", raw, err)
	}
	return d
}

func invoke(t *testing.T, ctx context.Context, conn *grpc.ClientConn, method string, in map[string]any) (*structpb.Struct, error) {
	t.Helper()
	req, err := structpb.NewStruct(in)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	out := new(structpb.Struct)
	err = conn.Invoke(ctx, method, req, out)
	return out, err
}

func TestGRPCBookingService(t *testing.T) {
	env := newTestEnv(t)
	conn := dialBufconn(t, env, openAPIConfig())
	ctx := context.Background()

	out, err := invoke(t, ctx, conn, methodCheckAvailability, map[string]any{
		"room_id": float64(env.room.ID), "check_in": day(10), "check_out": day(12),
	})
	if err != nil {
		t.Fatalf("check availability: %v", err)
	}
	if !out.GetFields()["available"].GetBoolValue() {
		t.Fatalf("expected room available")
	}

	res, err := env.svc.Bookings.CreateBooking(ctx, service.CreateBookingRequest{
		CustomerID: 7, RoomID: env.room.ID, CheckIn: mustDate(t, day(10)), CheckOut: mustDate(t, day(12)), Guests: 1,
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}

	out, err = invoke(t, ctx, conn, methodGetBooking, map[string]any{"id": float64(res.Booking.ID)})
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if got := out.GetFields()["confirmation_code"].GetStringValue(); got != res.Booking.ConfirmationCode {
		t.Fatalf("expected code %q, got %q", res.Booking.ConfirmationCode, got)
	}

	out, err = invoke(t, ctx, conn, methodListRooms, map[string]any{})
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if n := len(out.GetFields()["rooms"].GetListValue().GetValues()); n != 1 {
		t.Fatalf("expected 1 room, got %d", n)
	}

	out, err = invoke(t, ctx, conn, methodSweepOverdue, map[string]any{})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if closed := out.GetFields()["closed"].GetNumberValue(); closed != 0 {
		t.Fatalf("expected nothing closed, got %v", closed)
	}
}

func TestGRPCErrorCodes(t *testing.T) {
	env := newTestEnv(t)
	conn := dialBufconn(t, env, openAPIConfig())
	ctx := context.Background()

	cases := []struct {
		name   string
		method string
		in     map[string]any
		code   codes.Code
	}{
		{"MissingID", methodGetBooking, map[string]any{}, codes.InvalidArgument},
		{"UnknownBooking", methodGetBooking, map[string]any{"id": "404"}, codes.NotFound},
		{"BadDate", methodCheckAvailability, map[string]any{"room_id": 1.0, "check_in": "soon", "check_out": day(3)}, codes.InvalidArgument},
		{"FractionalID", methodGetBooking, map[string]any{"id": 3.7}, codes.InvalidArgument},
		{"HugeID", methodGetBooking, map[string]any{"id": 1e300}, codes.InvalidArgument},
		{"FractionalStringID", methodGetBooking, map[string]any{"id": "3.7"}, codes.InvalidArgument},
		{"ReversedDates", methodCheckAvailability, map[string]any{"room_id": 1.0, "check_in": day(3), "check_out": day(2)}, codes.InvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := invoke(t, ctx, conn, tc.method, tc.in)
			if got := status.Code(err); got != tc.code {
				t.Fatalf("expected %s, got %s (%v)", tc.code, got, err)
			}
		})
	}
}

func TestGRPCAuth(t *testing.T) {
	env := newTestEnv(t)
	conn := dialBufconn(t, env, authAPIConfig())

	_, err := invoke(t, context.Background(), conn, methodListRooms, map[string]any{})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "desk-key", "x-api-extra", "desk-extra")
	_, err = invoke(t, ctx, conn, methodListRooms, map[string]any{})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}

	var header metadata.MD
	req, _ := structpb.NewStruct(map[string]any{"id": 404.0})
	err = conn.Invoke(ctx, methodGetBooking, req, new(structpb.Struct), grpc.Header(&header))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if len(header.Get(requestIDMetadataKey)) == 0 {
		t.Fatalf("expected %s header", requestIDMetadataKey)
	}
}

func TestIntField(t *testing.T) {
	in, err := structpb.NewStruct(map[string]any{"whole": 42.0, "text": " 17 ", "nan": 0.0})
	if err != nil {
		t.Fatalf("build struct: %v", err)
	}
	in.Fields["nan"] = structpb.NewNumberValue(math.NaN())
	in.Fields["inf"] = structpb.NewNumberValue(math.Inf(1))

	if id, err := intField(in, "whole"); err != nil || id != 42 {
		t.Fatalf("whole: got %d, %v", id, err)
	}
	if id, err := intField(in, "text"); err != nil || id != 17 {
		t.Fatalf("text: got %d, %v", id, err)
	}
	for _, name := range []string{"nan", "inf", "missing"} {
		if _, err := intField(in, name); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestRPCErrorHidesInternalDetails(t *testing.T) {
	err := rpcError(io.ErrUnexpectedEOF)
	if status.Code(err) != codes.Internal || status.Convert(err).Message() != "internal error" {
		t.Fatalf("unexpected internal mapping: %v", err)
	}
	err = rpcError(domain.ErrRoomOccupied)
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
}
