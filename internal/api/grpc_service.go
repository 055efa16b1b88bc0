package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"innkeeper/internal/domain"
	"innkeeper/internal/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const bookingServiceName = "innkeeper.booking.v1.BookingService"

const (
	methodCheckAvailability = "/" + bookingServiceName + "/CheckAvailability"
	methodGetBooking        = "/" + bookingServiceName + "/GetBooking"
	methodListRooms         = "/" + bookingServiceName + "/ListRooms"
	methodSweepOverdue      = "/" + bookingServiceName + "/SweepOverdue"
)

// BookingServiceServer is the gRPC surface. Requests and replies are
// google.protobuf.Struct documents shaped like the HTTP JSON bodies.
type BookingServiceServer interface {
	CheckAvailability(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRooms(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SweepOverdue(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: bookingServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CheckAvailability", BookingServiceServer.CheckAvailability),
		unaryMethod("GetBooking", BookingServiceServer.GetBooking),
		unaryMethod("ListRooms", BookingServiceServer.ListRooms),
		unaryMethod("SweepOverdue", BookingServiceServer.SweepOverdue),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "innkeeper/booking/v1/booking.proto",
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&bookingServiceDesc, srv)
}

type structCall func(BookingServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call structCall) grpc.MethodDesc {
	fullMethod := "/" + bookingServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BookingServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(BookingServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// BookingRPC serves BookingServiceServer from the engine services.
type BookingRPC struct {
	svc Services
}

func NewBookingRPC(svc Services) *BookingRPC {
	return &BookingRPC{svc: svc}
}

func (s *BookingRPC) CheckAvailability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	roomID, err := intField(in, "room_id")
	if err != nil {
		return nil, rpcError(err)
	}
	checkIn, err := parseDateField("check_in", stringField(in, "check_in"))
	if err != nil {
		return nil, rpcError(err)
	}
	checkOut, err := parseDateField("check_out", stringField(in, "check_out"))
	if err != nil {
		return nil, rpcError(err)
	}

	available, err := s.svc.Bookings.CheckAvailability(ctx, roomID, checkIn, checkOut)
	if err != nil {
		return nil, rpcError(err)
	}
	return toStruct(map[string]any{
		"room_id":   roomID,
		"check_in":  checkIn.Format(models.DateLayout),
		"check_out": checkOut.Format(models.DateLayout),
		"available": available,
	})
}

func (s *BookingRPC) GetBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := intField(in, "id")
	if err != nil {
		return nil, rpcError(err)
	}
	b, err := s.svc.Bookings.GetBooking(ctx, id)
	if err != nil {
		return nil, rpcError(err)
	}
	return toStruct(b)
}

func (s *BookingRPC) ListRooms(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	rooms, err := s.svc.Inventory.ListRooms(ctx)
	if err != nil {
		return nil, rpcError(err)
	}
	return toStruct(map[string]any{"rooms": rooms})
}

func (s *BookingRPC) SweepOverdue(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	report, err := s.svc.Bookings.SweepOverdue(ctx)
	if err != nil {
		return nil, rpcError(err)
	}
	return toStruct(report)
}

func stringField(in *structpb.Struct, name string) string {
	v, ok := in.GetFields()[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.GetStringValue())
}

// maxExactInt is the largest integer a float64 holds without rounding.
const maxExactInt = 1 << 53

// intField accepts a JSON number or a decimal string.
func intField(in *structpb.Struct, name string) (int64, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", domain.ErrValidation, name)
	}
	var id int64
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != math.Trunc(n) || math.Abs(n) > maxExactInt {
			return 0, fmt.Errorf("%w: %s must be a whole number", domain.ErrValidation, name)
		}
		id = int64(n)
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(strings.TrimSpace(kind.StringValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid %s", domain.ErrValidation, name)
		}
		id = n
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", domain.ErrValidation, name)
	}
	return id, nil
}

// toStruct converts v through its JSON form so replies match the HTTP bodies.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	return out, nil
}

func rpcError(err error) error {
	_, code := classify(err)
	if code == codes.Internal {
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}
