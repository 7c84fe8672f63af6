package grpc

import (
	"context"

	"google.golang.org/grpc"

	"rentloop-backend/internal/domain"
	"rentloop-backend/internal/lifecycle"
	"rentloop-backend/internal/service"
)

const OrderServiceName = "rentloop.v1.OrderService"

// OrderServiceServer is the server API for rentloop.v1.OrderService.
type OrderServiceServer interface {
	CreateOrder(context.Context, *CreateOrderRequest) (*OrderResponse, error)
	ExecuteAction(context.Context, *ExecuteActionRequest) (*OrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*OrderResponse, error)
	ListActivityLog(context.Context, *ListActivityLogRequest) (*ListActivityLogResponse, error)
	GetAvailableActions(context.Context, *GetAvailableActionsRequest) (*GetAvailableActionsResponse, error)
	ListMilestones(context.Context, *ListMilestonesRequest) (*ListMilestonesResponse, error)
	PayMilestone(context.Context, *PayMilestoneRequest) (*PayMilestoneResponse, error)
}

type OrderHandler struct {
	orders     service.OrderService
	milestones service.MilestoneService
}

func NewOrderHandler(orders service.OrderService, milestones service.MilestoneService) *OrderHandler {
	return &OrderHandler{orders: orders, milestones: milestones}
}

// partyOrder loads the order and checks the caller is its renter or owner.
func (h *OrderHandler) partyOrder(ctx context.Context, orderID string) (*domain.RentalOrder, string, error) {
	userID, err := GetUserIDFromContext(ctx)
	if err != nil {
		return nil, "", err
	}
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, "", toStatus(err)
	}
	if lifecycle.RoleOf(order, userID) == domain.RoleNone {
		return nil, "", toStatus(domain.ErrRoleMismatch)
	}
	return order, userID, nil
}

func (h *OrderHandler) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	userID, err := GetUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.orders.CheckEligibility(ctx, userID); err != nil {
		return nil, toStatus(err)
	}
	order, err := h.orders.CreateOrder(ctx, domain.CreateOrderInput{
		ListingID:     req.ListingID,
		RenterID:      userID,
		OwnerID:       req.OwnerID,
		Pricing:       req.Pricing,
		StartAt:       req.StartAt,
		EndAt:         req.EndAt,
		PaymentMethod: req.PaymentMethod,
		IsRecurring:   req.IsRecurring,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &OrderResponse{Order: order}, nil
}

func (h *OrderHandler) ExecuteAction(ctx context.Context, req *ExecuteActionRequest) (*OrderResponse, error) {
	userID, err := GetUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	order, err := h.orders.ExecuteAction(ctx, req.OrderID, req.Action, userID, req.Payload)
	if err != nil {
		return nil, toStatus(err)
	}
	return &OrderResponse{Order: order}, nil
}

func (h *OrderHandler) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderResponse, error) {
	order, _, err := h.partyOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	return &OrderResponse{Order: order}, nil
}

func (h *OrderHandler) ListActivityLog(ctx context.Context, req *ListActivityLogRequest) (*ListActivityLogResponse, error) {
	if _, _, err := h.partyOrder(ctx, req.OrderID); err != nil {
		return nil, err
	}
	entries, err := h.orders.ListActivityLog(ctx, req.OrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListActivityLogResponse{Entries: entries}, nil
}

func (h *OrderHandler) GetAvailableActions(ctx context.Context, req *GetAvailableActionsRequest) (*GetAvailableActionsResponse, error) {
	order, userID, err := h.partyOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	return &GetAvailableActionsResponse{Actions: lifecycle.AvailableActions(order, userID)}, nil
}

func (h *OrderHandler) ListMilestones(ctx context.Context, req *ListMilestonesRequest) (*ListMilestonesResponse, error) {
	if _, _, err := h.partyOrder(ctx, req.OrderID); err != nil {
		return nil, err
	}
	milestones, err := h.milestones.ListMilestones(ctx, req.OrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListMilestonesResponse{Milestones: milestones}, nil
}

func (h *OrderHandler) PayMilestone(ctx context.Context, req *PayMilestoneRequest) (*PayMilestoneResponse, error) {
	userID, err := GetUserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	milestone, err := h.milestones.PayMilestone(ctx, req.MilestoneID, userID, req.TransactionID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &PayMilestoneResponse{Milestone: milestone}, nil
}

// RegisterOrderServiceServer registers srv on s. Requests and responses use the JSON codec.
func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(OrderServiceServer, context.Context, *Req) (*Resp, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + OrderServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// OrderServiceDesc is the grpc.ServiceDesc for rentloop.v1.OrderService.
var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: OrderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateOrder", Handler: unaryHandler("CreateOrder", OrderServiceServer.CreateOrder)},
		{MethodName: "ExecuteAction", Handler: unaryHandler("ExecuteAction", OrderServiceServer.ExecuteAction)},
		{MethodName: "GetOrder", Handler: unaryHandler("GetOrder", OrderServiceServer.GetOrder)},
		{MethodName: "ListActivityLog", Handler: unaryHandler("ListActivityLog", OrderServiceServer.ListActivityLog)},
		{MethodName: "GetAvailableActions", Handler: unaryHandler("GetAvailableActions", OrderServiceServer.GetAvailableActions)},
		{MethodName: "ListMilestones", Handler: unaryHandler("ListMilestones", OrderServiceServer.ListMilestones)},
		{MethodName: "PayMilestone", Handler: unaryHandler("PayMilestone", OrderServiceServer.PayMilestone)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rentloop/v1/order_service.json",
}

// OrderServiceClient calls rentloop.v1.OrderService with the JSON codec.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in interface{}, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+OrderServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, "CreateOrder", in, opts)
}

func (c *OrderServiceClient) ExecuteAction(ctx context.Context, in *ExecuteActionRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, "ExecuteAction", in, opts)
}

func (c *OrderServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c.cc, "GetOrder", in, opts)
}

func (c *OrderServiceClient) ListActivityLog(ctx context.Context, in *ListActivityLogRequest, opts ...grpc.CallOption) (*ListActivityLogResponse, error) {
	return invoke[ListActivityLogResponse](ctx, c.cc, "ListActivityLog", in, opts)
}

func (c *OrderServiceClient) GetAvailableActions(ctx context.Context, in *GetAvailableActionsRequest, opts ...grpc.CallOption) (*GetAvailableActionsResponse, error) {
	return invoke[GetAvailableActionsResponse](ctx, c.cc, "GetAvailableActions", in, opts)
}

func (c *OrderServiceClient) ListMilestones(ctx context.Context, in *ListMilestonesRequest, opts ...grpc.CallOption) (*ListMilestonesResponse, error) {
	return invoke[ListMilestonesResponse](ctx, c.cc, "ListMilestones", in, opts)
}

func (c *OrderServiceClient) PayMilestone(ctx context.Context, in *PayMilestoneRequest, opts ...grpc.CallOption) (*PayMilestoneResponse, error) {
	return invoke[PayMilestoneResponse](ctx, c.cc, "PayMilestone", in, opts)
}
