package handler

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/errors"
	"github.com/pesio-ai/be-rp-allocations/internal/service"
)

// ApprovalServiceName is the fully qualified gRPC service name.
const ApprovalServiceName = "rp.allocations.v1.ApprovalService"

// GRPCHandler serves the approval workflow over gRPC. Requests and replies
// are google.protobuf.Struct documents carrying the same JSON shapes as the
// HTTP API.
type GRPCHandler struct {
	actuals   *service.ActualsService
	approvals *service.ApprovalService
	logger    zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(actuals *service.ActualsService, approvals *service.ApprovalService, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		actuals:   actuals,
		approvals: approvals,
		logger:    logger.With().Str("handler", "grpc").Logger(),
	}
}

// Register attaches the service to s.
func (h *GRPCHandler) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&approvalServiceDesc, h)
}

type approvalServer interface {
	call(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error)
}

var approvalServiceDesc = grpc.ServiceDesc{
	ServiceName: ApprovalServiceName,
	HandlerType: (*approvalServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Inbox"),
		unary("GetApproval"),
		unary("GetApprovalHistory"),
		unary("ApproveStep"),
		unary("RejectStep"),
		unary("ProxyApproveDirectorStep"),
		unary("SignActual"),
		unary("ProxySignActual"),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rp/allocations/v1/approval.proto",
}

func unary(method string) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(approvalServer)
			if interceptor == nil {
				return s.call(ctx, method, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ApprovalServiceName + "/" + method,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return s.call(ctx, method, req.(*structpb.Struct))
			})
		},
	}
}

func (h *GRPCHandler) call(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	u, ok := userFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "caller identity is missing")
	}

	h.logger.Debug().
		Str("method", method).
		Str("user_id", u.ID).
		Msg("gRPC call")

	var (
		out any
		err error
	)
	switch method {
	case "Inbox":
		var inbox *service.Inbox
		inbox, err = h.approvals.ListInbox(ctx, u)
		if err == nil {
			out = map[string]any{
				"pending":          inboxItems(inbox.Pending),
				"proxy_approvable": inboxItems(inbox.ProxyApprovable),
			}
		}
	case "GetApproval":
		out, err = h.approvals.GetApprovalByID(ctx, u.TenantID, field(req, "instance_id"))
	case "GetApprovalHistory":
		entries, herr := h.approvals.GetApprovalHistory(ctx, u.TenantID, field(req, "instance_id"))
		out, err = map[string]any{"history": orEmpty(entries)}, herr
	case "ApproveStep":
		out, err = h.approvals.ApproveStep(ctx, u, field(req, "instance_id"), field(req, "step_id"), optionalField(req, "comment"))
	case "RejectStep":
		out, err = h.approvals.RejectStep(ctx, u, field(req, "instance_id"), field(req, "step_id"), optionalField(req, "comment"))
	case "ProxyApproveDirectorStep":
		out, err = h.approvals.ProxyApproveDirectorStep(ctx, u, field(req, "instance_id"), field(req, "step_id"), field(req, "explanation"))
	case "SignActual":
		line, inst, serr := h.actuals.Sign(ctx, u, field(req, "actual_line_id"))
		out, err = map[string]any{"actual_line": line, "approval": inst}, serr
	case "ProxySignActual":
		line, inst, serr := h.actuals.ProxySign(ctx, u, field(req, "actual_line_id"), field(req, "reason"))
		out, err = map[string]any{"actual_line": line, "approval": inst}, serr
	default:
		return nil, status.Errorf(codes.Unimplemented, "method %s not implemented", method)
	}
	if err != nil {
		return nil, h.mapErrorToGRPC(method, err)
	}
	return toStruct(out)
}

func field(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

func optionalField(req *structpb.Struct, name string) *string {
	v, ok := req.GetFields()[name]
	if !ok {
		return nil
	}
	s := v.GetStringValue()
	return &s
}

// toStruct converts a JSON-tagged value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	m := map[string]any{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return s, nil
}

// IdentityInterceptor resolves the caller from incoming metadata for the
// approval service. Other services such as health pass through.
func IdentityInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ApprovalServiceName+"/") {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		get := func(k string) string {
			if v := md.Get(strings.ToLower(k)); len(v) > 0 {
				return v[0]
			}
			return ""
		}
		u, err := resolveUser(get(HeaderTenantID), get(HeaderUserID), get(HeaderUserRole))
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(withUser(ctx, u), req)
	}
}

// GRPCCode maps an error code to its gRPC status code.
func GRPCCode(code errors.Code) codes.Code {
	switch code {
	case errors.ErrCodeNotFound:
		return codes.NotFound
	case errors.ErrCodeInvalidInput,
		errors.ErrCodeDemandXor,
		errors.ErrCodeFteInvalid,
		errors.ErrCodePlaceholderBlocked4MFC,
		errors.ErrCodeExplanationRequired,
		errors.ErrCodeActualsOver100:
		return codes.InvalidArgument
	case errors.ErrCodeUnauthorized:
		return codes.Unauthenticated
	case errors.ErrCodeForbidden, errors.ErrCodeNotApprover:
		return codes.PermissionDenied
	case errors.ErrCodeConflict:
		return codes.Aborted
	case errors.ErrCodePeriodLocked,
		errors.ErrCodeActualsLocked,
		errors.ErrCodeInvalidTransition,
		errors.ErrCodeStepNotPending,
		errors.ErrCodeStepOutOfOrder,
		errors.ErrCodeApproverNotConfigured:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// mapErrorToGRPC converts a service error into a gRPC status. The message
// starts with the domain code; extras travel as a Struct detail.
func (h *GRPCHandler) mapErrorToGRPC(method string, err error) error {
	gc := GRPCCode(errors.CodeOf(err))
	if gc == codes.Internal {
		h.logger.Error().Err(err).Str("method", method).Msg("gRPC call failed")
		return status.Error(codes.Internal, "internal error")
	}
	e, ok := errors.As(err)
	if !ok {
		return status.Error(gc, err.Error())
	}
	st := status.New(gc, string(e.Code)+": "+e.Message)
	if len(e.Extras) == 0 {
		return st.Err()
	}
	extras, serr := toStruct(e.Extras)
	if serr != nil {
		return st.Err()
	}
	if detailed, derr := st.WithDetails(protoadapt.MessageV1Of(extras)); derr == nil {
		st = detailed
	}
	return st.Err()
}
