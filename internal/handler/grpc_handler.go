package handler

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-plt-approvals/internal/domain"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/middleware"
	"github.com/pesio-ai/be-plt-approvals/internal/service"
)

// GRPCHandler implements approvals.v1.ApprovalService.
type GRPCHandler struct {
	approvals *service.ApprovalService
	workflows *service.WorkflowService
	logger    zerolog.Logger
}

var _ ApprovalServiceServer = (*GRPCHandler)(nil)

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(approvals *service.ApprovalService, workflows *service.WorkflowService, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		approvals: approvals,
		workflows: workflows,
		logger:    logger.With().Str("handler", "grpc").Logger(),
	}
}

type idMessage struct {
	ID string `json:"id"`
}

type updateWorkflowMessage struct {
	ID string `json:"id"`
	service.WorkflowInput
}

type actMessage struct {
	ID      string `json:"id"`
	Action  string `json:"action"`
	Comment string `json:"comment"`
}

// ── Workflows ─────────────────────────────────────────────────────────────────

func (h *GRPCHandler) CreateWorkflow(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var msg service.WorkflowInput
	if err := decodeStruct(in, &msg); err != nil {
		return nil, mapErrorToGRPC(err)
	}
	wf, err := h.workflows.Create(ctx, actorFrom(ctx), msg)
	return h.reply(wf, err)
}

func (h *GRPCHandler) ListWorkflows(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	list, err := h.workflows.List(ctx, actorFrom(ctx))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return h.reply(listResponse(list), nil)
}

func (h *GRPCHandler) GetWorkflow(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var msg idMessage
	if err := decodeStruct(in, &msg); err != nil {
		return nil, mapErrorToGRPC(err)
	}
	wf, err := h.workflows.Get(ctx, actorFrom(ctx), msg.ID)
	return h.reply(wf, err)
}

func (h *GRPCHandler) UpdateWorkflow(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var msg updateWorkflowMessage
	if err := decodeStruct(in, &msg); err != nil {
		return nil, mapErrorToGRPC(err)
	}
	wf, err := h.workflows.Update(ctx, actorFrom(ctx), msg.ID, msg.WorkflowInput)
	return h.reply(wf, err)
}

func (h *GRPCHandler) DeleteWorkflow(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var msg idMessage
	if err := decodeStruct(in, &msg); err != nil {
		return nil, mapErrorToGRPC(err)
	}
	if err := h.workflows.Delete(ctx, actorFrom(ctx), msg.ID); err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return h.reply(map[string]any{"id": msg.ID, "deleted": true}, nil)
}

// ── Requests ──────────────────────────────────────────────────────────────────

func (h *GRPCHandler) SubmitRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var msg service.SubmitInput
	if err := decodeStruct(in, &msg); err != nil {
		return nil, mapErrorToGRPC(err)
	}
	req, err := h.approvals.Submit(ctx, actorFrom(ctx), msg)
	return h.reply(req, err)
}

func (h *GRPCHandler) ActOnRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var msg actMessage
	if err := decodeStruct(in, &msg); err != nil {
		return nil, mapErrorToGRPC(err)
	}
	h.logger.Debug().
		Str("request_id", msg.ID).
		Str("action", msg.Action).
		Msg("gRPC ActOnRequest called")

	req, err := h.approvals.Act(ctx, actorFrom(ctx), msg.ID, domain.Action(msg.Action), msg.Comment)
	return h.reply(req, err)
}

func (h *GRPCHandler) ListRequests(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	list, err := h.approvals.ListForOrg(ctx, actorFrom(ctx))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return h.reply(listResponse(list), nil)
}

func (h *GRPCHandler) PendingRequests(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	list, err := h.approvals.PendingFor(ctx, actorFrom(ctx))
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return h.reply(listResponse(list), nil)
}

func (h *GRPCHandler) GetRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var msg idMessage
	if err := decodeStruct(in, &msg); err != nil {
		return nil, mapErrorToGRPC(err)
	}
	req, err := h.approvals.Get(ctx, actorFrom(ctx), msg.ID)
	return h.reply(req, err)
}

func (h *GRPCHandler) GetHistory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var msg idMessage
	if err := decodeStruct(in, &msg); err != nil {
		return nil, mapErrorToGRPC(err)
	}
	entries, err := h.approvals.History(ctx, actorFrom(ctx), msg.ID)
	if err != nil {
		return nil, mapErrorToGRPC(err)
	}
	return h.reply(listResponse(entries), nil)
}

// ── Conversion ────────────────────────────────────────────────────────────────

func (h *GRPCHandler) reply(v any, err error) (*structpb.Struct, error) {
	if err != nil {
		if status.Code(mapErrorToGRPC(err)) == codes.Internal {
			h.logger.Error().Err(err).Msg("gRPC call failed")
		}
		return nil, mapErrorToGRPC(err)
	}
	out, err := encodeStruct(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode gRPC response")
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

// decodeStruct maps a Struct onto dst through its JSON form.
func decodeStruct(in *structpb.Struct, dst any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	data, err := in.MarshalJSON()
	if err != nil {
		return errors.InvalidInput("body", "invalid request message")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errors.InvalidInput("body", "invalid request message")
	}
	return nil
}

func encodeStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// mapErrorToGRPC converts a service error to a gRPC status.
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	msg := err.Error()
	var e *errors.Error
	if errors.As(err, &e) {
		msg = e.Message
	}

	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		return status.Error(codes.NotFound, msg)
	case errors.ErrCodeValidation:
		return status.Error(codes.InvalidArgument, msg)
	case errors.ErrCodeUnauthenticated:
		return status.Error(codes.Unauthenticated, msg)
	case errors.ErrCodeNotAuthorized, errors.ErrCodeForbidden:
		return status.Error(codes.PermissionDenied, msg)
	case errors.ErrCodeInvalidState:
		return status.Error(codes.FailedPrecondition, msg)
	case errors.ErrCodeConflict:
		return status.Error(codes.Aborted, msg)
	case errors.ErrCodeUnavailable:
		return status.Error(codes.Unavailable, msg)
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func actorFrom(ctx context.Context) domain.Actor {
	actor, _ := middleware.ActorFromContext(ctx)
	return actor
}
