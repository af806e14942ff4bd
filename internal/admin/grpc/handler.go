package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/logicaldelete/internal/admin"
	"github.com/dmitrijs2005/logicaldelete/internal/auth"
	"github.com/dmitrijs2005/logicaldelete/internal/common"
	"github.com/dmitrijs2005/logicaldelete/internal/schema"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type request struct {
	model   string
	ids     []any
	confirm bool
}

func decodeRequest(in *structpb.Struct) (request, error) {
	f := in.GetFields()
	r := request{
		model:   f["model"].GetStringValue(),
		confirm: f["confirm"].GetBoolValue(),
	}
	if r.model == "" {
		return r, status.Error(codes.InvalidArgument, "model is required")
	}
	if ids := f["ids"].GetListValue(); ids != nil {
		r.ids = ids.AsSlice()
	}
	return r, nil
}

func operator(ctx context.Context) *auth.Claims {
	op, _ := auth.OperatorFromContext(ctx)
	return op
}

func (s *GRPCServer) ListDeleted(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeRequest(in)
	if err != nil {
		return nil, err
	}

	recs, err := s.site.List(ctx, operator(ctx), req.model, "1")
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	m, err := s.site.Model(req.model)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	records := make([]any, len(recs))
	for i, rec := range recs {
		records[i] = encodeRecord(m, rec)
	}
	return s.reply(ctx, map[string]any{"model": m.Name, "records": records})
}

func (s *GRPCServer) DeleteSelected(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeRequest(in)
	if err != nil {
		return nil, err
	}

	rep, err := s.site.DeleteSelected(ctx, operator(ctx), req.model, req.ids)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Deleted selected", "model", rep.Model, "count", rep.Count)
	return s.reply(ctx, encodeReport(rep))
}

func (s *GRPCServer) RestoreSelected(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeRequest(in)
	if err != nil {
		return nil, err
	}

	rep, err := s.site.RestoreSelected(ctx, operator(ctx), req.model, req.ids)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Restored selected", "model", rep.Model, "count", rep.Count)
	return s.reply(ctx, encodeReport(rep))
}

func (s *GRPCServer) DeleteCompletely(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeRequest(in)
	if err != nil {
		return nil, err
	}

	out, err := s.site.DeleteCompletely(ctx, operator(ctx), req.model, req.ids, req.confirm)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	if c := out.Confirmation; c != nil {
		return s.reply(ctx, map[string]any{"confirmation": map[string]any{
			"model":     c.Model,
			"templates": stringList(c.Templates),
			"ids":       c.Keys,
			"counts":    counts(c.Counts),
		}})
	}
	s.logger.Info(ctx, "Deleted completely", "model", out.Report.Model, "count", out.Report.Count)
	return s.reply(ctx, encodeReport(out.Report))
}

func (s *GRPCServer) reply(ctx context.Context, v map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(v)
	if err != nil {
		s.logger.Error(ctx, "encode reply", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

// toStatus maps domain errors onto gRPC codes. Unknown failures are logged
// and reported without detail.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrPermissionDenied):
		return status.Error(codes.PermissionDenied, "permission denied")
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrPrecondition), errors.Is(err, common.ErrFieldDoesNotExist):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrProtected):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, common.ErrConstraintConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	}
	s.logger.Error(ctx, err.Error())
	return status.Error(codes.Internal, "internal error")
}

func encodeReport(rep *admin.Report) map[string]any {
	return map[string]any{
		"model":        rep.Model,
		"count":        rep.Count,
		"counts":       counts(rep.Counts),
		"message":      rep.Message,
		"manifest_key": rep.ManifestKey,
	}
}

// encodeRecord renders rec by column name. Times travel as RFC 3339.
func encodeRecord(m *schema.Model, rec any) map[string]any {
	out := make(map[string]any, len(m.Fields))
	for _, f := range m.Fields {
		switch v := m.Scalar(rec, f).(type) {
		case nil, bool, string, int, int32, int64, uint32, uint64, float32, float64:
			out[f.Column] = v
		case time.Time:
			out[f.Column] = v.UTC().Format(time.RFC3339Nano)
		default:
			out[f.Column] = fmt.Sprint(v)
		}
	}
	return out
}

func counts(c map[string]int64) map[string]any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

func stringList(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
