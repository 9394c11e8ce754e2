package log

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	crerrors "github.com/YuminosukeSato/creditrisk/pkg/errors"
)

// errorHandler enriches records that carry an ErrAttr with the error's kind
// and, when cockroachdb/errors recorded one, its stack.
type errorHandler struct {
	next slog.Handler
}

// WithErrorDetails wraps next. SetupLoggerWithWriter installs it on the
// default slog logger.
func WithErrorDetails(next slog.Handler) slog.Handler {
	return &errorHandler{next: next}
}

func (h *errorHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h *errorHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	r.Attrs(func(a slog.Attr) bool {
		if a.Key != ErrAttrKey {
			return true
		}
		err, _ = a.Value.Any().(error)
		return false
	})
	if err == nil {
		return h.next.Handle(ctx, r)
	}

	r.AddAttrs(slog.String(ErrorKindKey, ErrorKind(err)))
	if st := stackOf(err); st != "" {
		r.AddAttrs(slog.String(StacktraceAttrKey, st))
	}
	return h.next.Handle(ctx, r)
}

func (h *errorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &errorHandler{next: h.next.WithAttrs(attrs)}
}

func (h *errorHandler) WithGroup(g string) slog.Handler {
	return &errorHandler{next: h.next.WithGroup(g)}
}

// ErrorKind classifies err into the categories the CLI and server report.
func ErrorKind(err error) string {
	var (
		dimErr   *crerrors.DimensionError
		valErr   *crerrors.ValidationError
		panicErr *crerrors.PanicError
	)
	switch {
	case crerrors.IsSchemaError(err):
		return "schema"
	case crerrors.IsMissingLabels(err):
		return "missing_labels"
	case crerrors.IsNotFitted(err):
		return "not_fitted"
	case crerrors.IsTrainingError(err):
		return "training"
	case crerrors.IsSerializationError(err):
		return "serialization"
	case errors.As(err, &dimErr):
		return "dimension"
	case errors.As(err, &valErr):
		return "validation"
	case errors.As(err, &panicErr):
		return "panic"
	default:
		return "internal"
	}
}

func stackOf(err error) string {
	var panicErr *crerrors.PanicError
	if errors.As(err, &panicErr) {
		return panicErr.Stack()
	}
	for _, layer := range errors.GetAllSafeDetails(err) {
		if len(layer.SafeDetails) > 0 && layer.SafeDetails[0] != "" {
			return layer.SafeDetails[0]
		}
	}
	return ""
}
