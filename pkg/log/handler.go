package log

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
)

// DefaultComponent tags records logged without an ml.component attribute.
const DefaultComponent = "xclf"

// ErrFmtHandler wraps a slog.Handler for code that logs through slog directly.
// Records carrying an error attribute gain its cockroachdb stack trace and its
// Go type; records without a component are attributed to DefaultComponent.
type ErrFmtHandler struct {
	handler   slog.Handler
	component bool
}

// WrapByErrFmtHandler wraps handler with error and component tagging.
func WrapByErrFmtHandler(handler slog.Handler) slog.Handler {
	return &ErrFmtHandler{handler: handler}
}

func (eh *ErrFmtHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return eh.handler.Enabled(ctx, l)
}

func (eh *ErrFmtHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	hasComponent := eh.component
	r.Attrs(func(attr slog.Attr) bool {
		switch attr.Key {
		case ErrAttrKey:
			if err == nil {
				err, _ = attr.Value.Any().(error)
			}
		case ComponentKey:
			hasComponent = true
		}
		return true
	})
	if err != nil {
		r.AddAttrs(slog.String(ErrorTypeKey, fmt.Sprintf("%T", errors.UnwrapAll(err))))
		if st := extractStacktrace(err); st != "" {
			r.AddAttrs(slog.String(StacktraceAttrKey, st))
		}
	}
	if !hasComponent {
		r.AddAttrs(slog.String(ComponentKey, DefaultComponent))
	}
	return eh.handler.Handle(ctx, r)
}

func (eh *ErrFmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	component := eh.component
	for _, a := range attrs {
		if a.Key == ComponentKey {
			component = true
		}
	}
	return &ErrFmtHandler{handler: eh.handler.WithAttrs(attrs), component: component}
}

func (eh *ErrFmtHandler) WithGroup(g string) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithGroup(g), component: eh.component}
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}
