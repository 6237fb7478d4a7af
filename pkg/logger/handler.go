package logger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors/errbase"
	"github.com/dripworks/dripper/pkg/logger/slogx"
)

const (
	LevelPanic = slog.Level(14)
	LevelFatal = slog.Level(16)
)

type (
	handleFunc func(context.Context, slog.Record) error
	middleware func(handleFunc) handleFunc
)

type chainHandlers struct {
	h           slog.Handler
	middlewares []middleware
}

func newChainHandlers(handler slog.Handler, middlewares ...middleware) *chainHandlers {
	return &chainHandlers{
		h:           handler,
		middlewares: middlewares,
	}
}

func (c *chainHandlers) Enabled(ctx context.Context, lvl slog.Level) bool {
	return c.h.Enabled(ctx, lvl)
}

func (c *chainHandlers) Handle(ctx context.Context, rec slog.Record) error {
	h := c.h.Handle
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h(ctx, rec)
}

func (c *chainHandlers) WithGroup(group string) slog.Handler {
	return &chainHandlers{
		middlewares: c.middlewares,
		h:           c.h.WithGroup(group),
	}
}

func (c *chainHandlers) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &chainHandlers{
		middlewares: c.middlewares,
		h:           c.h.WithAttrs(attrs),
	}
}

// levelAttrReplacer renders the custom PANIC/FATAL levels by name
// instead of slog's "ERROR+n" notation.
func levelAttrReplacer(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) == 0 && attr.Key == slog.LevelKey {
		str := func(base string, val slog.Level) string {
			if val == 0 {
				return base
			}
			return fmt.Sprintf("%s%+d", base, val)
		}

		if l, ok := attr.Value.Any().(slog.Level); ok {
			switch {
			case l < LevelPanic:
				return attr
			case l < LevelFatal:
				return slog.Attr{Key: attr.Key, Value: slog.StringValue(str("PANIC", l-LevelPanic))}
			default:
				return slog.Attr{Key: attr.Key, Value: slog.StringValue(str("FATAL", l-LevelFatal))}
			}
		}
	}
	return attr
}

// middlewareError expands error attributes with a verbose rendering and,
// when available, the stack trace captured by cockroachdb/errors.
func middlewareError() middleware {
	return func(next handleFunc) handleFunc {
		return func(ctx context.Context, rec slog.Record) error {
			rec.Attrs(func(attr slog.Attr) bool {
				if attr.Key == slogx.ErrorKey || attr.Key == "err" {
					err := attr.Value.Any()
					if err, ok := err.(error); ok && err != nil {
						rec.AddAttrs(slog.String("error_verbose", fmt.Sprintf("%+v", err)))
						if x, ok := err.(errbase.StackTraceProvider); ok {
							rec.AddAttrs(slog.Any("error_stacktrace", fmt.Sprintf("%+v", x.StackTrace())))
						}
					}
				}
				return false
			})

			return next(ctx, rec)
		}
	}
}
