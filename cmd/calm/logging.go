package main

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// zerologHandler sends slog records from library packages to the CLI's
// zerolog logger, so they share its console writer and level.
type zerologHandler struct {
	logger zerolog.Logger
	attrs  []slog.Attr
	group  string
}

func newSlogLogger(logger zerolog.Logger) *slog.Logger {
	return slog.New(&zerologHandler{logger: logger})
}

func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l >= slog.LevelError:
		return zerolog.ErrorLevel
	case l >= slog.LevelWarn:
		return zerolog.WarnLevel
	case l >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

func (h *zerologHandler) Enabled(_ context.Context, l slog.Level) bool {
	level := zerologLevel(l)
	return level >= h.logger.GetLevel() && level >= zerolog.GlobalLevel()
}

func (h *zerologHandler) Handle(_ context.Context, r slog.Record) error {
	ev := h.logger.WithLevel(zerologLevel(r.Level))
	for _, a := range h.attrs {
		ev = h.field(ev, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		ev = h.field(ev, a)
		return true
	})
	ev.Msg(r.Message)
	return nil
}

func (h *zerologHandler) field(ev *zerolog.Event, a slog.Attr) *zerolog.Event {
	v := a.Value.Resolve().Any()
	if err, ok := v.(error); ok {
		return ev.AnErr(h.key(a.Key), err)
	}
	return ev.Interface(h.key(a.Key), v)
}

func (h *zerologHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}

func (h *zerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *zerologHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = h.key(name)
	return &next
}
