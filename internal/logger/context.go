package logger

import "context"

type contextKey string

const TraceIDKey contextKey = "trace_id"
const ChannelKey contextKey = "channel"

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

func GetTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDKey).(string); ok {
		return id
	}
	return ""
}

func WithChannel(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ChannelKey, name)
}

func GetChannel(ctx context.Context) string {
	if name, ok := ctx.Value(ChannelKey).(string); ok {
		return name
	}
	return ""
}
