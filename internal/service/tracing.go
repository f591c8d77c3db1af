package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// step runs fn inside a child span and records a returned error on it.
func step(ctx context.Context, tracer trace.Tracer, name string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// startFlow opens the root span of a flow.
func startFlow(ctx context.Context, tracer trace.Tracer, flow string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "auth."+flow, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		span.SetAttributes(attribute.String("auth.outcome", outcome(err)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
