// Package otel provides OpenTelemetry span helpers shared by the git API packages.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on spans across the service.
const (
	AttrRepository    = attribute.Key("git.repository")
	AttrBranch        = attribute.Key("git.branch")
	AttrObjectID      = attribute.Key("git.object_id")
	AttrGitSubcommand = attribute.Key("git.subcommand")
	AttrLogFormat     = attribute.Key("git.log_format")
	AttrCacheName     = attribute.Key("cache.name")
	AttrCacheHit      = attribute.Key("cache.hit")
	AttrResultCount   = attribute.Key("result.count")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns a no-op span.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records an error on a span and sets the span status to error.
// It safely handles nil spans and nil errors.
// The status description stays generic so that git stderr and repository
// paths only appear in the span events.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
