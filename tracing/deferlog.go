package tracing

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LogRecoverToExitCode Recovers from a panic, logs and forwards it to sentry and
// otel, then sets exitcode to 1. Does nothing when there is no panic. Must be
// deferred directly
func LogRecoverToExitCode(ctx context.Context, loc string, exitcode *int) {
	err := recover()
	if err == nil {
		return
	}

	stack := string(debug.Stack())
	HandlePanic(ctx, loc, err, stack)

	if exitcode != nil {
		*exitcode = 1
	}
}

func HandlePanic(ctx context.Context, loc string, err interface{}, stack string) {
	msg := fmt.Sprintf("unhandled panic in %v, exiting: %v", loc, err)

	hub := sentry.CurrentHub()
	if hub != nil {
		hub.Recover(err)
	}

	// always log to stderr (no WithContext!)
	log.WithFields(log.Fields{"loc": loc, "stack": stack}).Error(msg)

	if ctx != nil {
		span := trace.SpanFromContext(ctx)
		span.SetAttributes(
			attribute.String("ovm.panic.loc", loc),
			attribute.String("ovm.panic.stack", stack),
		)
		span.SetStatus(codes.Error, msg)
	}
}

// ReportError Sends an error that ended the run to Sentry and marks the
// current span as failed
func ReportError(ctx context.Context, err error) {
	if err == nil {
		return
	}

	hub := sentry.CurrentHub()
	if hub != nil {
		hub.CaptureException(err)
	}

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
