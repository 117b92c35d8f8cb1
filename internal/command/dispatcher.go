// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package command

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("modreload/command")

// Dispatch parses input, checks the route's permission, and runs it.
// A handler that rejects its arguments yields CodeInvalidArgs.
func (m *Map) Dispatch(ctx context.Context, sender Sender, input string) (err error) {
	parsed, err := Parse(input)
	if err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "command.dispatch",
		trace.WithAttributes(
			attribute.String("command.label", parsed.Label),
			attribute.String("command.sender", sender.Name()),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	route, ok := m.Get(parsed.Label)
	if !ok {
		recordExecution(parsed.Label, "none", StatusNotFound, 0)
		return ErrUnknownCommand(parsed.Label)
	}

	source := route.Source()
	span.SetAttributes(attribute.String("command.source", source))

	if !sender.HasPermission(route.Permission) {
		recordExecution(route.Name, source, StatusPermissionDenied, 0)
		return ErrPermissionDenied(parsed.Label, route.Permission)
	}

	start := time.Now()
	handled, err := route.Handler(ctx, &Invocation{
		Route:  route,
		Label:  parsed.Label,
		Args:   parsed.Args,
		Sender: sender,
	})
	elapsed := time.Since(start)

	switch {
	case err != nil:
		recordExecution(route.Name, source, StatusError, elapsed)
		slog.WarnContext(ctx, "command execution failed",
			"command", route.Name,
			"source", source,
			"sender", sender.Name(),
			"error", err)
		return err
	case !handled:
		recordExecution(route.Name, source, StatusUsage, elapsed)
		return ErrInvalidArgs(parsed.Label, route.Usage)
	default:
		recordExecution(route.Name, source, StatusSuccess, elapsed)
		return nil
	}
}
