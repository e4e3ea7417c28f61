package server

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/opensetlist/setboard/internal/platform/errors"
	"github.com/opensetlist/setboard/internal/services/board/catalog"
	"github.com/opensetlist/setboard/internal/services/board/domain"
)

// Gateway validates inbound mutation requests and coordinates the
// persist-then-broadcast flow.
//
// Every successful mutation ends with an authoritative storage read whose
// snapshot is what gets published; the gateway never broadcasts a locally
// mutated copy, so observers stay consistent with concurrent writers that
// share the same backend. Failures of any kind are reported to the caller
// only and publish nothing.
type Gateway struct {
	registry *Registry
	catalog  *catalog.Catalog
	router   *Router
	tracer   trace.Tracer
}

// NewGateway wires the gateway to its collaborators.
func NewGateway(registry *Registry, cat *catalog.Catalog, router *Router) *Gateway {
	return &Gateway{
		registry: registry,
		catalog:  cat,
		router:   router,
		tracer:   otel.Tracer("setboard/board"),
	}
}

// ListSongs exposes the advisory song catalog.
func (g *Gateway) ListSongs() []string {
	return g.catalog.ListSongs()
}

// Join adds a participant to a session and broadcasts the resulting state.
func (g *Gateway) Join(ctx context.Context, sessionID, username string) (domain.Snapshot, error) {
	ctx, span := g.startSpan(ctx, "board.join", sessionID)
	defer span.End()

	sessionID, err := domain.NormalizeSessionID(sessionID)
	if err != nil {
		return domain.Snapshot{}, g.fail(span, err)
	}
	username, err = domain.NormalizeName(username)
	if err != nil {
		return domain.Snapshot{}, g.fail(span, err)
	}

	snapshot, err := g.registry.GetOrCreate(sessionID).Join(ctx, username)
	if err != nil {
		return domain.Snapshot{}, g.fail(span, err)
	}
	g.router.Publish(sessionID, snapshot)
	return snapshot, nil
}

// SetSlot writes one pick on the target's board and broadcasts the result.
// An empty (or whitespace-only) value deletes the slot instead.
func (g *Gateway) SetSlot(ctx context.Context, sessionID, caller, target, slot, value string) error {
	ctx, span := g.startSpan(ctx, "board.set_slot", sessionID)
	defer span.End()

	sessionID, caller, target, err := g.normalizeActors(sessionID, caller, target)
	if err != nil {
		return g.fail(span, err)
	}
	if err := g.requireSlot(slot); err != nil {
		return g.fail(span, err)
	}
	value, err = domain.NormalizeValue(value)
	if err != nil {
		return g.fail(span, err)
	}

	snapshot, err := g.registry.GetOrCreate(sessionID).SetPick(ctx, caller, target, slot, value)
	if err != nil {
		return g.fail(span, err)
	}
	g.router.Publish(sessionID, snapshot)
	return nil
}

// DeleteSlot removes one pick from the target's board and broadcasts the
// result.
func (g *Gateway) DeleteSlot(ctx context.Context, sessionID, caller, target, slot string) error {
	ctx, span := g.startSpan(ctx, "board.delete_slot", sessionID)
	defer span.End()

	sessionID, caller, target, err := g.normalizeActors(sessionID, caller, target)
	if err != nil {
		return g.fail(span, err)
	}
	if err := g.requireSlot(slot); err != nil {
		return g.fail(span, err)
	}

	snapshot, err := g.registry.GetOrCreate(sessionID).DeletePick(ctx, caller, target, slot)
	if err != nil {
		return g.fail(span, err)
	}
	g.router.Publish(sessionID, snapshot)
	return nil
}

// DeleteParticipantBoard removes the target from the session entirely.
func (g *Gateway) DeleteParticipantBoard(ctx context.Context, sessionID, caller, target string) error {
	ctx, span := g.startSpan(ctx, "board.delete_board", sessionID)
	defer span.End()

	sessionID, caller, target, err := g.normalizeActors(sessionID, caller, target)
	if err != nil {
		return g.fail(span, err)
	}

	snapshot, err := g.registry.GetOrCreate(sessionID).DeleteParticipantBoard(ctx, caller, target)
	if err != nil {
		return g.fail(span, err)
	}
	g.router.Publish(sessionID, snapshot)
	return nil
}

// ClearAll wipes every pick in the session and broadcasts the empty boards.
func (g *Gateway) ClearAll(ctx context.Context, sessionID, caller string) error {
	ctx, span := g.startSpan(ctx, "board.clear_all", sessionID)
	defer span.End()

	sessionID, err := domain.NormalizeSessionID(sessionID)
	if err != nil {
		return g.fail(span, err)
	}
	caller, err = domain.NormalizeName(caller)
	if err != nil {
		return g.fail(span, err)
	}

	snapshot, err := g.registry.GetOrCreate(sessionID).ClearAll(ctx, caller)
	if err != nil {
		return g.fail(span, err)
	}
	g.router.Publish(sessionID, snapshot)
	return nil
}

// State returns the current snapshot without mutating or broadcasting.
func (g *Gateway) State(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	sessionID, err := domain.NormalizeSessionID(sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return g.registry.GetOrCreate(sessionID).State(ctx)
}

func (g *Gateway) normalizeActors(sessionID, caller, target string) (string, string, string, error) {
	sessionID, err := domain.NormalizeSessionID(sessionID)
	if err != nil {
		return "", "", "", err
	}
	caller, err = domain.NormalizeName(caller)
	if err != nil {
		return "", "", "", err
	}
	target, err = domain.NormalizeName(target)
	if err != nil {
		return "", "", "", err
	}
	return sessionID, caller, target, nil
}

func (g *Gateway) requireSlot(slot string) error {
	if !g.catalog.IsValidSlot(slot) {
		return apperrors.WithMetadata(
			apperrors.CodeSlotUnknown,
			"slot is not in the catalog",
			map[string]string{"slot": slot},
		)
	}
	return nil
}

func (g *Gateway) startSpan(ctx context.Context, name, sessionID string) (context.Context, trace.Span) {
	return g.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("board.session_id", sessionID),
	))
}

func (g *Gateway) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
