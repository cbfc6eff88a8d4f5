// Package service holds the allocation-integrity rules and the actuals
// approval workflow. Every mutation runs in one repository transaction.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/pesio-ai/be-rp-allocations/internal/platform/logger"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
)

// Event types published after a transaction commits.
const (
	EventActualsSigned    = "actuals.signed"
	EventApprovalRequired = "approval.required"
	EventApprovalApproved = "approval.approved"
	EventApprovalRejected = "approval.rejected"
)

// EventPublisher delivers workflow events. Publishing is best effort and
// never fails the operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, tenantID, subjectID, actorID string, recipients []string, payload map[string]any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, string, string, string, []string, map[string]any) {}

// Option customises a service.
type Option func(*base)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithPublisher sets the publisher used for workflow events.
func WithPublisher(p EventPublisher) Option {
	return func(b *base) {
		if p != nil {
			b.events = p
		}
	}
}

type base struct {
	store  repository.Store
	log    *logger.Logger
	now    func() time.Time
	events EventPublisher
}

func newBase(store repository.Store, log *logger.Logger, component string, opts []Option) base {
	if log == nil {
		log = logger.Nop()
	}
	b := base{
		store:  store,
		log:    log.Component(component),
		now:    time.Now,
		events: nopPublisher{},
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// event is a publication deferred until commit.
type event struct {
	eventType  string
	tenantID   string
	subjectID  string
	actorID    string
	recipients []string
	payload    map[string]any
}

// outbox collects events inside a transaction attempt. It is reset at the
// start of every attempt because the store may retry fn.
type outbox struct {
	events []event
}

func (o *outbox) reset() { o.events = o.events[:0] }

func (o *outbox) add(e event) { o.events = append(o.events, e) }

func (b *base) flush(ctx context.Context, o *outbox) {
	for _, e := range o.events {
		b.events.Publish(ctx, e.eventType, e.tenantID, e.subjectID, e.actorID, e.recipients, e.payload)
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func strPtr(s string) *string {
	return &s
}

// nonBlank returns nil for a nil or blank s.
func nonBlank(s *string) *string {
	if s == nil || isBlank(*s) {
		return nil
	}
	return s
}
