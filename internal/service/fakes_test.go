package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/safesite/ptw-service/internal/errors"
	"github.com/safesite/ptw-service/internal/permit"
	"github.com/safesite/ptw-service/internal/repository"
)

// fakeStore is an in-memory stand-in for the pgx repositories. It mirrors
// their conditional-update semantics: every state-changing call re-checks its
// preconditions against the stored row under the mutex and reports
// repository.ErrPreconditionMiss when they no longer hold.
type fakeStore struct {
	mu         sync.Mutex
	permits    map[string]*permit.Permit
	extensions map[string][]*permit.ExtensionRequest
	nextSerial int
	nextID     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		permits:    make(map[string]*permit.Permit),
		extensions: make(map[string][]*permit.ExtensionRequest),
		nextSerial: 1,
	}
}

func (f *fakeStore) id() string {
	f.nextID++
	return fmt.Sprintf("id-%d", f.nextID)
}

func clonePermit(p *permit.Permit) *permit.Permit {
	cp := *p
	return &cp
}

func (f *fakeStore) Create(_ context.Context, p *permit.Permit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = f.id()
	p.SerialNumber = permit.FormatSerial(f.nextSerial)
	f.nextSerial++
	f.permits[p.ID] = clonePermit(p)
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*permit.Permit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.permits[id]
	if !ok {
		return nil, errors.NotFound("permit", id)
	}
	return clonePermit(p), nil
}

func (f *fakeStore) List(_ context.Context, filter repository.PermitFilter) ([]*permit.Permit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*permit.Permit
	for _, p := range f.permits {
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.CreatedBy != nil && p.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.PendingApprover != nil && !awaitsDecisionFrom(p, *filter.PendingApprover) {
			continue
		}
		out = append(out, clonePermit(p))
	}
	return out, nil
}

func awaitsDecisionFrom(p *permit.Permit, userID string) bool {
	if p.Status != permit.StatusInitiated {
		return false
	}
	role, ok := p.RoleOf(userID)
	return ok && p.Slot(role).Status == permit.SlotPending
}

func (f *fakeStore) RecordDecision(_ context.Context, permitID string, role permit.Role, d repository.SlotDecision) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.permits[permitID]
	if !ok {
		return "", errors.NotFound("permit", permitID)
	}
	slot := p.Slot(role)
	if p.Status != permit.StatusInitiated ||
		slot == nil || !slot.Assigned() || *slot.UserID != d.ActorID ||
		slot.Status != permit.SlotPending {
		return "", repository.ErrPreconditionMiss
	}

	decidedAt := d.DecidedAt
	slot.DecidedAt = &decidedAt
	if d.Approve {
		sig := d.Signature
		slot.Status = permit.SlotApproved
		slot.Signature = &sig
		p.Status = permit.AggregateStatus(p)
	} else {
		reason := d.Reason
		slot.Status = permit.SlotRejected
		p.Status = permit.StatusRejected
		p.RejectionReason = &reason
	}
	return p.Status, nil
}

func (f *fakeStore) TransitionStatus(_ context.Context, id, from, to, creatorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.permits[id]
	if !ok {
		return errors.NotFound("permit", id)
	}
	if p.Status != from || p.CreatedBy != creatorID {
		return repository.ErrPreconditionMiss
	}
	p.Status = to
	return nil
}

func (f *fakeStore) Close(_ context.Context, id, creatorID string, c *permit.Closure) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.permits[id]
	if !ok {
		return errors.NotFound("permit", id)
	}
	if p.Status != permit.StatusActive || p.CreatedBy != creatorID {
		return repository.ErrPreconditionMiss
	}
	p.Status = permit.StatusClosed
	closedAt := c.ClosedAt
	p.ClosedAt = &closedAt
	p.Closure = c
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.permits[id]; !ok {
		return errors.NotFound("permit", id)
	}
	delete(f.permits, id)
	delete(f.extensions, id)
	return nil
}

func (f *fakeStore) CreateWithTransition(_ context.Context, ext *permit.ExtensionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.permits[ext.PermitID]
	if !ok {
		return errors.NotFound("permit", ext.PermitID)
	}
	if p.Status != permit.StatusActive || p.CreatedBy != ext.RequestedBy {
		return repository.ErrPreconditionMiss
	}
	p.Status = permit.StatusExtensionRequested
	ext.ID = f.id()
	ext.Status = permit.ExtensionPending
	ext.CreatedAt = time.Now()
	f.extensions[ext.PermitID] = append(f.extensions[ext.PermitID], ext)
	return nil
}

func (f *fakeStore) GetPending(_ context.Context, permitID string) (*permit.ExtensionRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ext := range f.extensions[permitID] {
		if ext.Status == permit.ExtensionPending {
			cp := *ext
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListByPermit(_ context.Context, permitID string) ([]*permit.ExtensionRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*permit.ExtensionRequest
	for _, ext := range f.extensions[permitID] {
		cp := *ext
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) Decide(_ context.Context, ext *permit.ExtensionRequest, approve bool, decidedBy, reason string, decidedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.permits[ext.PermitID]
	if !ok {
		return errors.NotFound("permit", ext.PermitID)
	}
	var stored *permit.ExtensionRequest
	for _, e := range f.extensions[ext.PermitID] {
		if e.ID == ext.ID {
			stored = e
			break
		}
	}
	if stored == nil || stored.Status != permit.ExtensionPending || p.Status != permit.StatusExtensionRequested {
		return repository.ErrPreconditionMiss
	}

	stored.DecidedBy = &decidedBy
	stored.DecidedAt = &decidedAt
	p.Status = permit.StatusActive
	if approve {
		stored.Status = permit.ExtensionApproved
		p.EndTime = stored.RequestedEndTime
		p.Extended = true
	} else {
		stored.Status = permit.ExtensionRejected
		stored.DecisionReason = &reason
	}
	return nil
}

// fakeNotificationStore records inserted notifications for assertions.
type fakeNotificationStore struct {
	mu    sync.Mutex
	notes []*permit.Notification
}

func (f *fakeNotificationStore) Insert(_ context.Context, n *permit.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *n
	f.notes = append(f.notes, &cp)
	return nil
}

func (f *fakeNotificationStore) ListByUser(_ context.Context, userID string, unreadOnly bool) ([]*permit.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*permit.Notification
	for _, n := range f.notes {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeNotificationStore) MarkRead(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.notes {
		if n.ID == id && n.UserID == userID {
			n.Read = true
			return nil
		}
	}
	return errors.NotFound("notification", id)
}

func (f *fakeNotificationStore) byCategory(category string) []*permit.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*permit.Notification
	for _, n := range f.notes {
		if n.Category == category {
			out = append(out, n)
		}
	}
	return out
}

func newTestServices() (*PermitService, *LifecycleService, *fakeStore, *fakeNotificationStore) {
	store := newFakeStore()
	notes := &fakeNotificationStore{}
	log := zerolog.Nop()
	notifier := NewNotificationService(notes, nil, log)
	permits := NewPermitService(store, store, notifier, log)
	lifecycle := NewLifecycleService(store, store, notifier, log)
	return permits, lifecycle, store, notes
}
