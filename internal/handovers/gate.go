package handovers

import (
	"context"

	"github.com/google/uuid"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
)

// ThreadGate guards handover message threads. It always reads the current
// row so a thread closes the moment its handover does.
type ThreadGate struct {
	repo Repository
}

func NewThreadGate(repo Repository) *ThreadGate {
	return &ThreadGate{repo: repo}
}

func (g *ThreadGate) load(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Handover, error) {
	h, err := g.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canRead(actor, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (g *ThreadGate) CanRead(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	_, err := g.load(ctx, actor, id)
	return err
}

// CanAppend holds the handover row shared until the message insert commits,
// so a concurrent cancel or confirm waits for it or is seen here.
func (g *ThreadGate) CanAppend(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	h, err := g.repo.GetShared(ctx, id)
	if err != nil {
		return err
	}
	if err := canRead(actor, h); err != nil {
		return err
	}
	if IsTerminal(h.Status) {
		return apperrors.State(string(h.Status), "post message", "the handover thread is closed")
	}
	return nil
}

func (g *ThreadGate) Participants(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	h, err := g.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return []uuid.UUID{h.OwnerID}, nil
}
