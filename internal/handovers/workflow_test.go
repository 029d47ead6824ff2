package handovers

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
)

var (
	allStatuses = []Status{StatusDraft, StatusSentToOwner, StatusAccepted, StatusCancelled}
	allActions  = []Action{ActionEdit, ActionSend, ActionConfirm, ActionCancel}
)

func TestAllowedActions(t *testing.T) {
	tests := []struct {
		status Status
		role   auth.Role
		want   []Action
	}{
		{StatusDraft, auth.RoleAdmin, []Action{ActionEdit, ActionSend, ActionCancel, ActionView}},
		{StatusSentToOwner, auth.RoleAdmin, []Action{ActionCancel, ActionView}},
		{StatusAccepted, auth.RoleAdmin, []Action{ActionView}},
		{StatusCancelled, auth.RoleAdmin, []Action{ActionView}},
		{StatusDraft, auth.RoleOwner, []Action{ActionView}},
		{StatusSentToOwner, auth.RoleOwner, []Action{ActionView}},
		{StatusAccepted, auth.RoleOwner, []Action{ActionView}},
	}
	for _, tt := range tests {
		t.Run(string(tt.status)+"/"+string(tt.role), func(t *testing.T) {
			got := AllowedActions(&Handover{Status: tt.status}, tt.role)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProgressAndEditable(t *testing.T) {
	assert.Equal(t, 33, Progress(StatusDraft))
	assert.Equal(t, 66, Progress(StatusSentToOwner))
	assert.Equal(t, 100, Progress(StatusAccepted))
	assert.Equal(t, 0, Progress(StatusCancelled))

	for _, s := range allStatuses {
		assert.Equal(t, s == StatusDraft, IsEditable(s), s)
	}
	assert.True(t, IsTerminal(StatusAccepted))
	assert.True(t, IsTerminal(StatusCancelled))
	assert.False(t, IsTerminal(StatusSentToOwner))
}

func TestCheckTransitionRejectsEverythingOutsideTheTable(t *testing.T) {
	ownerID := uuid.New()
	actors := []auth.Actor{
		{UserID: uuid.New(), Role: auth.RoleAdmin},
		{UserID: ownerID, Role: auth.RoleOwner},
	}
	allowed := map[Status]map[Action]Status{
		StatusDraft:       {ActionEdit: StatusDraft, ActionSend: StatusSentToOwner, ActionCancel: StatusCancelled},
		StatusSentToOwner: {ActionConfirm: StatusAccepted, ActionCancel: StatusCancelled},
	}

	for _, status := range allStatuses {
		for _, action := range allActions {
			for _, actor := range actors {
				h := &Handover{Status: status, OwnerID: ownerID}
				to, err := CheckTransition(h, action, actor)

				want, inTable := allowed[status][action]
				if !inTable {
					require.Error(t, err)
					assert.True(t, apperrors.Is(err, apperrors.KindInvalidTransition), "%s %s %s", status, action, actor.Role)
					assert.Contains(t, err.Error(), string(status))
					assert.Contains(t, err.Error(), string(action))
					assert.Equal(t, status, to)
					assert.Equal(t, status, h.Status)
					continue
				}

				roleOK := actor.IsAdmin() != (action == ActionConfirm)
				if roleOK {
					require.NoError(t, err, "%s %s %s", status, action, actor.Role)
					assert.Equal(t, want, to)
				} else {
					assert.True(t, apperrors.Is(err, apperrors.KindAuthorization), "%s %s %s", status, action, actor.Role)
				}
			}
		}
	}
}

func TestConfirmRequiresTheHandoverOwner(t *testing.T) {
	h := &Handover{Status: StatusSentToOwner, OwnerID: uuid.New()}
	_, err := CheckTransition(h, ActionConfirm, auth.Actor{UserID: uuid.New(), Role: auth.RoleOwner})
	assert.True(t, apperrors.Is(err, apperrors.KindAuthorization))
}

func TestNewViewHidesInternalNotesFromOwners(t *testing.T) {
	h := &Handover{Status: StatusDraft, InternalNotes: "price negotiation"}

	assert.Empty(t, NewView(h, auth.RoleOwner).InternalNotes)
	assert.Equal(t, "price negotiation", NewView(h, auth.RoleAdmin).InternalNotes)
	assert.Equal(t, "price negotiation", h.InternalNotes)

	v := NewView(h, auth.RoleAdmin)
	assert.NotNil(t, v.Items)
	assert.NotNil(t, v.Attachments)
	assert.Equal(t, 33, v.Progress)
	assert.True(t, v.Editable)
}

func TestContainsPattern(t *testing.T) {
	assert.Equal(t, "%kitchen%", containsPattern("  KITCHEN "))
	assert.Equal(t, `%50\%\_off%`, containsPattern("50%_off"))
	// Full-width digits fold to ASCII.
	assert.Equal(t, "%a12%", containsPattern("Ａ１２"))
}
