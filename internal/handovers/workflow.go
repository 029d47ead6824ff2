package handovers

import (
	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
	"propertyhub/owner-portal/owner-portal-backend/pkg/workflows"
)

var machine = workflows.NewStateMachine([]workflows.Transition[Status, Action]{
	{From: StatusDraft, Action: ActionEdit, To: StatusDraft},
	{From: StatusDraft, Action: ActionSend, To: StatusSentToOwner},
	{From: StatusDraft, Action: ActionCancel, To: StatusCancelled},
	{From: StatusSentToOwner, Action: ActionConfirm, To: StatusAccepted},
	{From: StatusSentToOwner, Action: ActionCancel, To: StatusCancelled},
}, StatusDraft, StatusSentToOwner, StatusAccepted, StatusCancelled)

// IsEditable reports whether the handover content may still change.
func IsEditable(s Status) bool {
	return s == StatusDraft
}

// IsTerminal reports whether no action leaves s.
func IsTerminal(s Status) bool {
	return machine.IsTerminal(s)
}

// Progress is the percentage shown on the handover timeline.
func Progress(s Status) int {
	switch s {
	case StatusDraft:
		return 33
	case StatusSentToOwner:
		return 66
	case StatusAccepted:
		return 100
	default:
		return 0
	}
}

// AllowedActions lists what role may do with h right now. Confirm is a
// separate owner call and never appears here.
func AllowedActions(h *Handover, role auth.Role) []Action {
	switch role {
	case auth.RoleAdmin:
		actions := make([]Action, 0, 4)
		for _, a := range machine.GetAllowedActions(h.Status) {
			if a != ActionConfirm {
				actions = append(actions, a)
			}
		}
		return append(actions, ActionView)
	case auth.RoleOwner:
		return []Action{ActionView}
	default:
		return []Action{}
	}
}

// CheckTransition validates action on h for actor and returns the target status.
// The status table is consulted first so that an impossible action reports
// the current state regardless of who asked.
func CheckTransition(h *Handover, action Action, actor auth.Actor) (Status, error) {
	to, ok := machine.Next(h.Status, action)
	if !ok {
		return h.Status, apperrors.InvalidTransition(string(h.Status), string(action), string(actor.Role))
	}

	switch action {
	case ActionConfirm:
		if !actor.IsOwner() || h.OwnerID != actor.UserID {
			return h.Status, apperrors.Forbidden("only the owner of this handover may confirm it")
		}
	default:
		if !actor.IsAdmin() {
			return h.Status, apperrors.Forbidden("only admins may %s a handover", action)
		}
	}
	return to, nil
}

// NewView projects h for role; owners never see internal notes.
func NewView(h *Handover, role auth.Role) *View {
	out := *h
	if role != auth.RoleAdmin {
		out.InternalNotes = ""
	}
	if out.Items == nil {
		out.Items = []HandoverItem{}
	}
	if out.Attachments == nil {
		out.Attachments = []string{}
	}
	return &View{
		Handover:       &out,
		AllowedActions: AllowedActions(h, role),
		Progress:       Progress(h.Status),
		Editable:       IsEditable(h.Status),
	}
}

func summarize(h *Handover) Summary {
	return Summary{
		ID:          h.ID,
		UnitID:      h.UnitID,
		OwnerID:     h.OwnerID,
		Status:      h.Status,
		Progress:    Progress(h.Status),
		ScheduledAt: h.ScheduledAt,
		SentAt:      h.SentAt,
		HandoverAt:  h.HandoverAt,
		PDFURL:      h.PDFURL,
		ItemCount:   len(h.Items),
		CreatedAt:   h.CreatedAt,
		UpdatedAt:   h.UpdatedAt,
	}
}
