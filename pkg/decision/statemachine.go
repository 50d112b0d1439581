package decision

import "github.com/jmalloway/checksub001/pkg/model"

// transitions encodes the item-status state machine. A transition not
// listed here is rejected with ErrInvalidTransition.
var transitions = map[model.Status]map[model.Status]bool{
	model.StatusNew: {
		model.StatusInReview: true,
	},
	model.StatusInReview: {
		model.StatusApproved:           true,
		model.StatusReturned:           true,
		model.StatusRejected:           true,
		model.StatusEscalated:          true,
		model.StatusPendingDualControl: true,
	},
	model.StatusPendingDualControl: {
		model.StatusApproved:  true,
		model.StatusReturned:  true,
		model.StatusRejected:  true,
		model.StatusEscalated: true,
	},
	model.StatusEscalated: {
		model.StatusInReview:           true,
		model.StatusPendingDualControl: true,
		model.StatusApproved:           true,
		model.StatusReturned:           true,
		model.StatusRejected:           true,
	},
}

// CanTransition reports whether from -> to is a legal state transition.
func CanTransition(from, to model.Status) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// nextStatusForAction maps a decision action to the item status it drives
// the item to, given whether this decision is the first half of a
// dual-control pair (review recommendation) or a final decision.
func nextStatusForAction(action model.Action, isReviewRecommendation bool) (model.Status, bool) {
	if isReviewRecommendation {
		switch action {
		case model.ActionApprove, model.ActionReturn, model.ActionReject:
			return model.StatusPendingDualControl, true
		case model.ActionEscalate:
			return model.StatusEscalated, true
		case model.ActionHold, model.ActionNeedsMoreInfo:
			return model.StatusInReview, true
		}
		return "", false
	}
	switch action {
	case model.ActionApprove:
		return model.StatusApproved, true
	case model.ActionReturn:
		return model.StatusReturned, true
	case model.ActionReject:
		return model.StatusRejected, true
	case model.ActionEscalate:
		return model.StatusEscalated, true
	case model.ActionHold, model.ActionNeedsMoreInfo:
		return model.StatusInReview, true
	}
	return "", false
}
