package decision

import (
	"testing"

	"github.com/jmalloway/checksub001/pkg/model"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to model.Status
		want     bool
	}{
		{model.StatusNew, model.StatusInReview, true},
		{model.StatusNew, model.StatusApproved, false},
		{model.StatusInReview, model.StatusApproved, true},
		{model.StatusInReview, model.StatusPendingDualControl, true},
		{model.StatusInReview, model.StatusNew, false},
		{model.StatusPendingDualControl, model.StatusApproved, true},
		{model.StatusPendingDualControl, model.StatusEscalated, true},
		{model.StatusPendingDualControl, model.StatusInReview, false},
		{model.StatusEscalated, model.StatusInReview, true},
		{model.StatusEscalated, model.StatusRejected, true},
		{model.StatusApproved, model.StatusInReview, false},
		{model.StatusRejected, model.StatusApproved, false},
		{model.StatusClosed, model.StatusInReview, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestNextStatusForAction(t *testing.T) {
	cases := []struct {
		action     model.Action
		reviewStep bool
		want       model.Status
		ok         bool
	}{
		{model.ActionApprove, true, model.StatusPendingDualControl, true},
		{model.ActionReject, true, model.StatusPendingDualControl, true},
		{model.ActionEscalate, true, model.StatusEscalated, true},
		{model.ActionHold, true, model.StatusInReview, true},
		{model.ActionApprove, false, model.StatusApproved, true},
		{model.ActionReturn, false, model.StatusReturned, true},
		{model.ActionReject, false, model.StatusRejected, true},
		{model.ActionNeedsMoreInfo, false, model.StatusInReview, true},
		{model.Action("bogus"), false, "", false},
	}
	for _, c := range cases {
		got, ok := nextStatusForAction(c.action, c.reviewStep)
		if ok != c.ok || got != c.want {
			t.Errorf("nextStatusForAction(%s, %v) = (%s, %v), want (%s, %v)",
				c.action, c.reviewStep, got, ok, c.want, c.ok)
		}
	}
}
