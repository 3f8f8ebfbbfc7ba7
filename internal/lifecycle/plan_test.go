package lifecycle

import (
	"testing"

	"ouvidor/internal/domain"
)

func TestAdvancePlan(t *testing.T) {
	allowed := []struct{ from, to domain.PlanStatus }{
		{domain.PlanPending, domain.PlanInProgress},
		{domain.PlanPending, domain.PlanCanceled},
		{domain.PlanInProgress, domain.PlanDone},
		{domain.PlanInProgress, domain.PlanCanceled},
	}
	for _, tc := range allowed {
		if err := AdvancePlan(tc.from, tc.to); err != nil {
			t.Errorf("%s -> %s: %v", tc.from, tc.to, err)
		}
	}
	rejected := []struct{ from, to domain.PlanStatus }{
		{domain.PlanPending, domain.PlanDone},
		{domain.PlanInProgress, domain.PlanInProgress},
		{domain.PlanInProgress, domain.PlanPending},
		{domain.PlanDone, domain.PlanCanceled},
		{domain.PlanDone, domain.PlanInProgress},
		{domain.PlanCanceled, domain.PlanInProgress},
	}
	for _, tc := range rejected {
		if err := AdvancePlan(tc.from, tc.to); err == nil {
			t.Errorf("%s -> %s should fail", tc.from, tc.to)
		}
	}
}
