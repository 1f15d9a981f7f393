package model

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	// LifetimeDays marks a plan that never expires in practice.
	LifetimeDays = -1
	// lifetimeYears is how far in the future a lifetime subscription expires.
	lifetimeYears = 100
	// lifetimeThresholdDays separates lifetime grants from long fixed ones.
	lifetimeThresholdDays = 36500

	Currency    = "UGX"
	CountryCode = "UG"

	PlanPromotional = "LuoFree Plan"
)

// Plan is a catalog entry. Price is in whole UGX.
type Plan struct {
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	DurationDays int    `json:"duration_days"`
	AdminOnly    bool   `json:"-"`
}

func (p Plan) IsLifetime() bool { return p.DurationDays == LifetimeDays }

var catalog = []Plan{
	{Name: "2 Days", Price: 5000, DurationDays: 2},
	{Name: "1 Week", Price: 10000, DurationDays: 7},
	{Name: "2 Weeks", Price: 17000, DurationDays: 14},
	{Name: "1 Month", Price: 30000, DurationDays: 30},
	{Name: "3 Months", Price: 70000, DurationDays: 90},
	{Name: "6 Months", Price: 120000, DurationDays: 180},
	{Name: "1 Year", Price: 200000, DurationDays: 365},
	{Name: "Lifetime", Price: 1000000, DurationDays: LifetimeDays},
	{Name: PlanPromotional, Price: 0, DurationDays: 30, AdminOnly: true},
}

var customPlanRe = regexp.MustCompile(`^Custom \((\d+) days\)$`)

// FindPlan looks a plan up by its exact display name. Admin custom plans
// ("Custom (N days)") resolve to a synthetic admin-only plan.
func FindPlan(name string) (Plan, bool) {
	for _, p := range catalog {
		if p.Name == name {
			return p, true
		}
	}
	if m := customPlanRe.FindStringSubmatch(name); m != nil {
		days, err := strconv.Atoi(m[1])
		if err == nil && days > 0 {
			return Plan{Name: name, DurationDays: days, AdminOnly: true}, true
		}
	}
	return Plan{}, false
}

// PurchasablePlans returns the plans a customer may buy, in catalog order.
func PurchasablePlans() []Plan {
	out := make([]Plan, 0, len(catalog))
	for _, p := range catalog {
		if !p.AdminOnly {
			out = append(out, p)
		}
	}
	return out
}

// PlanDays resolves the duration of a named plan.
func PlanDays(name string) (int, bool) {
	p, ok := FindPlan(name)
	if !ok {
		return 0, false
	}
	return p.DurationDays, true
}

// CustomPlanName is the name recorded for an admin grant of an arbitrary length.
func CustomPlanName(days int) string {
	return fmt.Sprintf("Custom (%d days)", days)
}

// ExpiryFor computes when a subscription started at start with the given
// duration ends. Lifetime plans end a century later.
func ExpiryFor(start time.Time, days int) time.Time {
	if days == LifetimeDays {
		return start.AddDate(lifetimeYears, 0, 0)
	}
	return start.AddDate(0, 0, days)
}
