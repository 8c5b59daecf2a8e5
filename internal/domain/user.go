package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the access level of a dashboard user.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// IsAdmin reports whether the role may use administrative endpoints.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Plan is a subscription tier.
type Plan string

const (
	PlanStarter      Plan = "starter"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
)

// PlanDetails describes the monthly allowance of a plan.
type PlanDetails struct {
	Name      Plan    `json:"name"`
	Price     float64 `json:"price"`
	MaxCalls  int     `json:"maxCalls"`
	Analytics bool    `json:"analytics"`
}

var plans = map[Plan]PlanDetails{
	PlanStarter:      {Name: PlanStarter, Price: 49, MaxCalls: 1000},
	PlanProfessional: {Name: PlanProfessional, Price: 99, MaxCalls: 5000, Analytics: true},
	PlanEnterprise:   {Name: PlanEnterprise, Price: 199, MaxCalls: 20000, Analytics: true},
}

// LookupPlan returns the details for a plan name, case-insensitively.
func LookupPlan(name string) (PlanDetails, bool) {
	p, ok := plans[Plan(strings.ToLower(strings.TrimSpace(name)))]
	return p, ok
}

// Plans lists every plan, cheapest first.
func Plans() []PlanDetails {
	return []PlanDetails{plans[PlanStarter], plans[PlanProfessional], plans[PlanEnterprise]}
}

// Subscription captures the billing state of a user.
type Subscription struct {
	Plan      Plan
	MaxCalls  int
	Active    bool
	ExpiresAt *time.Time
}

// Usable reports whether the subscription allows placing calls at now.
func (s Subscription) Usable(now time.Time) bool {
	if !s.Active {
		return false
	}
	return s.ExpiresAt == nil || now.Before(*s.ExpiresAt)
}

// User is a dashboard account.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	Subscription Subscription
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
