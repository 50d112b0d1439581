// Package seed loads optional YAML fixture files that bootstrap a fresh
// environment with tenants' queues, roles, users and policies. Intended
// for development and demo deployments; production tenants are provisioned
// through the admin API.
package seed

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/jmalloway/checksub001/pkg/model"
)

// File is the top-level fixture document.
type File struct {
	Tenants []Tenant `yaml:"tenants"`
}

type Tenant struct {
	ID       string    `yaml:"id"`
	Queues   []Queue   `yaml:"queues"`
	Users    []User    `yaml:"users"`
	Policies []Policy  `yaml:"policies"`
}

type Queue struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type User struct {
	Username     string   `yaml:"username"`
	Email        string   `yaml:"email"`
	Password     string   `yaml:"password"`
	Roles        []string `yaml:"roles"`
	IsSuperuser  bool     `yaml:"is_superuser"`
	Entitlements []Entitlement `yaml:"entitlements"`
}

type Entitlement struct {
	Type      string   `yaml:"type"`
	MinAmount string   `yaml:"min_amount"`
	MaxAmount string   `yaml:"max_amount"`
	RiskLevels []string `yaml:"risk_levels"`
}

type Policy struct {
	Name         string `yaml:"name"`
	IsDefault    bool   `yaml:"is_default"`
	AccountTypes []string `yaml:"account_types"`
	Rules        []Rule `yaml:"rules"`
}

type Rule struct {
	Name       string      `yaml:"name"`
	Type       string      `yaml:"type"`
	Priority   int         `yaml:"priority"`
	Conditions []Condition `yaml:"conditions"`
	Actions    []Action    `yaml:"actions"`
}

type Condition struct {
	Field     string `yaml:"field"`
	Operator  string `yaml:"operator"`
	Value     any    `yaml:"value"`
	ValueType string `yaml:"value_type"`
}

type Action struct {
	Action string         `yaml:"action"`
	Params map[string]any `yaml:"params"`
}

// Load parses a fixture file.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("seed: parse %s: %w", path, err)
	}
	return &f, nil
}

// Applier is the persistence surface Apply needs. Implemented by the
// pgstore-backed admin stores; tests use fakes.
type Applier interface {
	CreateQueue(ctx context.Context, q *model.Queue) error
	CreateUser(ctx context.Context, u *model.User, roles []string, passwordHash string) error
	CreateEntitlement(ctx context.Context, e *model.ApprovalEntitlement) error
	CreatePolicy(ctx context.Context, p *model.Policy, version *model.PolicyVersion) error
}

// HashFunc hashes a fixture password for storage; wired to auth.HashPassword
// by the caller so this package doesn't import the auth service.
type HashFunc func(password string) (string, error)

// Apply inserts every fixture entity, generating IDs where the fixture
// leaves them blank. It is not idempotent; run it against empty databases
// only.
func Apply(ctx context.Context, f *File, store Applier, hash HashFunc, now time.Time) error {
	for _, t := range f.Tenants {
		for _, q := range t.Queues {
			id := q.ID
			if id == "" {
				id = uuid.NewString()
			}
			if err := store.CreateQueue(ctx, &model.Queue{ID: id, TenantID: t.ID, Name: q.Name}); err != nil {
				return fmt.Errorf("seed: queue %s: %w", q.Name, err)
			}
		}
		for _, u := range t.Users {
			pwHash, err := hash(u.Password)
			if err != nil {
				return fmt.Errorf("seed: hash password for %s: %w", u.Username, err)
			}
			userID := uuid.NewString()
			mu := &model.User{
				ID:          userID,
				TenantID:    t.ID,
				Username:    u.Username,
				Email:       u.Email,
				IsSuperuser: u.IsSuperuser,
				IsActive:    true,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := store.CreateUser(ctx, mu, u.Roles, pwHash); err != nil {
				return fmt.Errorf("seed: user %s: %w", u.Username, err)
			}
			for _, e := range u.Entitlements {
				ent := &model.ApprovalEntitlement{
					ID:              uuid.NewString(),
					TenantID:        t.ID,
					UserID:          &userID,
					EntitlementType: model.EntitlementType(e.Type),
					IsActive:        true,
					EffectiveFrom:   now,
				}
				if e.MinAmount != "" {
					m, err := model.NewMoneyFromString(e.MinAmount)
					if err != nil {
						return fmt.Errorf("seed: entitlement min_amount: %w", err)
					}
					ent.MinAmount = &m
				}
				if e.MaxAmount != "" {
					m, err := model.NewMoneyFromString(e.MaxAmount)
					if err != nil {
						return fmt.Errorf("seed: entitlement max_amount: %w", err)
					}
					ent.MaxAmount = &m
				}
				for _, rl := range e.RiskLevels {
					ent.AllowedRiskLevels = append(ent.AllowedRiskLevels, model.RiskLevel(rl))
				}
				if err := store.CreateEntitlement(ctx, ent); err != nil {
					return fmt.Errorf("seed: entitlement for %s: %w", u.Username, err)
				}
			}
		}
		for _, p := range t.Policies {
			policyID := uuid.NewString()
			versionID := uuid.NewString()
			mp := &model.Policy{
				ID:        policyID,
				TenantID:  t.ID,
				Name:      p.Name,
				Status:    model.PolicyStatusActive,
				IsDefault: p.IsDefault,
			}
			for _, at := range p.AccountTypes {
				mp.AppliesToAccountTypes = append(mp.AppliesToAccountTypes, model.AccountType(at))
			}
			version := &model.PolicyVersion{
				ID:            versionID,
				PolicyID:      policyID,
				TenantID:      t.ID,
				EffectiveDate: now,
				IsCurrent:     true,
			}
			for i, r := range p.Rules {
				rule := model.PolicyRule{
					ID:              uuid.NewString(),
					PolicyVersionID: versionID,
					Name:            r.Name,
					RuleType:        model.RuleType(r.Type),
					Priority:        r.Priority,
					IsEnabled:       true,
					CreatedAt:       now.Add(time.Duration(i) * time.Millisecond),
				}
				for _, c := range r.Conditions {
					rule.Conditions = append(rule.Conditions, model.Condition{
						Field:     c.Field,
						Operator:  model.Operator(c.Operator),
						Value:     c.Value,
						ValueType: model.ValueType(c.ValueType),
					})
				}
				for _, a := range r.Actions {
					rule.Actions = append(rule.Actions, model.RuleAction{Action: a.Action, Params: a.Params})
				}
				version.Rules = append(version.Rules, rule)
			}
			if err := store.CreatePolicy(ctx, mp, version); err != nil {
				return fmt.Errorf("seed: policy %s: %w", p.Name, err)
			}
		}
	}
	return nil
}
