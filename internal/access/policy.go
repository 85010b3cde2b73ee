package access

import (
	"context"
	"fmt"

	"github.com/angelmondragon/mangopay-gateway/internal/caller"
	"github.com/angelmondragon/mangopay-gateway/internal/processor"
	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	"github.com/angelmondragon/mangopay-gateway/internal/rpc"
	"github.com/angelmondragon/mangopay-gateway/internal/workflows/counters"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
)

// Request is everything the policy needs to judge one call.
type Request struct {
	Identity  caller.Identity
	User      *resources.User
	Method    string
	Args      rpc.Args
	Processor *processor.Handle
}

// Linked returns the caller's linked processor accounts.
func (r Request) Linked() resources.LinkedAccounts {
	return r.User.Linked()
}

// Hook runs after a successful dispatch.
type Hook func(ctx context.Context) error

// Decision is the outcome of an authorized call.
type Decision struct {
	Privileged bool
	Check      string
	After      Hook
}

// Rule is one row of the method table.
type Rule struct {
	SelfService bool
	Check       OwnershipCheck
}

type PolicyParams struct {
	Resources resources.Service
	Counters  *counters.Adjuster
	Logger    *logger.Logger
}

// Policy authorizes calls against the declarative method table.
type Policy struct {
	rules     map[string]Rule
	resources resources.Service
	counters  *counters.Adjuster
	logg      *logger.Logger
}

func NewPolicy(params PolicyParams) (*Policy, error) {
	if params.Resources == nil {
		return nil, fmt.Errorf("resources service required")
	}
	p := &Policy{
		resources: params.Resources,
		counters:  params.Counters,
		logg:      params.Logger,
	}
	p.rules = p.defaultRules()
	return p, nil
}

func (p *Policy) defaultRules() map[string]Rule {
	account := firstArgAccount{}
	self := func(check OwnershipCheck) Rule { return Rule{SelfService: true, Check: check} }

	return map[string]Rule{
		"Users.createBankAccount": self(account),
		"Users.getBankAccount":    self(account),
		"Users.createKycDocument": self(account),
		"Users.getKycDocuments":   self(account),
		"Users.updateKycDocument": self(account),
		"Users.createKycPage":     self(account),
		"Users.getEMoney":         self(account),

		"UboDeclarations.create":    self(account),
		"UboDeclarations.createUbo": self(account),
		"UboDeclarations.get":       self(account),
		"UboDeclarations.getAll":    self(account),
		"UboDeclarations.getUbo":    self(account),
		"UboDeclarations.update":    self(account),
		"UboDeclarations.updateUbo": self(account),

		"CardRegistrations.create": self(cardRegistration{}),
		"CardRegistrations.update": self(cardRegistration{}),

		"Cards.get":                  self(fetchedCard{}),
		"Cards.update":               self(fetchedCard{}),
		"Cards.getTransactions":      self(fetchedCard{}),
		"Cards.getPreAuthorizations": self(fetchedCard{}),
		"Cards.validate":             self(fetchedCard{}),

		"CardPreAuthorizations.get": self(fetchedPreauth{}),
		"Wallets.get":               self(fetchedWallet{}),
		"PayIns.get":                self(fetchedPayIn{}),
		"PayOuts.create":            self(payout{resources: p.resources, counters: p.counters}),

		"Custom.createOwnerUser": self(delegated{}),
		"Custom.payIn":           self(delegated{}),
		"Custom.preauthorize":    self(delegated{}),
		"Custom.sponsorProduct":  self(delegated{}),
		"Custom.sponsorProfile":  self(delegated{}),

		"Custom.capturePreauthorization": {Check: delegated{}},
		"Custom.refundPayIns":            {Check: delegated{}},
		"Custom.transferToOwner":         {Check: delegated{}},
		"Custom.updateAssetForAdv":       {Check: delegated{}},
		"Custom.stopAdv":                 {Check: delegated{}},
	}
}

// Rule returns the table row for a method.
func (p *Policy) Rule(method string) (Rule, bool) {
	rule, ok := p.rules[method]
	return rule, ok
}

// Authorize decides whether the call proceeds. Privileged callers skip the
// table; everyone else needs a linked account, a self-service rule and a
// passing ownership check.
func (p *Policy) Authorize(ctx context.Context, req Request) (Decision, error) {
	if req.Identity.Privileged() {
		return Decision{Privileged: true, Check: "privileged"}, nil
	}
	if !req.Identity.HasUser() || req.User == nil || !req.Linked().Any() {
		return Decision{}, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed")
	}

	rule, ok := p.rules[req.Method]
	if !ok || !rule.SelfService {
		return Decision{}, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed")
	}

	check := rule.Check
	if check == nil {
		check = firstArgAccount{}
	}
	hook, err := check.Check(ctx, req)
	if err != nil {
		if p.logg != nil {
			p.logg.Warn(p.logg.WithFields(ctx, map[string]any{
				"method": req.Method,
				"check":  check.Name(),
			}), "ownership check rejected call")
		}
		return Decision{}, err
	}
	return Decision{Check: check.Name(), After: hook}, nil
}
