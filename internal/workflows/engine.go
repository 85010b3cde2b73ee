// Package workflows runs the multi-step payment and sponsorship operations
// exposed as Custom.* methods.
package workflows

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/angelmondragon/mangopay-gateway/internal/caller"
	"github.com/angelmondragon/mangopay-gateway/internal/processor"
	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	"github.com/angelmondragon/mangopay-gateway/internal/rpc"
	"github.com/angelmondragon/mangopay-gateway/internal/workflows/counters"
	"github.com/angelmondragon/mangopay-gateway/pkg/bigquery"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Session is the per-call context a workflow runs with.
type Session struct {
	Identity  caller.Identity
	User      *resources.User
	Processor *processor.Handle
}

func (s Session) Privileged() bool {
	return s.Identity.Privileged()
}

func (s Session) Linked() resources.LinkedAccounts {
	return s.User.Linked()
}

// FactWriter receives sponsorship facts.
type FactWriter interface {
	WriteFacts(ctx context.Context, facts []bigquery.SponsorshipFact) error
}

type Params struct {
	Resources resources.Service
	Counters  *counters.Adjuster
	Facts     FactWriter
	Tracer    trace.Tracer
	Logger    *logger.Logger
	Now       func() time.Time
}

type operation func(ctx context.Context, s Session, args rpc.Args) (any, error)

// Engine dispatches Custom.* methods to their workflow.
type Engine struct {
	resources resources.Service
	counters  *counters.Adjuster
	facts     FactWriter
	tracer    trace.Tracer
	logg      *logger.Logger
	now       func() time.Time
	ops       map[string]operation
}

func NewEngine(params Params) (*Engine, error) {
	if params.Resources == nil {
		return nil, fmt.Errorf("resources service required")
	}
	e := &Engine{
		resources: params.Resources,
		counters:  params.Counters,
		facts:     params.Facts,
		tracer:    params.Tracer,
		logg:      params.Logger,
		now:       params.Now,
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("mangopay-gateway/workflows")
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.counters == nil {
		e.counters = counters.NewAdjuster(counters.Params{Logger: params.Logger})
	}
	e.ops = map[string]operation{
		"Custom.createOwnerUser":         e.createOwnerUser,
		"Custom.payIn":                   e.payIn,
		"Custom.preauthorize":            e.preauthorize,
		"Custom.capturePreauthorization": e.capturePreauthorization,
		"Custom.refundPayIns":            e.refundPayIns,
		"Custom.transferToOwner":         e.transferToOwner,
		"Custom.sponsorProduct":          e.sponsorProduct,
		"Custom.sponsorProfile":          e.sponsorProfile,
		"Custom.updateAssetForAdv":       e.activateSponsorship,
		"Custom.stopAdv":                 e.stopSponsorship,
	}
	return e, nil
}

// Has reports whether method is a registered workflow.
func (e *Engine) Has(method string) bool {
	_, ok := e.ops[method]
	return ok
}

func (e *Engine) Methods() []string {
	names := make([]string, 0, len(e.ops))
	for name := range e.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes a workflow. Validation and authorization failures are raised
// before any side effect; partial progress stays on platformData.
func (e *Engine) Run(ctx context.Context, s Session, method string, args rpc.Args) (any, error) {
	op, ok := e.ops[method]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown method").WithDetails(map[string]any{"method": method})
	}
	if s.Processor == nil || s.Processor.Client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "processor client missing")
	}

	ctx, span := e.tracer.Start(ctx, "workflow."+method, trace.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.Bool("caller.privileged", s.Privileged()),
	))
	defer span.End()

	out, err := op(ctx, s, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

func (e *Engine) customConfig(ctx context.Context) (resources.CustomConfig, error) {
	cfg, err := e.resources.Config().Public(ctx)
	if err != nil {
		return resources.CustomConfig{}, err
	}
	return cfg.Custom, nil
}

func requirePrivileged(s Session) error {
	if !s.Privileged() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "not allowed")
	}
	return nil
}

func missingArgs(reason string) error {
	return rpc.BadArgs(reason)
}

func (e *Engine) warn(ctx context.Context, msg string, err error) {
	if e.logg == nil {
		return
	}
	e.logg.Warn(e.logg.WithField(ctx, "error", err.Error()), msg)
}
