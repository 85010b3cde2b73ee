// Package gateway is the single entry point behind the request endpoint. It
// wires the caller identity, the processor handle, the access policy and the
// two executors together.
package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/angelmondragon/mangopay-gateway/internal/access"
	"github.com/angelmondragon/mangopay-gateway/internal/caller"
	"github.com/angelmondragon/mangopay-gateway/internal/processor"
	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	"github.com/angelmondragon/mangopay-gateway/internal/rpc"
	"github.com/angelmondragon/mangopay-gateway/internal/workflows"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
	"github.com/angelmondragon/mangopay-gateway/pkg/metrics"
)

// Service handles one RPC call on behalf of the caller stored on ctx.
type Service interface {
	Handle(ctx context.Context, method string, args json.RawMessage) (any, error)
	Methods() []string
}

type authorizer interface {
	Authorize(ctx context.Context, req access.Request) (access.Decision, error)
}

type workflowRunner interface {
	Has(method string) bool
	Methods() []string
	Run(ctx context.Context, s workflows.Session, method string, args rpc.Args) (any, error)
}

type invoker interface {
	Has(method string) bool
	Methods() []string
	Invoke(ctx context.Context, h *processor.Handle, method string, args rpc.Args) (json.RawMessage, error)
}

type rpcObserver interface {
	ObserveRPC(method, outcome string, d time.Duration)
}

// ServiceParams groups the gateway dependencies.
type ServiceParams struct {
	Resources  resources.Service
	Factory    processor.Factory
	Policy     authorizer
	Workflows  workflowRunner
	Dispatcher invoker
	Observer   rpcObserver
	Logger     *logger.Logger
}

type service struct {
	resources  resources.Service
	factory    processor.Factory
	policy     authorizer
	workflows  workflowRunner
	dispatcher invoker
	observer   rpcObserver
	logg       *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Resources == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "resources service required")
	}
	if params.Factory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "processor factory required")
	}
	if params.Policy == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "access policy required")
	}
	if params.Workflows == nil || params.Dispatcher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "workflow engine and dispatcher required")
	}
	return &service{
		resources:  params.Resources,
		factory:    params.Factory,
		policy:     params.Policy,
		workflows:  params.Workflows,
		dispatcher: params.Dispatcher,
		observer:   params.Observer,
		logg:       params.Logger,
	}, nil
}

func (s *service) Methods() []string {
	return append(s.workflows.Methods(), s.dispatcher.Methods()...)
}

func (s *service) Handle(ctx context.Context, method string, raw json.RawMessage) (any, error) {
	identity, ok := caller.FromContext(ctx)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing")
	}
	method = strings.TrimSpace(method)
	if method == "" {
		return nil, rpc.BadArgs("method is required")
	}
	workflow := s.workflows.Has(method)
	if !workflow && !s.dispatcher.Has(method) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown method").WithDetails(map[string]any{"method": method})
	}
	if s.logg != nil {
		ctx = s.logg.WithMethod(ctx, method)
	}

	args, err := rpc.ParseArgs(raw)
	if err != nil {
		return nil, err
	}
	handle, err := s.factory.Build(ctx)
	if err != nil {
		return nil, err
	}
	user, err := s.callerUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	decision, err := s.policy.Authorize(ctx, access.Request{
		Identity:  identity,
		User:      user,
		Method:    method,
		Args:      args,
		Processor: handle,
	})
	if err != nil {
		return nil, err
	}

	var out any
	if workflow {
		started := time.Now()
		out, err = s.workflows.Run(ctx, workflows.Session{Identity: identity, User: user, Processor: handle}, method, args)
		if s.observer != nil {
			s.observer.ObserveRPC(method, outcome(err), time.Since(started))
		}
	} else {
		out, err = s.dispatcher.Invoke(ctx, handle, method, args)
	}
	if err != nil {
		return nil, err
	}

	if decision.After != nil {
		if hookErr := decision.After(ctx); hookErr != nil && s.logg != nil {
			s.logg.Error(ctx, "post-dispatch hook failed", hookErr)
		}
	}
	return out, nil
}

// callerUser loads the marketplace user behind the token. A user the
// platform no longer knows is treated as unlinked.
func (s *service) callerUser(ctx context.Context, identity caller.Identity) (*resources.User, error) {
	if !identity.HasUser() {
		return nil, nil
	}
	user, err := s.resources.GetUser(ctx, identity.UserID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case pkgerrors.IsCode(err, pkgerrors.CodeProcessor):
		return metrics.OutcomeProcessor
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation),
		pkgerrors.IsCode(err, pkgerrors.CodeForbidden),
		pkgerrors.IsCode(err, pkgerrors.CodeNotFound),
		pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
