// Package dispatch forwards generic processor methods onto the Mangopay REST
// API through a closed route table.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/mangopay-gateway/internal/caller"
	"github.com/angelmondragon/mangopay-gateway/internal/processor"
	"github.com/angelmondragon/mangopay-gateway/internal/rpc"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
	"github.com/angelmondragon/mangopay-gateway/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RPCObserver records one dispatch outcome.
type RPCObserver interface {
	ObserveRPC(method, outcome string, d time.Duration)
}

type Params struct {
	Tracer   trace.Tracer
	Observer RPCObserver
	Logger   *logger.Logger
}

// Dispatcher invokes registered processor methods.
type Dispatcher struct {
	routes   map[string]Route
	tracer   trace.Tracer
	observer RPCObserver
	logg     *logger.Logger
}

func New(params Params) *Dispatcher {
	tracer := params.Tracer
	if tracer == nil {
		tracer = otel.Tracer("mangopay-gateway/dispatch")
	}
	return &Dispatcher{
		routes:   defaultRoutes(),
		tracer:   tracer,
		observer: params.Observer,
		logg:     params.Logger,
	}
}

// Has reports whether method is a registered processor method.
func (d *Dispatcher) Has(method string) bool {
	_, ok := d.routes[method]
	return ok
}

// Methods lists the registered names in order.
func (d *Dispatcher) Methods() []string {
	names := make([]string, 0, len(d.routes))
	for name := range d.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs method against the processor and returns its raw response.
func (d *Dispatcher) Invoke(ctx context.Context, h *processor.Handle, method string, args rpc.Args) (json.RawMessage, error) {
	route, ok := d.routes[method]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown method").WithDetails(map[string]any{"method": method})
	}
	if h == nil || h.Client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "processor client missing")
	}

	ctx, span := d.tracer.Start(ctx, "dispatch."+method, trace.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.String("platform.id", h.Scope.PlatformID),
		attribute.String("platform.env", h.Scope.Env),
	))
	defer span.End()
	started := time.Now()

	if method == "Cards.validate" {
		identity, _ := caller.FromContext(ctx)
		args = withBrowserInfo(args, identity)
	}

	out, err := d.invoke(ctx, h, route, args)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			outcome = metrics.OutcomeRejected
		} else {
			outcome = metrics.OutcomeProcessor
			err = h.Wrap(method, err)
		}
	}
	if d.observer != nil {
		d.observer.ObserveRPC(method, outcome, time.Since(started))
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Dispatcher) invoke(ctx context.Context, h *processor.Handle, route Route, args rpc.Args) (json.RawMessage, error) {
	ids := make([]any, 0, len(route.IDs)+1)
	for _, pos := range route.IDs {
		id, err := args.ID(pos)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id.String())
	}

	var body map[string]any
	if route.Body >= 0 {
		if args.Has(route.Body) {
			m, err := args.Map(route.Body)
			if err != nil {
				return nil, err
			}
			body = m
		} else if route.BodyID || route.Resolve != nil {
			return nil, rpc.BadArgs(fmt.Sprintf("argument %d must be an object", route.Body))
		} else {
			body = map[string]any{}
		}
	}

	path := route.Path
	if route.Resolve != nil {
		resolvedPath, err := route.Resolve(body)
		if err != nil {
			return nil, err
		}
		path = resolvedPath
	}
	if route.BodyID {
		id, err := bodyID(body)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if strings.Count(path, "%s") != len(ids) {
		return nil, rpc.BadArgs("argument count does not match method")
	}
	if len(ids) > 0 {
		path = fmt.Sprintf(path, ids...)
	}

	query, err := options(args, route.arity())
	if err != nil {
		return nil, err
	}

	var payload any
	if body != nil {
		payload = body
	}
	var out json.RawMessage
	if err := h.Client.Do(ctx, route.Verb, path, query, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// options reads the trailing {parameters:{...}} argument as a query string.
func options(args rpc.Args, pos int) (url.Values, error) {
	if !args.Has(pos) {
		return nil, nil
	}
	var opts struct {
		Parameters map[string]any `json:"parameters"`
	}
	if err := args.Object(pos, &opts); err != nil {
		return nil, err
	}
	if len(opts.Parameters) == 0 {
		return nil, nil
	}
	query := url.Values{}
	for key, value := range opts.Parameters {
		switch v := value.(type) {
		case string:
			query.Set(key, v)
		case nil:
		default:
			encoded, _ := json.Marshal(v)
			query.Set(key, strings.Trim(string(encoded), `"`))
		}
	}
	return query, nil
}

// withBrowserInfo fills args[1].BrowserInfo from the caller's request headers,
// keeping any field the caller already provided.
func withBrowserInfo(args rpc.Args, identity caller.Identity) rpc.Args {
	if !args.Has(1) {
		return args
	}
	body, err := args.Map(1)
	if err != nil {
		return args
	}
	info := map[string]any{
		"AcceptHeader":      identity.Headers.Accept,
		"JavascriptEnabled": true,
		"UserAgent":         identity.Headers.UserAgent,
	}
	if lang := identity.Headers.Language(); lang != "" {
		info["Language"] = lang
	}
	if existing, ok := body["BrowserInfo"].(map[string]any); ok {
		for k, v := range existing {
			info[k] = v
		}
	}
	body["BrowserInfo"] = info
	encoded, err := json.Marshal(body)
	if err != nil {
		return args
	}
	out := append(rpc.Args(nil), args...)
	out[1] = encoded
	return out
}
