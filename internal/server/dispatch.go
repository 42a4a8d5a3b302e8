package server

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/peykchat/peyk/internal/stats"
)

// HandlerFunc runs an action's side effects after validation and
// permission checks passed. The returned detail goes into the success
// envelope; a returned *ConsumerError goes to the client, anything
// else is logged and masked.
type HandlerFunc func(ctx context.Context, s *Session, c *Content) (any, error)

// Action binds a registry name to its param contract, permission
// chain and handler. Perms builds the chain per frame so permissions
// can capture the content; a nil Perms means handler-only actions run
// behind the session's connect-time auth alone.
type Action struct {
	Name    string
	Params  []Param
	Perms   func(c *Content) Permission
	Handler HandlerFunc
}

// Dispatcher routes inbound frames through the validation pipeline to
// their handlers and turns every outcome into exactly one envelope.
type Dispatcher struct {
	actions map[string]Action
	log     zerolog.Logger
	stats   stats.Provider
}

func NewDispatcher(log zerolog.Logger, st stats.Provider) *Dispatcher {
	return &Dispatcher{
		actions: make(map[string]Action),
		log:     log,
		stats:   st,
	}
}

func (d *Dispatcher) Register(a Action) {
	d.actions[a.Name] = a
}

// Dispatch processes one raw inbound frame and always returns the
// envelope to write back on the session. It never panics the pump:
// all handler errors are translated here.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, data []byte) map[string]any {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return d.fail(errValidation("", map[string][]string{
			"non_field_errors": {"Invalid JSON"},
		}))
	}

	// the token is checked raw, before normalization, so garbage like
	// "a..b" or "_x" never reaches the registry; a malformed token is a
	// client input error, not a missing action
	if !actionTokenRe.MatchString(frame.Action) {
		return d.fail(errValidation("", map[string][]string{
			"action": {"This value does not match the required pattern."},
		}))
	}

	name := normalizeAction(frame.Action)
	action, ok := d.actions[name]
	if !ok {
		return d.fail(errActionNotFound(name))
	}

	c := newContent(name, frame)
	if err := validateParams(ctx, s, c, action.Params); err != nil {
		return d.errorResponse(name, err)
	}

	if action.Perms != nil {
		perm := action.Perms(c)
		if err := d.checkPerms(ctx, perm, s, c); err != nil {
			return d.errorResponse(name, err)
		}
	}

	detail, err := action.Handler(ctx, s, c)
	if err != nil {
		return d.errorResponse(name, err)
	}
	return successEnvelope(detail)
}

// checkPerms evaluates the chain once against the content and once
// per resolved object.
func (d *Dispatcher) checkPerms(ctx context.Context, perm Permission, s *Session, c *Content) error {
	if err := perm.Allow(ctx, s, c); err != nil {
		return err
	}
	for _, obj := range c.objects {
		if err := perm.AllowObject(ctx, s, c, obj); err != nil {
			return err
		}
	}
	return nil
}

// errorResponse translates any error escaping validation, permissions
// or a handler into a client envelope. Unexpected errors are logged
// with full detail and masked with a generic envelope.
func (d *Dispatcher) errorResponse(action string, err error) map[string]any {
	var ce *ConsumerError
	if errors.As(err, &ce) {
		if ce.Action == "" {
			ce.Action = action
		}
		return d.fail(ce)
	}

	d.log.Error().Err(err).Str("action", action).Msg("action failed")
	return d.fail(errUnexpected(action))
}

func (d *Dispatcher) fail(err *ConsumerError) map[string]any {
	d.stats.Incr(stats.ActionErrors)
	return errorEnvelope(err)
}
