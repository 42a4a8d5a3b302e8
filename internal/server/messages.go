package server

import (
	"regexp"
	"strings"

	"github.com/peykchat/peyk/internal/transport"
)

// actionTokenRe is the accepted shape of an inbound action name,
// checked before normalization.
var actionTokenRe = regexp.MustCompile(`^[a-z]+[_.]?[a-z]+$`)

// ClientFrame is one inbound message: a named action with optional
// body and query sections.
type ClientFrame struct {
	Action string         `json:"action"`
	Body   map[string]any `json:"body,omitempty"`
	Query  map[string]any `json:"query,omitempty"`
}

// normalizeAction maps an accepted wire token to a registry key:
// "send.message" becomes "send_message".
func normalizeAction(action string) string {
	return strings.ReplaceAll(action, ".", "_")
}

// Error codes carried in client-visible error envelopes. Clients
// distinguish failures by code, never by message text.
const (
	CodeInvalid          = "invalid"
	CodePermissionDenied = "permission_denied"
	CodeNotFound         = "not_found"
	CodeActionNotFound   = "action_404"
	CodeAlreadySeen      = "already_seen"
	CodeUnexpected       = "unexpected"
)

// ConsumerError is a client-visible failure raised during dispatch. It
// is caught exactly once at the dispatch boundary and serialized into
// an error envelope; handlers let it propagate.
type ConsumerError struct {
	Action string
	Code   string
	Info   any
}

func (e *ConsumerError) Error() string {
	return e.Code
}

func (e *ConsumerError) detail() map[string]any {
	info := e.Info
	if info == nil {
		info = []string{}
	}
	switch info.(type) {
	case []string, map[string][]string, map[string]any:
	default:
		info = []any{info}
	}
	return map[string]any{
		"action": e.Action,
		"code":   e.Code,
		"info":   info,
	}
}

func errValidation(action string, fieldErrors map[string][]string) *ConsumerError {
	return &ConsumerError{Action: action, Code: CodeInvalid, Info: fieldErrors}
}

func errPermissionDenied(action string) *ConsumerError {
	return &ConsumerError{
		Action: action,
		Code:   CodePermissionDenied,
		Info:   []string{"You don't have permissions to perform this action"},
	}
}

// errNotFound is shared by "truly absent" and "exists but not yours":
// the two must be indistinguishable to the client.
func errNotFound(action, item string) *ConsumerError {
	return &ConsumerError{
		Action: action,
		Code:   CodeNotFound,
		Info:   []string{item + " not found"},
	}
}

func errActionNotFound(action string) *ConsumerError {
	return &ConsumerError{
		Action: action,
		Code:   CodeActionNotFound,
		Info:   []string{"Action not found"},
	}
}

func errAlreadySeen(action string) *ConsumerError {
	return &ConsumerError{
		Action: action,
		Code:   CodeAlreadySeen,
		Info:   []string{"Message already seen"},
	}
}

func errUnexpected(action string) *ConsumerError {
	return &ConsumerError{
		Action: action,
		Code:   CodeUnexpected,
		Info:   []string{"An unexpected error occured"},
	}
}

func errorEnvelope(err *ConsumerError) map[string]any {
	return map[string]any{
		"status": "error",
		"detail": err.detail(),
	}
}

func successEnvelope(detail any) map[string]any {
	env := map[string]any{"status": "success"}
	if detail != nil {
		env["detail"] = detail
	}
	return env
}

// eventFrame turns a delivered event into the outbound broadcast
// frame: the client-visible title plus payload, transport metadata
// stripped.
func eventFrame(ev transport.Event) map[string]any {
	frame := make(map[string]any, len(ev.Payload)+1)
	frame["action"] = ev.Title
	for k, v := range ev.Payload {
		frame[k] = v
	}
	return frame
}
