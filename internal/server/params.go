package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/peykchat/peyk/internal/database"
)

// Param declares one expected query parameter of an action. Presence
// is required; the regex is matched against the raw string form before
// any integer coercion. Validate transforms/authorizes the coerced
// value (e.g. resolving a peer user id to a private chat id). Lookup
// fetches a referenced entity and runs only after every independent
// param validated, so it may filter by the values they produced.
type Param struct {
	Name      string
	Regex     *regexp.Regexp
	DependsOn []string
	Validate  func(ctx context.Context, s *Session, value int64) (int64, error)
	Lookup    func(ctx context.Context, s *Session, c *Content, value int64) (any, error)
}

// Content is one validated inbound frame plus everything the param
// pipeline resolved from it.
type Content struct {
	Action  string
	Body    map[string]any
	Query   map[string]any
	values  map[string]int64
	objects map[string]any
}

func newContent(action string, frame ClientFrame) *Content {
	return &Content{
		Action:  action,
		Body:    frame.Body,
		Query:   frame.Query,
		values:  make(map[string]int64),
		objects: make(map[string]any),
	}
}

// Value returns a coerced, validated query param.
func (c *Content) Value(name string) (int64, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Object returns an entity resolved by a param lookup.
func (c *Content) Object(name string) (any, bool) {
	obj, ok := c.objects[name]
	return obj, ok
}

func (c *Content) BodyString(key string) string {
	if c.Body == nil {
		return ""
	}
	s, _ := c.Body[key].(string)
	return s
}

func (c *Content) BodyBool(key string) bool {
	if c.Body == nil {
		return false
	}
	b, _ := c.Body[key].(bool)
	return b
}

func (c *Content) BodyMap(key string) map[string]any {
	if c.Body == nil {
		return nil
	}
	m, _ := c.Body[key].(map[string]any)
	return m
}

const (
	msgRequired = "This field is required"
	msgInvalid  = "A valid integer is required"
	msgNotFound = "Not found"
)

// rawParamString extracts the raw string form of a query value. JSON
// numbers are accepted as well as strings, but only integral ones.
func rawParamString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		if val != math.Trunc(val) {
			return "", false
		}
		return strconv.FormatInt(int64(val), 10), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		return "", false
	}
}

// notFound reports whether err means the referenced entity does not
// exist or is invisible to the caller. Anything else is a storage
// failure and must surface as an internal error, not a field error.
func notFound(err error) bool {
	return errors.Is(err, ErrChatNotFound) || errors.Is(err, database.ErrNotFound)
}

// validateParams runs the two-phase pipeline: independent params are
// coerced and validated first, then dependent lookups run against the
// values phase one produced. Field errors accumulate and are returned
// together in a single validation error; a hook failing for any other
// reason aborts with that error.
func validateParams(ctx context.Context, s *Session, c *Content, params []Param) error {
	fieldErrors := make(map[string][]string)

	addErr := func(field, msg string) {
		fieldErrors[field] = append(fieldErrors[field], msg)
	}

	coerce := func(p Param) (int64, bool) {
		raw, present := c.Query[p.Name]
		if !present {
			addErr(p.Name, msgRequired)
			return 0, false
		}

		str, ok := rawParamString(raw)
		if !ok {
			addErr(p.Name, msgInvalid)
			return 0, false
		}
		if p.Regex != nil && !p.Regex.MatchString(str) {
			addErr(p.Name, msgInvalid)
			return 0, false
		}

		// coercion happens strictly after regex acceptance; "-0"
		// parses to 0 here.
		value, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			addErr(p.Name, msgInvalid)
			return 0, false
		}
		return value, true
	}

	// phase one: independent params
	for _, p := range params {
		if len(p.DependsOn) > 0 {
			continue
		}
		value, ok := coerce(p)
		if !ok {
			continue
		}
		if p.Validate != nil {
			resolved, err := p.Validate(ctx, s, value)
			if err != nil {
				if !notFound(err) {
					return fmt.Errorf("validate %s: %w", p.Name, err)
				}
				addErr(p.Name, msgNotFound)
				continue
			}
			value = resolved
		}
		c.values[p.Name] = value
	}

	// phase two: dependent lookups, only once their dependencies hold
	for _, p := range params {
		if len(p.DependsOn) == 0 {
			continue
		}
		value, ok := coerce(p)
		if !ok {
			continue
		}

		depsMet := true
		for _, dep := range p.DependsOn {
			if _, ok := c.values[dep]; !ok {
				depsMet = false
				break
			}
		}
		if !depsMet {
			continue
		}

		c.values[p.Name] = value
		if p.Lookup != nil {
			obj, err := p.Lookup(ctx, s, c, value)
			if err != nil {
				if !notFound(err) {
					return fmt.Errorf("resolve %s: %w", p.Name, err)
				}
				addErr(p.Name, msgNotFound)
				delete(c.values, p.Name)
				continue
			}
			c.objects[p.Name] = obj
		}
	}

	if len(fieldErrors) > 0 {
		return errValidation(c.Action, fieldErrors)
	}
	return nil
}
