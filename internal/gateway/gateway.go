package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Family groups cached responses that are invalidated together.
type Family string

const (
	FamilyUpgrades        Family = "upgrades"
	FamilyProductData     Family = "product_data"
	FamilySimilarProducts Family = "similar_products"
	FamilySuggestions     Family = "suggestions"
	FamilyVariations      Family = "variations"
)

var (
	ErrExpectedOutcome = errors.New("expected alternate outcome")
	ErrCallFailed      = errors.New("gateway call failed")
	ErrNoTransport     = errors.New("gateway transport is not configured")
)

// Expected outcome kinds reported by the server.
const (
	OutcomePrimaryConflict = "primary_conflict"
	OutcomeDuplicate       = "duplicate"
)

// ExpectedOutcomeError is returned for {success:false} responses that flag a
// duplicate or a primary-category conflict. Callers branch on Kind and Data.
type ExpectedOutcomeError struct {
	Action  string
	Kind    string
	Message string
	Data    json.RawMessage
}

func (e *ExpectedOutcomeError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Action, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Action, e.Kind)
}

func (e *ExpectedOutcomeError) Is(target error) bool {
	return target == ErrExpectedOutcome
}

type CallError struct {
	Action string
	Data   json.RawMessage
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Action, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func (e *CallError) Is(target error) bool {
	return target == ErrCallFailed
}

type CallState int

const (
	StateIdle CallState = iota
	StateInFlight
	StateResolved
	StateRejectedExpected
	StateRejectedError
)

func (s CallState) String() string {
	switch s {
	case StateInFlight:
		return "in_flight"
	case StateResolved:
		return "resolved"
	case StateRejectedExpected:
		return "rejected_expected"
	case StateRejectedError:
		return "rejected_error"
	default:
		return "idle"
	}
}

type CallOptions struct {
	// AllowFailure turns any unexpected failure into an empty fallback result.
	AllowFailure bool
	CacheFamily  Family
	CacheKey     string
}

type Result struct {
	Data       json.RawMessage
	IsFallback bool
	Cached     bool
}

// ShapeCheck reports whether a response payload is worth caching.
type ShapeCheck func(data json.RawMessage) bool

type Logger interface {
	Printf(format string, args ...any)
}

type Recorder interface {
	ObserveGatewayCall(action, outcome string, d time.Duration)
	ObserveCache(family string, hit bool)
}

type Options struct {
	Logger  Logger
	Metrics Recorder
	// Shapes overrides the default per-family cacheability checks.
	Shapes map[Family]ShapeCheck
}

// Gateway wraps a Transport with response caching and outcome
// classification. It never retries.
type Gateway struct {
	transport Transport
	logger    Logger
	metrics   Recorder
	shapes    map[Family]ShapeCheck

	cacheMu sync.RWMutex
	cache   map[Family]map[string]json.RawMessage

	stateMu sync.Mutex
	states  map[string]CallState
}

func New(transport Transport, opts Options) *Gateway {
	shapes := defaultShapes()
	for family, check := range opts.Shapes {
		shapes[family] = check
	}
	return &Gateway{
		transport: transport,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		shapes:    shapes,
		cache:     map[Family]map[string]json.RawMessage{},
		states:    map[string]CallState{},
	}
}

func defaultShapes() map[Family]ShapeCheck {
	return map[Family]ShapeCheck{
		FamilyUpgrades:        hasField("upgrades", '['),
		FamilyProductData:     hasField("product_data", '{'),
		FamilySimilarProducts: hasField("products", '['),
		FamilySuggestions:     hasField("updated_suggestions", '['),
		FamilyVariations:      hasField("is_variable", 0),
	}
}

// hasField accepts objects carrying field; when kind is non-zero the value
// must start with that JSON delimiter.
func hasField(field string, kind byte) ShapeCheck {
	return func(data json.RawMessage) bool {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return false
		}
		raw, ok := obj[field]
		if !ok {
			return false
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			return false
		}
		return kind == 0 || raw[0] == kind
	}
}

// Invoke performs one call for action. A cache hit for opts.CacheFamily and
// opts.CacheKey short-circuits the transport.
func (g *Gateway) Invoke(ctx context.Context, action string, payload Payload, opts CallOptions) (Result, error) {
	cacheable := opts.CacheFamily != "" && opts.CacheKey != ""
	if cacheable {
		if data, ok := g.cacheGet(opts.CacheFamily, opts.CacheKey); ok {
			g.observeCache(opts.CacheFamily, true)
			return Result{Data: data, Cached: true}, nil
		}
		g.observeCache(opts.CacheFamily, false)
	}

	g.setState(action, StateInFlight)
	started := time.Now()
	var env Envelope
	err := ErrNoTransport
	if g.transport != nil {
		env, err = g.transport.Call(ctx, action, payload)
	}
	if err == nil && env.Success {
		data := env.Data
		if len(bytes.TrimSpace(data)) == 0 {
			data = json.RawMessage(`{}`)
		}
		if cacheable && g.shapeOK(opts.CacheFamily, data) {
			g.cachePut(opts.CacheFamily, opts.CacheKey, data)
		}
		g.finish(action, StateResolved, "resolved", started)
		return Result{Data: data}, nil
	}
	if err == nil {
		if kind, message := expectedOutcome(env.Data); kind != "" {
			g.finish(action, StateRejectedExpected, "rejected_expected", started)
			return Result{}, &ExpectedOutcomeError{Action: action, Kind: kind, Message: message, Data: env.Data}
		}
		err = errors.New(failureMessage(env.Data))
	}

	if opts.AllowFailure {
		g.finish(action, StateRejectedError, "fallback", started)
		g.logf("gateway %s failed, using fallback: %v", action, err)
		return Result{Data: json.RawMessage(`{}`), IsFallback: true}, nil
	}
	g.finish(action, StateRejectedError, "rejected_error", started)
	g.logf("gateway %s failed: %v", action, err)
	return Result{}, &CallError{Action: action, Data: env.Data, Err: err}
}

// State reports the state of the most recent call for action.
func (g *Gateway) State(action string) CallState {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	return g.states[action]
}

func (g *Gateway) Invalidate(family Family, key string) {
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()
	delete(g.cache[family], key)
}

func (g *Gateway) InvalidateFamily(family Family) {
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()
	delete(g.cache, family)
}

func (g *Gateway) InvalidateAll() {
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()
	g.cache = map[Family]map[string]json.RawMessage{}
}

// Cached reports whether a response is held for family and key.
func (g *Gateway) Cached(family Family, key string) bool {
	g.cacheMu.RLock()
	defer g.cacheMu.RUnlock()
	_, ok := g.cache[family][key]
	return ok
}

func (g *Gateway) cacheGet(family Family, key string) (json.RawMessage, bool) {
	g.cacheMu.RLock()
	defer g.cacheMu.RUnlock()
	data, ok := g.cache[family][key]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), data...), true
}

func (g *Gateway) cachePut(family Family, key string, data json.RawMessage) {
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()
	entries, ok := g.cache[family]
	if !ok {
		entries = map[string]json.RawMessage{}
		g.cache[family] = entries
	}
	entries[key] = append(json.RawMessage(nil), data...)
}

func (g *Gateway) shapeOK(family Family, data json.RawMessage) bool {
	check, ok := g.shapes[family]
	if !ok || check == nil {
		return true
	}
	return check(data)
}

func (g *Gateway) setState(action string, state CallState) {
	g.stateMu.Lock()
	g.states[action] = state
	g.stateMu.Unlock()
}

func (g *Gateway) finish(action string, state CallState, outcome string, started time.Time) {
	g.setState(action, state)
	if g.metrics != nil {
		g.metrics.ObserveGatewayCall(action, outcome, time.Since(started))
	}
}

func (g *Gateway) observeCache(family Family, hit bool) {
	if g.metrics != nil {
		g.metrics.ObserveCache(string(family), hit)
	}
}

func (g *Gateway) logf(format string, args ...any) {
	if g.logger == nil {
		return
	}
	g.logger.Printf(format, args...)
}

// expectedOutcome inspects a failure payload for the primary_conflict or
// duplicate markers.
func expectedOutcome(data json.RawMessage) (kind, message string) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", ""
	}
	message, _ = obj["message"].(string)
	for _, marker := range []string{OutcomePrimaryConflict, OutcomeDuplicate} {
		if truthy(obj[marker]) {
			return marker, message
		}
	}
	return "", ""
}

func failureMessage(data json.RawMessage) string {
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && strings.TrimSpace(obj.Message) != "" {
		return obj.Message
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil && strings.TrimSpace(text) != "" {
		return text
	}
	return "server reported failure"
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "0" && t != "false"
	case float64:
		return t != 0
	default:
		return true
	}
}
