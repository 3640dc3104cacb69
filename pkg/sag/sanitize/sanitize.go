// Package sanitize runs the four-layer acceptance pipeline every inbound
// and outbound message passes through: parse, routing, schema, guardrail.
package sanitize

import (
	"github.com/sag-project/sag/pkg/sag/expr"
	"github.com/sag-project/sag/pkg/sag/guardrail"
	"github.com/sag-project/sag/pkg/sag/model"
	"github.com/sag-project/sag/pkg/sag/parse"
	"github.com/sag-project/sag/pkg/sag/sagerr"
	"github.com/sag-project/sag/pkg/sag/schema"
)

// AgentRegistry is the set of known agent ids a message's source and
// destination are checked against. It is read-mostly; callers are
// responsible for not mutating it concurrently with a Sanitize call.
type AgentRegistry struct {
	known map[string]struct{}
}

func NewAgentRegistry(ids ...string) *AgentRegistry {
	r := &AgentRegistry{known: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		r.known[id] = struct{}{}
	}
	return r
}

func (r *AgentRegistry) Add(id string) {
	r.known[id] = struct{}{}
}

func (r *AgentRegistry) Has(id string) bool {
	_, ok := r.known[id]
	return ok
}

// Result is the outcome of running a message through the pipeline. Parse
// failures and validation failures are both returned here rather than as
// control-flow errors.
type Result struct {
	Message  *model.Message
	ParseErr error
	Errors   []*sagerr.ValidationError
	Strict   bool
}

// Valid reports whether the message cleared every layer that ran. A parse
// failure always invalidates the message regardless of mode. In permissive
// mode (Strict false), routing/schema/guardrail findings never invalidate
// the message on their own -- they are reported as warnings via Warnings
// so a caller can log or surface them without the message being rejected.
func (r *Result) Valid() bool {
	if r.ParseErr != nil {
		return false
	}
	if !r.Strict {
		return true
	}
	return len(r.Errors) == 0
}

// Warnings returns the findings that did not invalidate the message: every
// finding when running in permissive mode, none when running in strict
// mode (where the same findings are fatal and surfaced via Errors/Valid
// instead).
func (r *Result) Warnings() []*sagerr.ValidationError {
	if r.Strict {
		return nil
	}
	return r.Errors
}

// Sanitizer bundles the registries and default evaluation context each
// layer needs.
type Sanitizer struct {
	schemas        *schema.Registry
	agents         *AgentRegistry
	defaultContext expr.Context
	strict         bool
}

// NewSanitizer builds a Sanitizer. defaultContext may be nil, in which case
// an empty context is used for guardrail evaluation. When strict is true,
// Sanitize short-circuits as soon as a layer (other than parsing, which
// always short-circuits) produces an error; SanitizeOutput never
// short-circuits mid-pipeline regardless of strict, only at the end.
func NewSanitizer(schemas *schema.Registry, agents *AgentRegistry, defaultContext expr.Context, strict bool) *Sanitizer {
	return &Sanitizer{schemas: schemas, agents: agents, defaultContext: defaultContext, strict: strict}
}

// Sanitize runs all four layers over raw wire text.
func (s *Sanitizer) Sanitize(raw string) *Result {
	msg, err := parse.Parse(raw)
	if err != nil {
		return &Result{ParseErr: err, Strict: s.strict}
	}

	var errs []*sagerr.ValidationError

	routingErrs := s.checkRouting(msg.Header)
	errs = append(errs, routingErrs...)
	if s.strict && len(routingErrs) > 0 {
		return &Result{Message: msg, Errors: errs, Strict: s.strict}
	}

	schemaErrs := s.checkSchema(msg.Statements)
	errs = append(errs, schemaErrs...)
	if s.strict && len(schemaErrs) > 0 {
		return &Result{Message: msg, Errors: errs, Strict: s.strict}
	}

	guardErrs := s.checkGuardrail(msg.Statements)
	errs = append(errs, guardErrs...)
	if s.strict && len(guardErrs) > 0 {
		return &Result{Message: msg, Errors: errs, Strict: s.strict}
	}

	return &Result{Message: msg, Errors: errs, Strict: s.strict}
}

// SanitizeOutput validates a message that is already parsed (for example
// one this engine is about to send) through layers 2-4, without the
// per-layer short-circuit Sanitize applies, so a caller always sees the
// complete set of findings for its own traffic.
func (s *Sanitizer) SanitizeOutput(msg *model.Message) *Result {
	var errs []*sagerr.ValidationError
	errs = append(errs, s.checkRouting(msg.Header)...)
	errs = append(errs, s.checkSchema(msg.Statements)...)
	errs = append(errs, s.checkGuardrail(msg.Statements)...)
	return &Result{Message: msg, Errors: errs, Strict: s.strict}
}

func (s *Sanitizer) checkRouting(h model.Header) []*sagerr.ValidationError {
	var errs []*sagerr.ValidationError
	if !s.agents.Has(h.Source) {
		errs = append(errs, &sagerr.ValidationError{
			Kind: sagerr.KindRouting, Code: sagerr.CodeUnknownSource,
			Message: "unknown source agent " + h.Source,
		})
	}
	if !s.agents.Has(h.Destination) {
		errs = append(errs, &sagerr.ValidationError{
			Kind: sagerr.KindRouting, Code: sagerr.CodeUnknownDestination,
			Message: "unknown destination agent " + h.Destination,
		})
	}
	return errs
}

func (s *Sanitizer) checkSchema(stmts []model.Statement) []*sagerr.ValidationError {
	var errs []*sagerr.ValidationError
	for _, st := range stmts {
		if action, ok := st.(*model.ActionStatement); ok {
			errs = append(errs, schema.Validate(action, s.schemas)...)
		}
	}
	return errs
}

func (s *Sanitizer) checkGuardrail(stmts []model.Statement) []*sagerr.ValidationError {
	var errs []*sagerr.ValidationError
	ctx := s.defaultContext
	if ctx == nil {
		ctx = expr.NewMapContext(nil)
	}
	for _, st := range stmts {
		if action, ok := st.(*model.ActionStatement); ok {
			if verr := guardrail.Validate(action.Reason, ctx); verr != nil {
				errs = append(errs, verr)
			}
		}
	}
	return errs
}
