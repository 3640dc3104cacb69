// Package schema validates Action statement arguments against per-verb
// specifications: required/optional positional and named arguments, type
// checks, and constraint checks (allowed values, pattern, range).
package schema

import (
	"regexp"

	"github.com/sag-project/sag/pkg/registry"
	"github.com/sag-project/sag/pkg/sag/model"
	"github.com/sag-project/sag/pkg/sag/sagerr"
)

// ValueType is the set of argument types a schema can require.
type ValueType string

const (
	TypeString  ValueType = "STRING"
	TypeInteger ValueType = "INTEGER"
	TypeFloat   ValueType = "FLOAT"
	TypeBoolean ValueType = "BOOLEAN"
	TypeList    ValueType = "LIST"
	TypeObject  ValueType = "OBJECT"
	TypeAny     ValueType = "ANY"
)

// ArgumentSpec describes one positional or named argument's constraints.
type ArgumentSpec struct {
	Name          string
	Type          ValueType
	Required      bool
	AllowedValues []any
	Pattern       string
	Min           *float64
	Max           *float64
}

// Arg starts a fluent ArgumentSpec builder.
func Arg(name string, t ValueType) *ArgumentSpec {
	return &ArgumentSpec{Name: name, Type: t}
}

func (a *ArgumentSpec) RequiredArg() *ArgumentSpec {
	a.Required = true
	return a
}

func (a *ArgumentSpec) WithAllowedValues(values ...any) *ArgumentSpec {
	a.AllowedValues = values
	return a
}

func (a *ArgumentSpec) WithPattern(pattern string) *ArgumentSpec {
	a.Pattern = pattern
	return a
}

func (a *ArgumentSpec) WithRange(min, max float64) *ArgumentSpec {
	a.Min, a.Max = &min, &max
	return a
}

// VerbSchema is the complete argument contract for one DO verb.
type VerbSchema struct {
	Verb           string
	Positional     []*ArgumentSpec
	Named          map[string]*ArgumentSpec
	AllowExtraArgs bool
}

// VerbSchemaBuilder assembles a VerbSchema fluently.
type VerbSchemaBuilder struct {
	schema *VerbSchema
}

func NewVerbSchema(verb string) *VerbSchemaBuilder {
	return &VerbSchemaBuilder{schema: &VerbSchema{Verb: verb, Named: map[string]*ArgumentSpec{}}}
}

func (b *VerbSchemaBuilder) Positional(spec *ArgumentSpec) *VerbSchemaBuilder {
	b.schema.Positional = append(b.schema.Positional, spec)
	return b
}

func (b *VerbSchemaBuilder) Named(spec *ArgumentSpec) *VerbSchemaBuilder {
	b.schema.Named[spec.Name] = spec
	return b
}

func (b *VerbSchemaBuilder) AllowExtraArgs() *VerbSchemaBuilder {
	b.schema.AllowExtraArgs = true
	return b
}

func (b *VerbSchemaBuilder) Build() *VerbSchema {
	return b.schema
}

// Registry holds one VerbSchema per verb name. Unknown verbs are open-world:
// validation passes them through unchecked.
type Registry struct {
	base registry.Registry[*VerbSchema]
}

func NewRegistry() *Registry {
	return &Registry{base: registry.NewBaseRegistry[*VerbSchema]()}
}

func (r *Registry) Register(schema *VerbSchema) error {
	return r.base.Register(schema.Verb, schema)
}

func (r *Registry) Get(verb string) (*VerbSchema, bool) {
	return r.base.Get(verb)
}

// Names returns every registered verb name, sorted.
func (r *Registry) Names() []string {
	return r.base.Names()
}

// Validate checks stmt's arguments against the verb's registered schema. An
// unregistered verb always produces no errors.
func Validate(stmt *model.ActionStatement, reg *Registry) []*sagerr.ValidationError {
	schema, ok := reg.Get(stmt.Verb)
	if !ok {
		return nil
	}

	var errs []*sagerr.ValidationError

	posIdx := 0
	for _, spec := range schema.Positional {
		if posIdx >= len(stmt.Args) {
			if spec.Required {
				errs = append(errs, missingArg(spec.Name))
			}
			continue
		}
		val := stmt.Args[posIdx]
		posIdx++
		if err := checkValue(spec, val); err != nil {
			errs = append(errs, err)
		}
	}
	if posIdx < len(stmt.Args) && !schema.AllowExtraArgs {
		errs = append(errs, &sagerr.ValidationError{
			Kind: sagerr.KindSchema, Code: sagerr.CodeTooManyArgs,
			Message: "too many positional arguments for " + stmt.Verb,
		})
	}

	seen := make(map[string]bool, len(stmt.NamedArgs))
	for _, m := range stmt.NamedArgs {
		spec, ok := schema.Named[m.Key]
		if !ok {
			if !schema.AllowExtraArgs {
				errs = append(errs, &sagerr.ValidationError{
					Kind: sagerr.KindSchema, Code: sagerr.CodeInvalidArgs,
					Message: "unknown named argument " + m.Key + " for " + stmt.Verb,
				})
			}
			continue
		}
		seen[m.Key] = true
		if err := checkValue(spec, m.Value); err != nil {
			errs = append(errs, err)
		}
	}
	for name, spec := range schema.Named {
		if spec.Required && !seen[name] {
			errs = append(errs, missingArg(name))
		}
	}

	return errs
}

func missingArg(name string) *sagerr.ValidationError {
	return &sagerr.ValidationError{
		Kind: sagerr.KindSchema, Code: sagerr.CodeMissingArg,
		Message: "missing required argument " + name,
	}
}

// checkValue runs, in order, type compatibility then allowedValues then
// pattern then range -- the first failing check wins.
func checkValue(spec *ArgumentSpec, val any) *sagerr.ValidationError {
	if val == nil {
		return nil
	}
	if !typeCompatible(spec.Type, val) {
		return &sagerr.ValidationError{
			Kind: sagerr.KindSchema, Code: sagerr.CodeTypeMismatch,
			Message: "argument " + spec.Name + " has the wrong type",
		}
	}
	if len(spec.AllowedValues) > 0 && !valueAllowed(spec.AllowedValues, val) {
		return &sagerr.ValidationError{
			Kind: sagerr.KindSchema, Code: sagerr.CodeValueNotAllowed,
			Message: "argument " + spec.Name + " is not one of the allowed values",
		}
	}
	if spec.Pattern != "" {
		if s, ok := val.(string); ok {
			matched, err := regexp.MatchString(spec.Pattern, s)
			if err != nil || !matched {
				return &sagerr.ValidationError{
					Kind: sagerr.KindSchema, Code: sagerr.CodePatternMismatch,
					Message: "argument " + spec.Name + " does not match the required pattern",
				}
			}
		}
	}
	if spec.Min != nil || spec.Max != nil {
		if f, ok := toFloat(val); ok {
			if spec.Min != nil && f < *spec.Min {
				return outOfRange(spec.Name)
			}
			if spec.Max != nil && f > *spec.Max {
				return outOfRange(spec.Name)
			}
		}
	}
	return nil
}

func outOfRange(name string) *sagerr.ValidationError {
	return &sagerr.ValidationError{
		Kind: sagerr.KindSchema, Code: sagerr.CodeValueOutOfRange,
		Message: "argument " + name + " is out of range",
	}
}

func typeCompatible(t ValueType, val any) bool {
	switch t {
	case TypeAny:
		return true
	case TypeString:
		_, ok := val.(string)
		return ok
	case TypeInteger:
		if _, isBool := val.(bool); isBool {
			return false
		}
		_, ok := val.(int64)
		return ok
	case TypeFloat:
		_, ok := val.(float64)
		return ok
	case TypeBoolean:
		_, ok := val.(bool)
		return ok
	case TypeList:
		_, ok := val.([]any)
		return ok
	case TypeObject:
		_, ok := val.(model.Object)
		return ok
	default:
		return true
	}
}

func valueAllowed(allowed []any, val any) bool {
	for _, a := range allowed {
		if a == val {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
