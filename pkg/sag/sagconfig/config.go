// Package sagconfig loads a grove's static shape -- tree topology, per-verb
// schemas, and the set of known agent ids -- from a single YAML document,
// the way a deployment's topology should live in one reviewable file
// instead of Go code. This is an ambient concern: it has nothing to do with
// the wire protocol or the orchestration algorithm, and the core packages
// never import it.
package sagconfig

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/sag-project/sag/pkg/sag/profile"
	"github.com/sag-project/sag/pkg/sag/schema"
	"github.com/sag-project/sag/pkg/sag/tree"
)

// NodeDecl is one declared agent: its id, role, and nested children.
type NodeDecl struct {
	ID       string     `yaml:"id" mapstructure:"id"`
	Role     string     `yaml:"role" mapstructure:"role"`
	Children []NodeDecl `yaml:"children" mapstructure:"children"`
}

// ArgumentDecl is the YAML form of schema.ArgumentSpec.
type ArgumentDecl struct {
	Name          string   `yaml:"name" mapstructure:"name"`
	Type          string   `yaml:"type" mapstructure:"type"`
	Required      bool     `yaml:"required" mapstructure:"required"`
	AllowedValues []any    `yaml:"allowed_values" mapstructure:"allowed_values"`
	Pattern       string   `yaml:"pattern" mapstructure:"pattern"`
	Min           *float64 `yaml:"min" mapstructure:"min"`
	Max           *float64 `yaml:"max" mapstructure:"max"`
}

// VerbDecl is the YAML form of a schema.VerbSchema.
type VerbDecl struct {
	Verb           string         `yaml:"verb" mapstructure:"verb"`
	Positional     []ArgumentDecl `yaml:"positional" mapstructure:"positional"`
	Named          []ArgumentDecl `yaml:"named" mapstructure:"named"`
	AllowExtraArgs bool           `yaml:"allow_extra_args" mapstructure:"allow_extra_args"`
}

// Config is the decoded shape of a grove deployment document.
type Config struct {
	Tree           NodeDecl   `yaml:"tree" mapstructure:"tree"`
	Schemas        []VerbDecl `yaml:"schemas" mapstructure:"schemas"`
	SchemasProfile string     `yaml:"schemas_profile" mapstructure:"schemas_profile"`
	Registry       []string   `yaml:"registry" mapstructure:"registry"`
	CheckpointDir  string     `yaml:"checkpoint_dir" mapstructure:"checkpoint_dir"`
}

// SetDefaults fills in values a caller left unset.
func (c *Config) SetDefaults() {
	if c.CheckpointDir == "" {
		c.CheckpointDir = "./checkpoints"
	}
}

// Validate reports whether the decoded document is structurally usable
// (a root id is present). Topology and schema errors are reported when
// BuildTree / BuildSchemaRegistry are actually called.
func (c *Config) Validate() error {
	if c.Tree.ID == "" {
		return fmt.Errorf("sagconfig: tree.id is required")
	}
	if c.SchemasProfile != "" {
		if _, ok := profile.Named(c.SchemasProfile); !ok {
			return fmt.Errorf("sagconfig: unknown schemas_profile %q", c.SchemasProfile)
		}
	}
	return nil
}

// Load reads path, expands ${VAR}/${VAR:-default} environment references,
// decodes into a Config, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sagconfig: read %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("sagconfig: parse yaml: %w", err)
	}
	raw = expandEnvVars(raw)

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("sagconfig: build decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("sagconfig: decode: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandEnvVars(input map[string]any) map[string]any {
	result := make(map[string]any, len(input))
	for k, v := range input {
		result[k] = expandValue(v)
	}
	return result
}

func expandValue(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnvString(val)
	case map[string]any:
		return expandEnvVars(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandValue(item)
		}
		return out
	default:
		return v
	}
}

func expandEnvString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if strings.HasPrefix(match, "${") {
			inner := match[2 : len(match)-1]
			if idx := strings.Index(inner, ":-"); idx != -1 {
				name, def := inner[:idx], inner[idx+2:]
				if val := os.Getenv(name); val != "" {
					return val
				}
				return def
			}
			return os.Getenv(inner)
		}
		return os.Getenv(match[1:])
	})
}

// BuildTree turns the declared node tree into a live, validated tree.Tree.
// Every node's knowledge engine is created without a fold store; attach one
// per node afterwards if auto-folding is needed.
func (c *Config) BuildTree() (*tree.Tree, error) {
	b := tree.NewBuilder(nil)
	if err := b.AddRoot(c.Tree.ID, c.Tree.Role); err != nil {
		return nil, err
	}
	var addChildren func(parentID string, children []NodeDecl) error
	addChildren = func(parentID string, children []NodeDecl) error {
		for _, child := range children {
			if err := b.AddChild(child.ID, child.Role, parentID); err != nil {
				return err
			}
			if err := addChildren(child.ID, child.Children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := addChildren(c.Tree.ID, c.Tree.Children); err != nil {
		return nil, err
	}
	return b.Build()
}

// BuildSchemaRegistry turns the declared verb schemas (and/or a named
// profile) into a live schema.Registry. Inline declarations are registered
// after the profile's, so a deployment can start from a named profile and
// layer extra verbs on top.
func (c *Config) BuildSchemaRegistry() (*schema.Registry, error) {
	var reg *schema.Registry
	if c.SchemasProfile != "" {
		p, ok := profile.Named(c.SchemasProfile)
		if !ok {
			return nil, fmt.Errorf("sagconfig: unknown schemas_profile %q", c.SchemasProfile)
		}
		reg = p
	} else {
		reg = schema.NewRegistry()
	}

	for _, vd := range c.Schemas {
		builder := schema.NewVerbSchema(vd.Verb)
		for _, a := range vd.Positional {
			builder = builder.Positional(buildArgSpec(a))
		}
		for _, a := range vd.Named {
			builder = builder.Named(buildArgSpec(a))
		}
		if vd.AllowExtraArgs {
			builder = builder.AllowExtraArgs()
		}
		if err := reg.Register(builder.Build()); err != nil {
			return nil, fmt.Errorf("sagconfig: register verb %s: %w", vd.Verb, err)
		}
	}
	return reg, nil
}

func buildArgSpec(a ArgumentDecl) *schema.ArgumentSpec {
	spec := schema.Arg(a.Name, schema.ValueType(strings.ToUpper(a.Type)))
	if a.Required {
		spec = spec.RequiredArg()
	}
	if len(a.AllowedValues) > 0 {
		spec = spec.WithAllowedValues(a.AllowedValues...)
	}
	if a.Pattern != "" {
		spec = spec.WithPattern(a.Pattern)
	}
	if a.Min != nil && a.Max != nil {
		spec = spec.WithRange(*a.Min, *a.Max)
	}
	return spec
}

// AgentIDs returns the registry's explicit id list, or every id mentioned
// in Tree if Registry was left empty.
func (c *Config) AgentIDs() []string {
	if len(c.Registry) > 0 {
		return c.Registry
	}
	var ids []string
	var walk func(n NodeDecl)
	walk = func(n NodeDecl) {
		ids = append(ids, n.ID)
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(c.Tree)
	return ids
}
