// Package prompt renders deterministic textual descriptions of the grammar,
// a node's available verbs, and its current facts, suitable for splicing
// into an external LLM's system prompt. It never makes an HTTP call itself;
// connecting an LLM client is an external-collaborator concern.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sag-project/sag/pkg/sag/knowledge"
	"github.com/sag-project/sag/pkg/sag/schema"
	"github.com/sag-project/sag/pkg/sag/tree"
)

const grammarSummary = `You communicate using the Semantic Action Grammar (SAG).
Each message is a header line followed by a newline and one or more
semicolon-separated statements:

  DO verb(args) [P:policy[:expr]] [PRIO=level] [BECAUSE reason]
  Q expression [WHERE constraint]
  A path.to.value = value
  IF condition THEN statement [ELSE statement]
  EVT name(args)
  ERR code ["message"]
  FOLD foldId "summary" [STATE {...}]
  RECALL foldId
  SUB topic [WHERE filter]
  UNSUB topic
  KNOW topic value v version

Respond with DO statements to take action, A statements to record facts,
and KNOW statements to publish versioned knowledge other agents subscribe
to.`

// Builder renders prompt text for one node. The zero value is ready to use.
type Builder struct {
	preamble string
}

// WithPreamble returns a copy of b that prepends extra, deployment-specific
// instructions ahead of the grammar summary.
func (b Builder) WithPreamble(extra string) Builder {
	b.preamble = extra
	return b
}

// Render describes node's role, its available verbs from reg (nil means no
// schema constraints are known), and its current facts.
func (b Builder) Render(node *tree.AgentNode, reg *schema.Registry) string {
	var out strings.Builder

	if b.preamble != "" {
		out.WriteString(b.preamble)
		out.WriteString("\n\n")
	}
	out.WriteString(grammarSummary)
	out.WriteString("\n\n")

	fmt.Fprintf(&out, "You are agent %q", node.ID)
	if node.Role != "" {
		fmt.Fprintf(&out, " with role %q", node.Role)
	}
	out.WriteString(".\n")

	if reg != nil {
		verbs := reg.Names()
		if len(verbs) > 0 {
			out.WriteString("\nAvailable verbs:\n")
			for _, v := range verbs {
				s, _ := reg.Get(v)
				out.WriteString("  " + describeVerb(s) + "\n")
			}
		}
	}

	facts := node.Knowledge.Facts()
	if len(facts) > 0 {
		out.WriteString("\nCurrent facts:\n")
		topics := make([]string, 0, len(facts))
		for t := range facts {
			topics = append(topics, t)
		}
		sort.Strings(topics)
		for _, t := range topics {
			f := facts[t]
			fmt.Fprintf(&out, "  %s = %v (v%d)\n", t, f.Value, f.Version)
		}
	}

	return out.String()
}

func describeVerb(s *schema.VerbSchema) string {
	var parts []string
	for _, p := range s.Positional {
		name := p.Name
		if !p.Required {
			name = "[" + name + "]"
		}
		parts = append(parts, name)
	}
	names := make([]string, 0, len(s.Named))
	for name := range s.Named {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		spec := s.Named[name]
		arg := name + "=" + string(spec.Type)
		if !spec.Required {
			arg = "[" + arg + "]"
		}
		parts = append(parts, arg)
	}
	return s.Verb + "(" + strings.Join(parts, ", ") + ")"
}

// RenderFacts renders just a fact map, useful for chat-style follow-ups
// where the full grammar summary is unnecessary.
func RenderFacts(facts map[string]knowledge.Fact) string {
	topics := make([]string, 0, len(facts))
	for t := range facts {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	var out strings.Builder
	for _, t := range topics {
		f := facts[t]
		fmt.Fprintf(&out, "%s = %v (v%d)\n", t, f.Value, f.Version)
	}
	return out.String()
}
