package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sag-project/sag/pkg/sag/knowledge"
	"github.com/sag-project/sag/pkg/sag/profile"
	"github.com/sag-project/sag/pkg/sag/tree"
)

func TestRender_IncludesIdentityVerbsAndFacts(t *testing.T) {
	b := tree.NewBuilder(nil)
	require := b.AddRoot("deployer", "lead")
	assert.NoError(t, require)
	tr, err := b.Build()
	assert.NoError(t, err)

	tr.Root.Knowledge.AssertFact("system.cpu", int64(50))

	reg := profile.SoftwareDev()

	out := Builder{}.Render(tr.Root, reg)
	assert.Contains(t, out, `agent "deployer"`)
	assert.Contains(t, out, `role "lead"`)
	assert.Contains(t, out, "deploy(service, [environment=STRING], version=INTEGER)")
	assert.Contains(t, out, "system.cpu = 50 (v1)")
}

func TestRender_WithPreamblePrependsText(t *testing.T) {
	b := tree.NewBuilder(nil)
	b.AddRoot("a", "")
	tr, _ := b.Build()

	out := Builder{}.WithPreamble("Stay within budget.").Render(tr.Root, nil)
	assert.Contains(t, out, "Stay within budget.")
}

func TestRenderFacts_SortsByTopic(t *testing.T) {
	facts := map[string]knowledge.Fact{
		"b.topic": {Value: 2, Version: 1},
		"a.topic": {Value: 1, Version: 1},
	}
	out := RenderFacts(facts)
	aIdx := indexOf(out, "a.topic")
	bIdx := indexOf(out, "b.topic")
	assert.Less(t, aIdx, bIdx)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
