package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func workflowFixture() *Workflow {
	w, msg := buildWorkflow(map[string]any{
		"name": "Order Sync",
		"nodes": []any{
			map[string]any{
				"id": "1", "name": "Trigger", "type": "webhook",
				"typeVersion": float64(1), "position": []any{float64(0), float64(0)},
			},
			map[string]any{
				"id": "2", "name": "Upsert", "type": "httpRequest",
				"typeVersion": float64(2), "position": []any{float64(200), float64(0)},
			},
		},
		"connections": map[string]any{
			"Trigger": map[string]any{
				"main": []any{[]any{map[string]any{"node": "Upsert"}}},
			},
		},
	})
	if msg != "" {
		panic(msg)
	}
	return w
}

func ruleByID(t *testing.T, kb *KnowledgeBase, id RuleID) Rule {
	t.Helper()
	for _, r := range kb.Rules {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("rule %s not found", id)
	return Rule{}
}

func TestLoadKnowledgeBase_Static(t *testing.T) {
	kb := LoadKnowledgeBase()

	require.Len(t, kb.Rules, 5)
	assert.NotEmpty(t, kb.Version)
	assert.NotEmpty(t, kb.BestPractices)
	assert.NotEmpty(t, kb.Patterns)
	for _, r := range kb.Rules {
		assert.NotNil(t, r.Check, "rule %s has no check", r.ID)
		assert.NotEmpty(t, r.Description)
	}
}

func TestRule_UniqueNodeIDs(t *testing.T) {
	kb := LoadKnowledgeBase()
	rule := ruleByID(t, kb, RuleUniqueNodeIDs)

	assert.True(t, rule.Check(workflowFixture()))

	dup := workflowFixture()
	dup.Nodes[1]["id"] = "1"
	assert.False(t, rule.Check(dup))
}

func TestRule_NodePositions(t *testing.T) {
	kb := LoadKnowledgeBase()
	rule := ruleByID(t, kb, RuleNodePositions)

	assert.True(t, rule.Check(workflowFixture()))

	missing := workflowFixture()
	delete(missing.Nodes[0], "position")
	assert.False(t, rule.Check(missing))

	wrongArity := workflowFixture()
	wrongArity.Nodes[0]["position"] = []any{float64(1)}
	assert.False(t, rule.Check(wrongArity))
}

func TestRule_ValidConnections(t *testing.T) {
	kb := LoadKnowledgeBase()
	rule := ruleByID(t, kb, RuleValidConnections)

	assert.True(t, rule.Check(workflowFixture()))

	// Zero connections is valid.
	empty := workflowFixture()
	empty.Connections = map[string]any{}
	assert.True(t, rule.Check(empty))

	// Target referencing an absent node is not.
	badTarget := workflowFixture()
	badTarget.Connections = map[string]any{
		"Trigger": map[string]any{
			"main": []any{[]any{map[string]any{"node": "Ghost"}}},
		},
	}
	assert.False(t, rule.Check(badTarget))

	// Unknown source key is not.
	badSource := workflowFixture()
	badSource.Connections = map[string]any{
		"Ghost": map[string]any{"main": []any{}},
	}
	assert.False(t, rule.Check(badSource))
}

func TestRule_NoHardcodedCredentials(t *testing.T) {
	kb := LoadKnowledgeBase()
	rule := ruleByID(t, kb, RuleNoHardcodedCredentials)

	assert.True(t, rule.Check(workflowFixture()))

	leaky := workflowFixture()
	leaky.Nodes[1]["parameters"] = map[string]any{
		"headers": "Authorization: api_key: sk-live-123",
	}
	assert.False(t, rule.Check(leaky))

	upper := workflowFixture()
	upper.Nodes[1]["parameters"] = map[string]any{"note": "PASSWORD: hunter2"}
	assert.False(t, rule.Check(upper))
}

func TestRule_RequiredNodeFields(t *testing.T) {
	kb := LoadKnowledgeBase()
	rule := ruleByID(t, kb, RuleRequiredNodeFields)

	assert.True(t, rule.Check(workflowFixture()))

	noName := workflowFixture()
	noName.Nodes[0]["name"] = "  "
	assert.False(t, rule.Check(noName))

	noType := workflowFixture()
	delete(noType.Nodes[0], "type")
	assert.False(t, rule.Check(noType))

	zeroVersion := workflowFixture()
	zeroVersion.Nodes[0]["typeVersion"] = float64(0)
	assert.False(t, rule.Check(zeroVersion))
}

func TestAttachKnowledge(t *testing.T) {
	kb := LoadKnowledgeBase()
	ar := &ArtifactResult{
		Success:     true,
		ClientEmail: "client@example.com",
		Workflow:    workflowFixture(),
	}

	in := AttachKnowledge(ar, kb)
	assert.True(t, in.KnowledgeBaseReady)
	assert.Equal(t, kb, in.KB)
	assert.True(t, in.Success)
	assert.Equal(t, "client@example.com", in.ClientEmail)

	// The original payload is copied, not aliased.
	in.ClientEmail = "other@example.com"
	assert.Equal(t, "client@example.com", ar.ClientEmail)
}

func TestAttachKnowledge_NilKB(t *testing.T) {
	in := AttachKnowledge(&ArtifactResult{}, nil)
	assert.False(t, in.KnowledgeBaseReady)
}

func TestKnowledgeBase_PromptHelpers(t *testing.T) {
	kb := LoadKnowledgeBase()
	assert.Len(t, kb.RuleSummaries(), 5)
	assert.NotEmpty(t, kb.PracticeLines())
}
