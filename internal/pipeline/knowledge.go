package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RuleID identifies a structural validation rule.
type RuleID string

// Structural rule identifiers.
const (
	RuleUniqueNodeIDs          RuleID = "unique-node-ids"
	RuleNodePositions          RuleID = "node-positions"
	RuleValidConnections       RuleID = "valid-connections"
	RuleNoHardcodedCredentials RuleID = "no-hardcoded-credentials"
	RuleRequiredNodeFields     RuleID = "required-node-fields"
)

// Rule is a pure, side-effect-free structural check over a workflow.
type Rule struct {
	ID          RuleID
	Description string
	Severity    Severity
	Check       func(w *Workflow) bool
}

// Pattern is a named structural pattern clients commonly ask for.
type Pattern struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	NodeTypes   []string `json:"node_types"`
}

// KnowledgeBase is the static set of validation rules and best-practice
// metadata. It is loaded once per pipeline run and never mutated.
type KnowledgeBase struct {
	Version       string
	Rules         []Rule
	BestPractices map[string][]string
	Patterns      []Pattern
}

// QAInput is the Validation Reporter's input: the formatted artifact merged
// with the knowledge base.
type QAInput struct {
	ArtifactResult
	KB                 *KnowledgeBase
	KnowledgeBaseReady bool
}

// AttachKnowledge merges the knowledge base into the formatter's payload
// without overwriting any previously set field.
func AttachKnowledge(ar *ArtifactResult, kb *KnowledgeBase) *QAInput {
	in := &QAInput{KB: kb, KnowledgeBaseReady: kb != nil}
	if ar != nil {
		in.ArtifactResult = *ar
	}
	return in
}

// credentialMarkers are substrings that must never appear in a serialized
// workflow, case-folded.
var credentialMarkers = []string{"api_key:", "password:", "secret:"}

// LoadKnowledgeBase returns the static knowledge base. Pure: no network or
// file I/O.
func LoadKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		Version: "1.4",
		Rules: []Rule{
			{
				ID:          RuleUniqueNodeIDs,
				Description: "All node identifiers must be distinct",
				Severity:    SeverityCritical,
				Check:       checkUniqueNodeIDs,
			},
			{
				ID:          RuleNodePositions,
				Description: "Every node must carry a two-element position",
				Severity:    SeverityHigh,
				Check:       checkNodePositions,
			},
			{
				ID:          RuleValidConnections,
				Description: "Every connection source and target must reference an existing node",
				Severity:    SeverityCritical,
				Check:       checkValidConnections,
			},
			{
				ID:          RuleNoHardcodedCredentials,
				Description: "The workflow must not embed credentials",
				Severity:    SeverityCritical,
				Check:       checkNoHardcodedCredentials,
			},
			{
				ID:          RuleRequiredNodeFields,
				Description: "Every node must have a name, a type and a version",
				Severity:    SeverityHigh,
				Check:       checkRequiredNodeFields,
			},
		},
		BestPractices: map[string][]string{
			"error-handling": {
				"Add an error branch for any node that calls an external service.",
				"Surface failures to the client instead of silently dropping items.",
			},
			"naming": {
				"Name nodes after the business action they perform.",
				"Keep workflow names short enough to read in a notification subject.",
			},
			"security": {
				"Reference credentials by credential name only.",
				"Never log full payloads that may contain personal data.",
			},
			"structure": {
				"One trigger per workflow; fan out after it.",
				"Avoid cycles unless the workflow explicitly batches.",
			},
		},
		Patterns: []Pattern{
			{
				Name:        "webhook-to-action",
				Description: "An HTTP trigger feeding a single downstream action",
				NodeTypes:   []string{"webhook", "httpRequest"},
			},
			{
				Name:        "scheduled-sync",
				Description: "A cron trigger that reads from one system and upserts into another",
				NodeTypes:   []string{"scheduleTrigger", "httpRequest", "set"},
			},
			{
				Name:        "inbox-router",
				Description: "A mailbox trigger that classifies messages and fans out per label",
				NodeTypes:   []string{"emailReadImap", "switch"},
			},
		},
	}
}

// RuleSummaries renders one line per rule for prompt embedding.
func (kb *KnowledgeBase) RuleSummaries() []string {
	out := make([]string, 0, len(kb.Rules))
	for _, r := range kb.Rules {
		out = append(out, fmt.Sprintf("%s (%s): %s", r.ID, r.Severity, r.Description))
	}
	return out
}

// PracticeLines flattens best practices for prompt embedding.
func (kb *KnowledgeBase) PracticeLines() []string {
	var out []string
	for _, category := range []string{"error-handling", "naming", "security", "structure"} {
		out = append(out, kb.BestPractices[category]...)
	}
	return out
}

func checkUniqueNodeIDs(w *Workflow) bool {
	seen := make(map[string]bool, len(w.Nodes))
	for _, node := range w.Nodes {
		id := nodeIdentifier(node)
		if seen[id] {
			return false
		}
		seen[id] = true
	}
	return true
}

func checkNodePositions(w *Workflow) bool {
	for _, node := range w.Nodes {
		pos, ok := node["position"].([]any)
		if !ok || len(pos) != 2 {
			return false
		}
	}
	return true
}

// checkValidConnections builds the set of known node identifiers and names
// first, then rejects any connection key or nested "node" reference outside
// that set. A workflow with zero connections passes.
func checkValidConnections(w *Workflow) bool {
	known := make(map[string]bool, len(w.Nodes)*2)
	for _, node := range w.Nodes {
		if id := nodeIdentifier(node); id != "" {
			known[id] = true
		}
		if name, ok := node["name"].(string); ok && name != "" {
			known[name] = true
		}
	}

	for source, targets := range w.Connections {
		if !known[source] {
			return false
		}
		if !referencedNodesExist(targets, known) {
			return false
		}
	}
	return true
}

// referencedNodesExist walks an arbitrarily nested connection value and
// checks every "node" reference against the known set.
func referencedNodesExist(value any, known map[string]bool) bool {
	switch v := value.(type) {
	case map[string]any:
		if target, ok := v["node"].(string); ok && !known[target] {
			return false
		}
		for _, nested := range v {
			if !referencedNodesExist(nested, known) {
				return false
			}
		}
	case []any:
		for _, nested := range v {
			if !referencedNodesExist(nested, known) {
				return false
			}
		}
	}
	return true
}

func checkNoHardcodedCredentials(w *Workflow) bool {
	serialized, err := json.Marshal(w)
	if err != nil {
		return false
	}
	folded := strings.ToLower(string(serialized))
	for _, marker := range credentialMarkers {
		if strings.Contains(folded, marker) {
			return false
		}
	}
	return true
}

func checkRequiredNodeFields(w *Workflow) bool {
	for _, node := range w.Nodes {
		if stringValue(node["name"]) == "" || stringValue(node["type"]) == "" {
			return false
		}
		if !versionSet(node["typeVersion"]) {
			return false
		}
	}
	return true
}

// nodeIdentifier stringifies a node's id field; numbers are accepted
// because LLM output is not strict about id types.
func nodeIdentifier(node map[string]any) string {
	switch id := node["id"].(type) {
	case string:
		return id
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%v", id), ".0")
	default:
		return ""
	}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func versionSet(v any) bool {
	switch version := v.(type) {
	case string:
		return strings.TrimSpace(version) != ""
	case float64:
		return version != 0
	default:
		return false
	}
}
