// Package models defines the core domain models for CRM workflow automation.
package models

import (
	"errors"
	"fmt"
	"time"
)

// FailurePolicy controls how non-2xx outbound HTTP responses affect an execution.
type FailurePolicy string

const (
	FailurePolicyHalt     FailurePolicy = "halt"     // Non-2xx fails the execution
	FailurePolicyContinue FailurePolicy = "continue" // Non-2xx is recorded and the path continues
)

// DefaultTriggerNodeID names the trigger node synthesized by Normalize.
const DefaultTriggerNodeID = "trigger"

var (
	ErrNodeNotFound      = errors.New("node not found")
	ErrSelfConnection    = errors.New("node cannot connect to itself")
	ErrInvalidBranch     = errors.New("branch must be \"true\" or \"false\"")
	ErrBranchOnNonBranch = errors.New("branch is only allowed on condition nodes")
)

// Trigger describes how a workflow is started.
type Trigger struct {
	Type   NodeType       `json:"type"   yaml:"type"   validate:"required"`
	Config map[string]any `json:"config" yaml:"config"`
}

// Workflow is a tenant-owned directed graph of nodes.
type Workflow struct {
	ID            string        `json:"id"                       yaml:"id"`
	TenantID      string        `json:"tenant_id"                yaml:"tenant_id"      validate:"required"`
	Name          string        `json:"name"                     yaml:"name"           validate:"required,min=3"`
	Description   string        `json:"description"              yaml:"description"`
	IsActive      bool          `json:"is_active"                yaml:"is_active"`
	Trigger       Trigger       `json:"trigger"                  yaml:"trigger"`
	Nodes         []*Node       `json:"nodes"                    yaml:"nodes"          validate:"dive"`
	Connections   []*Connection `json:"connections"              yaml:"connections"    validate:"dive"`
	WebhookURL    string        `json:"webhook_url,omitempty"    yaml:"webhook_url"`
	FailurePolicy FailurePolicy `json:"failure_policy,omitempty" yaml:"failure_policy" validate:"omitempty,oneof=halt continue"`
	CreatedAt     time.Time     `json:"created_at"               yaml:"-"`
	UpdatedAt     time.Time     `json:"updated_at"               yaml:"-"`
}

// WebhookPath returns the ingestion path for webhook-triggered workflows.
func WebhookPath(workflowID string) string {
	return fmt.Sprintf("/api/workflows/%s/webhook", workflowID)
}

// Node returns the node with the given id, or nil.
func (w *Workflow) Node(id string) *Node {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// TriggerNode returns the first node whose type is a trigger type.
func (w *Workflow) TriggerNode() *Node {
	for _, node := range w.Nodes {
		if node.Type.IsTrigger() {
			return node
		}
	}

	return nil
}

// ContinueOnHTTPError reports whether non-2xx HTTP responses should not halt the path.
func (w *Workflow) ContinueOnHTTPError() bool {
	return w.FailurePolicy == FailurePolicyContinue
}

// Outgoing returns the connections leaving nodeID in insertion order.
func (w *Workflow) Outgoing(nodeID string) []*Connection {
	var out []*Connection

	for _, conn := range w.Connections {
		if conn.From == nodeID {
			out = append(out, conn)
		}
	}

	return out
}

// Connect adds an edge from -> to honoring the builder rules: a non-condition
// node keeps a single outgoing edge, a condition node keeps at most one edge
// per branch and at most two edges overall.
func (w *Workflow) Connect(from, to string, branch Branch) error {
	if from == to {
		return ErrSelfConnection
	}

	source := w.Node(from)
	if source == nil {
		return fmt.Errorf("source %q: %w", from, ErrNodeNotFound)
	}

	if w.Node(to) == nil {
		return fmt.Errorf("target %q: %w", to, ErrNodeNotFound)
	}

	if branch != "" && !branch.Valid() {
		return ErrInvalidBranch
	}

	if source.Type != NodeTypeCondition {
		if branch != "" {
			return ErrBranchOnNonBranch
		}

		w.removeOutgoing(from, func(*Connection) bool { return true })
		w.Connections = append(w.Connections, &Connection{From: from, To: to})

		return nil
	}

	if branch != "" {
		w.removeOutgoing(from, func(c *Connection) bool { return c.Branch == branch })
		w.Connections = append(w.Connections, &Connection{From: from, To: to, Branch: branch})

		return nil
	}

	existing := w.Outgoing(from)
	if len(existing) >= 2 {
		oldest := existing[0]
		w.removeOutgoing(from, func(c *Connection) bool { return c == oldest })
		w.Connections = append(w.Connections, &Connection{From: from, To: to})
		w.retagPositional(from)

		return nil
	}

	free := BranchTrue
	if len(existing) == 1 && existing[0].Branch != BranchFalse {
		free = BranchFalse
	}

	w.Connections = append(w.Connections, &Connection{From: from, To: to, Branch: free})

	return nil
}

// Disconnect removes every edge from -> to.
func (w *Workflow) Disconnect(from, to string) {
	w.removeOutgoing(from, func(c *Connection) bool { return c.To == to })
}

// Normalize tags legacy condition edges that carry no branch by insertion
// order and keeps Trigger in sync with the trigger node of the graph. A
// workflow posted with only Trigger gets a trigger node with id "trigger".
func (w *Workflow) Normalize() {
	if node := w.TriggerNode(); node != nil {
		w.Trigger = Trigger{Type: node.Type, Config: node.Config}
	} else if w.Trigger.Type.IsTrigger() && w.Node(DefaultTriggerNodeID) == nil {
		w.Nodes = append([]*Node{{ID: DefaultTriggerNodeID, Type: w.Trigger.Type, Config: w.Trigger.Config}}, w.Nodes...)
	}

	if w.ID != "" && w.Trigger.Type == NodeTypeWebhookTrigger {
		w.WebhookURL = WebhookPath(w.ID)
	}

	for _, node := range w.Nodes {
		if node.Type != NodeTypeCondition {
			continue
		}

		untagged := false

		for _, conn := range w.Outgoing(node.ID) {
			if conn.Branch == "" {
				untagged = true

				break
			}
		}

		if untagged {
			w.retagPositional(node.ID)
		}
	}

	if w.FailurePolicy == "" {
		w.FailurePolicy = FailurePolicyHalt
	}
}

func (w *Workflow) retagPositional(from string) {
	for i, conn := range w.Outgoing(from) {
		switch i {
		case 0:
			conn.Branch = BranchTrue
		case 1:
			conn.Branch = BranchFalse
		}
	}
}

func (w *Workflow) removeOutgoing(from string, match func(*Connection) bool) {
	kept := w.Connections[:0]

	for _, conn := range w.Connections {
		if conn.From == from && match(conn) {
			continue
		}

		kept = append(kept, conn)
	}

	w.Connections = kept
}
