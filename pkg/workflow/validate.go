package workflow

import (
	"errors"
	"fmt"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/nodes"
)

// Validate checks the graph shape and the configuration of every node
// reachable from the trigger. The first problem found is returned as a
// *ValidationError carrying the offending node id.
func Validate(workflow *models.Workflow) error {
	problems := ValidateAll(workflow)
	if len(problems) == 0 {
		return nil
	}

	return problems[0]
}

// ValidateAll returns every problem in graph order, for builder feedback.
func ValidateAll(workflow *models.Workflow) []*ValidationError {
	var problems []*ValidationError

	trigger := workflow.TriggerNode()
	if trigger == nil {
		return []*ValidationError{{Err: ErrNoTriggerNode}}
	}

	seen := make(map[string]bool, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		switch {
		case seen[node.ID]:
			problems = append(problems, &ValidationError{NodeID: node.ID, Err: errors.New("duplicate node id")})
		case !node.Type.Known():
			problems = append(problems, &ValidationError{NodeID: node.ID, Err: fmt.Errorf("%w: %q", nodes.ErrUnknownNodeType, node.Type)})
		case node.Type.IsTrigger() && node != trigger:
			problems = append(problems, &ValidationError{NodeID: node.ID, Err: errors.New("workflow has more than one trigger node")})
		}

		seen[node.ID] = true
	}

	for _, conn := range workflow.Connections {
		switch {
		case workflow.Node(conn.From) == nil:
			problems = append(problems, &ValidationError{NodeID: conn.From, Err: fmt.Errorf("connection source: %w", models.ErrNodeNotFound)})
		case workflow.Node(conn.To) == nil:
			problems = append(problems, &ValidationError{NodeID: conn.From, Err: fmt.Errorf("connection target %q: %w", conn.To, models.ErrNodeNotFound)})
		case conn.To == trigger.ID:
			problems = append(problems, &ValidationError{NodeID: conn.From, Err: errors.New("trigger node cannot have incoming connections")})
		}
	}

	for _, node := range Reachable(workflow) {
		if problem := validateEdges(workflow, node); problem != nil {
			problems = append(problems, problem)
		}

		if !node.Type.Known() {
			continue
		}

		if err := nodes.Validate(node); err != nil {
			problems = append(problems, &ValidationError{NodeID: node.ID, Err: err})
		}
	}

	return problems
}

func validateEdges(workflow *models.Workflow, node *models.Node) *ValidationError {
	outgoing := workflow.Outgoing(node.ID)

	if node.Type != models.NodeTypeCondition {
		if len(outgoing) > 1 {
			return &ValidationError{NodeID: node.ID, Err: errors.New("non-condition node has more than one outgoing connection")}
		}

		return nil
	}

	if len(outgoing) > 2 {
		return &ValidationError{NodeID: node.ID, Err: errors.New("condition node has more than two outgoing connections")}
	}

	if len(outgoing) == 2 && outgoing[0].Branch != "" && outgoing[0].Branch == outgoing[1].Branch {
		return &ValidationError{NodeID: node.ID, Err: fmt.Errorf("condition node has two %q branches", outgoing[0].Branch)}
	}

	return nil
}

// Reachable lists the nodes reachable from the trigger in breadth-first
// order, following every outgoing edge. Unconnected nodes are drafts and are
// not validated.
func Reachable(workflow *models.Workflow) []*models.Node {
	trigger := workflow.TriggerNode()
	if trigger == nil {
		return nil
	}

	visited := map[string]bool{trigger.ID: true}
	queue := []*models.Node{trigger}

	var reachable []*models.Node

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		reachable = append(reachable, node)

		for _, conn := range workflow.Outgoing(node.ID) {
			if visited[conn.To] {
				continue
			}

			next := workflow.Node(conn.To)
			if next == nil {
				continue
			}

			visited[conn.To] = true
			queue = append(queue, next)
		}
	}

	return reachable
}
