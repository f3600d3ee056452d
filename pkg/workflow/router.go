package workflow

import "github.com/andreibyf/aishacrm-2-sub004/pkg/models"

// Next returns the destinations to follow after node. For a condition node
// branch selects the edge tagged with the evaluated result; an absent edge
// ends the path. Untagged condition edges fall back to insertion order.
// Destinations are only ever taken from connections.
func Next(node *models.Node, connections []*models.Connection, branch *bool) []string {
	var outgoing []*models.Connection

	for _, conn := range connections {
		if conn.From == node.ID {
			outgoing = append(outgoing, conn)
		}
	}

	if len(outgoing) == 0 {
		return nil
	}

	if node.Type != models.NodeTypeCondition {
		return []string{outgoing[0].To}
	}

	if branch == nil {
		return nil
	}

	want := models.BranchOf(*branch)

	for _, conn := range outgoing {
		if conn.Branch == want {
			return []string{conn.To}
		}
	}

	for i, conn := range outgoing {
		if conn.Branch != "" {
			continue
		}

		if (i == 0 && want == models.BranchTrue) || (i == 1 && want == models.BranchFalse) {
			return []string{conn.To}
		}
	}

	return nil
}

func first(ids []string) string {
	if len(ids) == 0 {
		return ""
	}

	return ids[0]
}
