package models

import (
	"maps"
	"strconv"
	"strings"
)

// Well-known namespaces written by action handlers.
const (
	NamespaceHTTPResponse    = "http_response"
	NamespaceEmailDispatch   = "email_dispatch"
	NamespaceSMSDispatch     = "sms_dispatch"
	NamespaceCallDispatch    = "call_dispatch"
	NamespaceMessageDispatch = "message_dispatch"
	NamespaceAIStage         = "ai_stage"
	NamespaceAIEmail         = "ai_email"
	NamespaceAIEnrichment    = "ai_enrichment"
	NamespaceAIRoute         = "ai_route"
	NamespaceAssignment      = "assignment"
	NamespaceWebhook         = "webhook"
)

// ExecutionContext maps namespaces to the JSON values produced so far in an
// execution. Top-level trigger payload keys are namespaces as well.
type ExecutionContext map[string]any

// NewExecutionContext seeds a context from a trigger payload.
func NewExecutionContext(trigger map[string]any) ExecutionContext {
	ctx := make(ExecutionContext, len(trigger))
	maps.Copy(ctx, trigger)

	return ctx
}

// Set writes value under namespace. Later writes to the same namespace win.
func (c ExecutionContext) Set(namespace string, value any) {
	c[namespace] = value
}

// SetAbsent writes value under namespace only when it holds nothing yet.
func (c ExecutionContext) SetAbsent(namespace string, value any) {
	if _, ok := c[namespace]; !ok {
		c[namespace] = value
	}
}

// Lookup walks a dotted path such as "lead.owner.email". Numeric segments
// index into arrays.
func (c ExecutionContext) Lookup(path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}

	var current any = map[string]any(c)

	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = next
		case ExecutionContext:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}

			current = node[index]
		default:
			return nil, false
		}
	}

	return current, true
}

// Clone returns a shallow copy safe to mutate at the top level.
func (c ExecutionContext) Clone() ExecutionContext {
	clone := make(ExecutionContext, len(c))
	maps.Copy(clone, c)

	return clone
}
