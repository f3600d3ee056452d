package actions

import (
	"context"
	"fmt"
	"sync"

	"github.com/itchyny/gojq"
)

// queryCache compiles response_query expressions once and shares them
// between executions.
type queryCache struct {
	mu    sync.RWMutex
	codes map[string]*gojq.Code
}

func newQueryCache() *queryCache {
	return &queryCache{codes: make(map[string]*gojq.Code)}
}

// evaluate runs expression against input. A single output is returned as is,
// several outputs as a slice.
func (c *queryCache) evaluate(ctx context.Context, expression string, input any) (any, error) {
	code, err := c.compile(expression)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, input)

	var results []any

	for {
		value, ok := iter.Next()
		if !ok {
			break
		}

		if err, isErr := value.(error); isErr {
			return nil, fmt.Errorf("response_query %q failed: %w", expression, err)
		}

		results = append(results, value)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

func (c *queryCache) compile(expression string) (*gojq.Code, error) {
	c.mu.RLock()
	code, ok := c.codes[expression]
	c.mu.RUnlock()

	if ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid response_query %q: %w", expression, err)
	}

	code, err = gojq.Compile(query, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, fmt.Errorf("invalid response_query %q: %w", expression, err)
	}

	c.mu.Lock()
	c.codes[expression] = code
	c.mu.Unlock()

	return code, nil
}
