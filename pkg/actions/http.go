package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/nodes"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/outbound"
)

func (d *Dispatcher) httpRequest(ctx context.Context, cfg *nodes.HTTPRequestConfig, opts Options) (Result, error) {
	if opts.Shadow {
		return d.dryRun(ctx, cfg, opts)
	}

	body, err := requestBody(cfg)
	if err != nil {
		return Result{}, err
	}

	resp, err := d.deps.HTTP.Do(ctx, outbound.Request{
		Method:  cfg.Method,
		URL:     cfg.URL,
		Headers: cfg.Headers,
		Body:    body,
		Timeout: cfg.Timeout(),
	})

	var statusErr *outbound.StatusError

	switch {
	case err == nil:
	case errors.As(err, &statusErr) && resp != nil && opts.ContinueOnHTTPError:
		d.logger.WarnContext(ctx, "http request returned non-2xx, continuing",
			"tenant_id", opts.TenantID,
			"url", cfg.URL,
			"status_code", resp.StatusCode,
		)
	default:
		return Result{}, fmt.Errorf("%s %s: %w", cfg.Method, cfg.URL, err)
	}

	value := map[string]any{
		"status_code": resp.StatusCode,
		"ok":          resp.StatusCode >= 200 && resp.StatusCode < 300,
		"headers":     flattenHeaders(resp),
		"body":        string(resp.Body),
	}

	var parsed any
	if len(resp.Body) > 0 && json.Unmarshal(resp.Body, &parsed) == nil {
		value["json"] = parsed
	}

	if cfg.ResponseQuery != "" {
		query, err := d.jq.evaluate(ctx, cfg.ResponseQuery, parsed)
		if err != nil {
			return Result{}, err
		}

		value["query"] = query
	}

	return Result{Namespace: models.NamespaceHTTPResponse, Value: value}, nil
}

func requestBody(cfg *nodes.HTTPRequestConfig) ([]byte, error) {
	var payload any

	switch {
	case cfg.BodyType == "mappings":
		payload = cfg.BodyMappings
	case cfg.Body == nil:
		return nil, nil
	default:
		if s, ok := cfg.Body.(string); ok {
			return []byte(s), nil
		}

		payload = cfg.Body
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	return body, nil
}

func flattenHeaders(resp *outbound.Response) map[string]any {
	headers := make(map[string]any, len(resp.Headers))

	for key := range resp.Headers {
		headers[key] = resp.Headers.Get(key)
	}

	return headers
}
