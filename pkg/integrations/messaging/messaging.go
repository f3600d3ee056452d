// Package messaging hands email, SMS, voice call and agent messages to the
// telephony/messaging gateway. Delivery is asynchronous: Send returns the
// dispatch id and delivery results arrive later as correlation webhooks.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/outbound"
	"github.com/spf13/cast"
)

var (
	ErrNoEndpoint      = errors.New("no gateway endpoint configured for channel")
	ErrInvalidResponse = errors.New("invalid gateway response")
)

type Channel string

const (
	ChannelEmail      Channel = "email"
	ChannelSMS        Channel = "sms"
	ChannelCall       Channel = "call"
	ChannelThoughtly  Channel = "thoughtly"
	ChannelCallfluent Channel = "callfluent"
)

// Message is a resolved outbound message.
type Message struct {
	Channel  Channel        `json:"channel"`
	TenantID string         `json:"tenant_id"`
	To       string         `json:"to"`
	From     string         `json:"from,omitempty"`
	Subject  string         `json:"subject,omitempty"`
	Body     string         `json:"body"`
	Provider string         `json:"provider,omitempty"`
	AgentID  string         `json:"agent_id,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// Dispatch acknowledges a message accepted by the gateway.
type Dispatch struct {
	ID       string `json:"id"`
	Provider string `json:"provider,omitempty"`
	Status   string `json:"status"`
}

// Sender is the messaging collaborator used by the action dispatcher.
type Sender interface {
	Send(ctx context.Context, msg Message) (Dispatch, error)
}

// GatewayConfig maps channels to gateway URLs. Channels without an explicit
// endpoint are posted to BaseURL + "/" + channel.
type GatewayConfig struct {
	BaseURL   string             `mapstructure:"base_url"`
	APIKey    string             `mapstructure:"api_key"`
	Endpoints map[Channel]string `mapstructure:"endpoints"`
}

type Gateway struct {
	config GatewayConfig
	http   *outbound.Client
}

func NewGateway(config GatewayConfig, http *outbound.Client) *Gateway {
	if http == nil {
		http = outbound.NewClient()
	}

	return &Gateway{config: config, http: http}
}

func (g *Gateway) endpoint(channel Channel) (string, error) {
	if url, ok := g.config.Endpoints[channel]; ok && url != "" {
		return url, nil
	}

	if g.config.BaseURL == "" {
		return "", fmt.Errorf("%w: %s", ErrNoEndpoint, channel)
	}

	return strings.TrimRight(g.config.BaseURL, "/") + "/" + string(channel), nil
}

func (g *Gateway) Send(ctx context.Context, msg Message) (Dispatch, error) {
	url, err := g.endpoint(msg.Channel)
	if err != nil {
		return Dispatch{}, err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return Dispatch{}, fmt.Errorf("failed to encode message: %w", err)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if g.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + g.config.APIKey
	}

	resp, err := g.http.Do(ctx, outbound.Request{Method: http.MethodPost, URL: url, Headers: headers, Body: body})
	if err != nil {
		return Dispatch{}, fmt.Errorf("%s dispatch failed: %w", msg.Channel, err)
	}

	var ack map[string]any
	if err := json.Unmarshal(resp.Body, &ack); err != nil {
		return Dispatch{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	dispatch := Dispatch{
		ID:       firstString(ack, "id", "message_id", "call_id", "dispatch_id"),
		Provider: firstString(ack, "provider"),
		Status:   firstString(ack, "status"),
	}

	if dispatch.ID == "" {
		return Dispatch{}, fmt.Errorf("%w: missing dispatch id", ErrInvalidResponse)
	}

	if dispatch.Status == "" {
		dispatch.Status = "queued"
	}

	if dispatch.Provider == "" {
		dispatch.Provider = msg.Provider
	}

	return dispatch, nil
}

func firstString(values map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := cast.ToString(values[key]); s != "" {
			return s
		}
	}

	return ""
}
