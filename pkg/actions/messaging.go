package actions

import (
	"context"
	"fmt"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/integrations/messaging"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/nodes"
)

func (d *Dispatcher) sendEmail(ctx context.Context, cfg *nodes.SendEmailConfig, opts Options) (Result, error) {
	if opts.Shadow {
		return d.dryRun(ctx, cfg, opts)
	}

	return d.dispatch(ctx, models.NamespaceEmailDispatch, "message_id", messaging.Message{
		Channel:  messaging.ChannelEmail,
		TenantID: opts.TenantID,
		To:       cfg.To,
		From:     cfg.From,
		Subject:  cfg.Subject,
		Body:     cfg.Body,
		Provider: cfg.Provider,
	})
}

func (d *Dispatcher) sendSMS(ctx context.Context, cfg *nodes.SendSMSConfig, opts Options) (Result, error) {
	if opts.Shadow {
		return d.dryRun(ctx, cfg, opts)
	}

	return d.dispatch(ctx, models.NamespaceSMSDispatch, "message_id", messaging.Message{
		Channel:  messaging.ChannelSMS,
		TenantID: opts.TenantID,
		To:       cfg.To,
		Body:     cfg.Message,
		Provider: cfg.Provider,
	})
}

func (d *Dispatcher) initiateCall(ctx context.Context, cfg *nodes.InitiateCallConfig, opts Options) (Result, error) {
	if opts.Shadow {
		return d.dryRun(ctx, cfg, opts)
	}

	return d.dispatch(ctx, models.NamespaceCallDispatch, "call_id", messaging.Message{
		Channel:  messaging.ChannelCall,
		TenantID: opts.TenantID,
		To:       cfg.To,
		Body:     cfg.Script,
		Provider: cfg.Provider,
		AgentID:  cfg.AgentID,
		Context:  cfg.Context,
	})
}

func (d *Dispatcher) agentMessage(ctx context.Context, cfg *nodes.AgentMessageConfig, opts Options) (Result, error) {
	if opts.Shadow {
		return d.dryRun(ctx, cfg, opts)
	}

	channel := messaging.ChannelThoughtly
	if cfg.Channel == models.NodeTypeCallfluentMessage {
		channel = messaging.ChannelCallfluent
	}

	return d.dispatch(ctx, models.NamespaceMessageDispatch, "message_id", messaging.Message{
		Channel:  channel,
		TenantID: opts.TenantID,
		To:       cfg.To,
		Body:     cfg.Message,
		Provider: string(channel),
		AgentID:  cfg.AgentID,
	})
}

// dispatch hands msg to the gateway. The dispatch id is written under idKey
// so wait_for_webhook can correlate the delivery result.
func (d *Dispatcher) dispatch(ctx context.Context, namespace, idKey string, msg messaging.Message) (Result, error) {
	if d.deps.Messaging == nil {
		return Result{}, fmt.Errorf("%w: messaging", ErrNotConfigured)
	}

	dispatch, err := d.deps.Messaging.Send(ctx, msg)
	if err != nil {
		return Result{}, err
	}

	d.logger.InfoContext(ctx, "message dispatched",
		"tenant_id", msg.TenantID,
		"channel", msg.Channel,
		"dispatch_id", dispatch.ID,
	)

	return Result{
		Namespace: namespace,
		Value: map[string]any{
			idKey:      dispatch.ID,
			"channel":  string(msg.Channel),
			"to":       msg.To,
			"provider": dispatch.Provider,
			"status":   dispatch.Status,
		},
	}, nil
}
