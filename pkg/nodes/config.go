// Package nodes defines the typed configuration of every workflow node type
// and decodes raw node configuration maps into them.
package nodes

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/template"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var ErrUnknownNodeType = errors.New("unknown node type")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}

		return name
	})

	return v
}

// Config is the sealed union of node configurations.
type Config interface {
	Kind() models.NodeType
	sealed()
}

// ConfigError reports a configuration that does not match its node type.
type ConfigError struct {
	Type models.NodeType
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s configuration: %v", e.Type, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Decode turns a resolved configuration map into the typed configuration of nodeType.
func Decode(nodeType models.NodeType, raw map[string]any) (Config, error) {
	cfg, err := newConfig(nodeType)
	if err != nil {
		return nil, &ConfigError{Type: nodeType, Err: err}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           cfg,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, &ConfigError{Type: nodeType, Err: err}
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, &ConfigError{Type: nodeType, Err: err}
	}

	if d, ok := cfg.(defaulter); ok {
		d.applyDefaults()
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{Type: nodeType, Err: describe(err)}
	}

	if c, ok := cfg.(checker); ok {
		if err := c.check(); err != nil {
			return nil, &ConfigError{Type: nodeType, Err: err}
		}
	}

	return cfg, nil
}

// Validate checks a stored, unresolved node configuration. Placeholders are
// kept as literal strings, so templated required fields pass.
func Validate(node *models.Node) error {
	_, err := Decode(node.Type, PrepareConfig(node.Type, template.NormalizeConfig(node.Config)))

	return err
}

// PrepareConfig fills implicit defaults that depend on the execution context,
// such as the record id of update nodes, before placeholders are resolved.
func PrepareConfig(nodeType models.NodeType, config map[string]any) map[string]any {
	prepared := make(map[string]any, len(config)+1)
	for key, value := range config {
		prepared[key] = value
	}

	entity, isEntity := nodeType.Entity()

	switch {
	case isEntity && strings.HasPrefix(string(nodeType), "update_"):
		if isBlank(prepared["record_id"]) {
			prepared["record_id"] = "{{" + string(entity) + ".id}}"
		}
	case nodeType == models.NodeTypeAssignRecord:
		entityType, _ := prepared["entity_type"].(string)
		if entityType != "" && isBlank(prepared["record_id"]) {
			prepared["record_id"] = "{{" + entityType + ".id}}"
		}
	}

	return prepared
}

func isBlank(v any) bool {
	s, ok := v.(string)

	return v == nil || (ok && strings.TrimSpace(s) == "")
}

type defaulter interface {
	applyDefaults()
}

type checker interface {
	check() error
}

func newConfig(nodeType models.NodeType) (Config, error) {
	if entity, ok := nodeType.Entity(); ok {
		switch {
		case nodeType == models.NodeTypeCreateNote:
			return &CreateNoteConfig{}, nil
		case strings.HasPrefix(string(nodeType), "find_"):
			return &FindRecordConfig{Entity: entity}, nil
		case strings.HasPrefix(string(nodeType), "create_"):
			return &CreateRecordConfig{Entity: entity}, nil
		case strings.HasPrefix(string(nodeType), "update_"):
			return &UpdateRecordConfig{Entity: entity}, nil
		}
	}

	switch nodeType {
	case models.NodeTypeWebhookTrigger:
		return &WebhookTriggerConfig{}, nil
	case models.NodeTypeCareTrigger:
		return &CareTriggerConfig{}, nil
	case models.NodeTypeAssignRecord:
		return &AssignRecordConfig{}, nil
	case models.NodeTypeHTTPRequest:
		return &HTTPRequestConfig{}, nil
	case models.NodeTypeSendEmail:
		return &SendEmailConfig{}, nil
	case models.NodeTypeSendSMS:
		return &SendSMSConfig{}, nil
	case models.NodeTypeInitiateCall:
		return &InitiateCallConfig{}, nil
	case models.NodeTypeThoughtlyMessage, models.NodeTypeCallfluentMessage:
		return &AgentMessageConfig{Channel: nodeType}, nil
	case models.NodeTypeAIClassifyStage, models.NodeTypeAIGenerateEmail,
		models.NodeTypeAIEnrichAccount, models.NodeTypeAIRouteActivity:
		return &AIConfig{Capability: nodeType}, nil
	case models.NodeTypeCondition:
		return &ConditionConfig{}, nil
	case models.NodeTypeWait:
		return &WaitConfig{}, nil
	case models.NodeTypeWaitForWebhook:
		return &WaitForWebhookConfig{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}
}

// describe converts validator errors into "field 'x' ..." messages.
func describe(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	messages := make([]string, 0, len(validationErrors))

	for _, fieldErr := range validationErrors {
		switch fieldErr.Tag() {
		case "required", "required_if":
			messages = append(messages, fmt.Sprintf("missing required field '%s'", fieldErr.Field()))
		case "oneof":
			messages = append(messages, fmt.Sprintf("field '%s' must be one of [%s]", fieldErr.Field(), fieldErr.Param()))
		case "min", "gte":
			messages = append(messages, fmt.Sprintf("field '%s' must be at least %s", fieldErr.Field(), fieldErr.Param()))
		case "max", "lte":
			messages = append(messages, fmt.Sprintf("field '%s' must be at most %s", fieldErr.Field(), fieldErr.Param()))
		default:
			messages = append(messages, fmt.Sprintf("field '%s' failed '%s'", fieldErr.Field(), fieldErr.Tag()))
		}
	}

	return errors.New(strings.Join(messages, "; "))
}
