package emailtemplates

import (
	"context"
	"fmt"

	"github.com/angelmondragon/gigmarket-backend/internal/consumers/domain"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
	"github.com/angelmondragon/gigmarket-backend/pkg/outbox/payloads"
)

type keySender interface {
	SendByKey(ctx context.Context, key, to string, vars map[string]string) error
}

// EventHandler sends transactional mail for domain events.
type EventHandler struct {
	sender keySender
	logg   *logger.Logger
}

func NewEventHandler(sender keySender, logg *logger.Logger) (*EventHandler, error) {
	if sender == nil {
		return nil, fmt.Errorf("email sender required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &EventHandler{sender: sender, logg: logg}, nil
}

func (h *EventHandler) Name() string { return "email" }

func (h *EventHandler) Handle(ctx context.Context, event domain.Event) error {
	var key, to string
	var vars map[string]string
	switch p := event.Payload.(type) {
	case *payloads.UserRegisteredEvent:
		key, to = KeyWelcome, p.Email
		vars = map[string]string{"FirstName": p.FirstName, "Role": string(p.Role)}
	case *payloads.EmailRequestedEvent:
		key, to, vars = p.TemplateKey, p.To, p.Vars
	default:
		return nil
	}

	err := h.sender.SendByKey(ctx, key, to, vars)
	switch {
	case err == nil:
		return nil
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound), pkgerrors.IsCode(err, pkgerrors.CodeValidation):
		// Retrying cannot fix a missing or broken template.
		h.logg.Warn(h.logg.WithFields(ctx, map[string]any{"template_key": key, "error": err.Error()}), "email.template_unusable")
		return nil
	default:
		return err
	}
}
