package emailtemplates

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/db/models"
	"github.com/angelmondragon/gigmarket-backend/pkg/email"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

// Well-known keys the platform sends on its own.
const (
	KeyWelcome = "welcome"
)

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,63}$`)

type UpsertRequest struct {
	Key         string  `json:"key" validate:"omitempty,max=64"`
	Subject     string  `json:"subject" validate:"required,max=255"`
	HTMLBody    string  `json:"html_body" validate:"required"`
	TextBody    *string `json:"text_body"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

type TemplateDTO struct {
	Key         string     `json:"key"`
	Subject     string     `json:"subject"`
	HTMLBody    string     `json:"html_body"`
	TextBody    *string    `json:"text_body,omitempty"`
	Description *string    `json:"description,omitempty"`
	UpdatedBy   *uuid.UUID `json:"updated_by,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toDTO(t models.EmailTemplate) TemplateDTO {
	return TemplateDTO{
		Key:         t.Key,
		Subject:     t.Subject,
		HTMLBody:    t.HTMLBody,
		TextBody:    t.TextBody,
		Description: t.Description,
		UpdatedBy:   t.UpdatedBy,
		UpdatedAt:   t.UpdatedAt,
	}
}

type Service interface {
	List(ctx context.Context) ([]TemplateDTO, error)
	Get(ctx context.Context, key string) (*TemplateDTO, error)
	Create(ctx context.Context, adminID uuid.UUID, req UpsertRequest) (*TemplateDTO, error)
	Update(ctx context.Context, adminID uuid.UUID, key string, req UpsertRequest) (*TemplateDTO, error)
	Delete(ctx context.Context, key string) error
	Preview(ctx context.Context, key string, vars map[string]string) (*Rendered, error)
	SendTest(ctx context.Context, key, to string, vars map[string]string) error
	SendByKey(ctx context.Context, key, to string, vars map[string]string) error
}

type templateStore interface {
	List(ctx context.Context) ([]models.EmailTemplate, error)
	FindByKey(ctx context.Context, key string) (*models.EmailTemplate, error)
	Create(ctx context.Context, tpl *models.EmailTemplate) error
	Save(ctx context.Context, tpl *models.EmailTemplate) error
	DeleteByKey(ctx context.Context, key string) (int64, error)
}

type mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

type ServiceParams struct {
	Repo   templateStore
	Mailer mailer
	Logger *logger.Logger
}

type service struct {
	repo   templateStore
	mailer mailer
	logg   *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("email template repository is required")
	case params.Mailer == nil:
		return nil, fmt.Errorf("mailer is required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	return &service{repo: params.Repo, mailer: params.Mailer, logg: params.Logger}, nil
}

func (s *service) List(ctx context.Context) ([]TemplateDTO, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list email templates")
	}
	out := make([]TemplateDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDTO(row))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, key string) (*TemplateDTO, error) {
	row, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	dto := toDTO(*row)
	return &dto, nil
}

func (s *service) Create(ctx context.Context, adminID uuid.UUID, req UpsertRequest) (*TemplateDTO, error) {
	key := normalizeKey(req.Key)
	if !keyPattern.MatchString(key) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "key must be lowercase letters, digits, dot, dash or underscore").
			WithDetails(map[string]any{"field": "key"})
	}
	if err := validateParts(req); err != nil {
		return nil, err
	}

	row := &models.EmailTemplate{
		ID:          uuid.New(),
		Key:         key,
		Subject:     strings.TrimSpace(req.Subject),
		HTMLBody:    req.HTMLBody,
		TextBody:    req.TextBody,
		Description: req.Description,
		UpdatedBy:   &adminID,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		if db.IsUniqueViolation(err, UniqueTemplateKey) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "template key already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create email template")
	}
	s.logg.Info(s.logg.WithField(ctx, "template_key", key), "emailtemplates.created")
	dto := toDTO(*row)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, adminID uuid.UUID, key string, req UpsertRequest) (*TemplateDTO, error) {
	row, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := validateParts(req); err != nil {
		return nil, err
	}
	row.Subject = strings.TrimSpace(req.Subject)
	row.HTMLBody = req.HTMLBody
	row.TextBody = req.TextBody
	row.Description = req.Description
	row.UpdatedBy = &adminID
	if err := s.repo.Save(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update email template")
	}
	s.logg.Info(s.logg.WithField(ctx, "template_key", row.Key), "emailtemplates.updated")
	dto := toDTO(*row)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, key string) error {
	n, err := s.repo.DeleteByKey(ctx, normalizeKey(key))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete email template")
	}
	if n == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "email template not found")
	}
	return nil
}

func (s *service) Preview(ctx context.Context, key string, vars map[string]string) (*Rendered, error) {
	row, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}
	out, err := render(*row, vars)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "render email template")
	}
	return out, nil
}

func (s *service) SendTest(ctx context.Context, key, to string, vars map[string]string) error {
	rendered, err := s.Preview(ctx, key, vars)
	if err != nil {
		return err
	}
	rendered.Subject = "[TEST] " + rendered.Subject
	if err := s.mailer.Send(ctx, email.Message{To: to, Subject: rendered.Subject, HTML: rendered.HTML, Text: rendered.Text}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send test email")
	}
	return nil
}

func (s *service) SendByKey(ctx context.Context, key, to string, vars map[string]string) error {
	rendered, err := s.Preview(ctx, key, vars)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, email.Message{To: to, Subject: rendered.Subject, HTML: rendered.HTML, Text: rendered.Text}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send email")
	}
	return nil
}

func (s *service) find(ctx context.Context, key string) (*models.EmailTemplate, error) {
	row, err := s.repo.FindByKey(ctx, normalizeKey(key))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "email template not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load email template")
	}
	return row, nil
}

func validateParts(req UpsertRequest) error {
	if _, err := compile(req.Subject, req.HTMLBody, req.TextBody); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "template does not parse")
	}
	return nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
