package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/betul-abla-portal/apiclient"
	"github.com/jrsteele09/betul-abla-portal/identity"
	"github.com/jrsteele09/betul-abla-portal/internal/errors"
)

// ProfileUpdate holds the self-service profile fields. Empty fields are left
// unchanged.
type ProfileUpdate struct {
	FullName string `json:"full_name,omitempty" validate:"max=100"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
}

type passwordChange struct {
	OldPassword     string `json:"old_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"min=8,nefield=OldPassword"`
	ConfirmPassword string `json:"confirm_password"`
}

var accountValidator = validator.New(validator.WithRequiredStructEnabled())

// invalid turns the first failed rule into an ErrValidation with a message for
// the account page.
func invalid(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	var msg string
	switch fe.StructField() + "." + fe.Tag() {
	case "OldPassword.required":
		msg = "current password is required"
	case "NewPassword.min":
		msg = fmt.Sprintf("new password must be at least %s characters", fe.Param())
	case "NewPassword.nefield":
		msg = "new password must differ from the current one"
	case "FullName.max":
		msg = fmt.Sprintf("full name must be at most %s characters", fe.Param())
	case "Email.email":
		msg = "email address is not valid"
	default:
		msg = fmt.Sprintf("%s is invalid", fe.Field())
	}
	return fmt.Errorf("%w: %s", errors.ErrValidation, msg)
}

// ChangePassword changes the signed-in user's password. The stored tokens stay
// valid.
func (m *Manager) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	if err := m.requireAuthenticated(); err != nil {
		return fmt.Errorf("[session ChangePassword] %w", err)
	}
	body := passwordChange{OldPassword: oldPassword, NewPassword: newPassword, ConfirmPassword: newPassword}
	if err := accountValidator.Struct(body); err != nil {
		return fmt.Errorf("[session ChangePassword] %w", invalid(err))
	}

	if err := m.client.DoJSON(ctx, http.MethodPost, m.passwordEndpoint, nil, body, nil); err != nil {
		return fmt.Errorf("[session ChangePassword] %w", rejected(err))
	}
	m.logger.Info().Msg("password changed")
	return nil
}

// UpdateProfile saves the profile fields and re-caches the identity the
// service returns.
func (m *Manager) UpdateProfile(ctx context.Context, update ProfileUpdate) (*identity.Identity, error) {
	if err := m.requireAuthenticated(); err != nil {
		return nil, fmt.Errorf("[session UpdateProfile] %w", err)
	}
	update.FullName = strings.TrimSpace(update.FullName)
	update.Email = strings.TrimSpace(update.Email)
	if err := accountValidator.Struct(update); err != nil {
		return nil, fmt.Errorf("[session UpdateProfile] %w", invalid(err))
	}

	var id identity.Identity
	if err := m.client.DoJSON(ctx, http.MethodPut, m.profileEndpoint, nil, update, &id); err != nil {
		return nil, fmt.Errorf("[session UpdateProfile] %w", rejected(err))
	}
	if err := m.store.SetIdentity(ctx, id); err != nil {
		m.logger.Warn().Err(err).Msg("failed to cache identity")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated {
		return nil, fmt.Errorf("[session UpdateProfile] %w", errors.ErrNotAuthenticated)
	}
	m.identity = &id
	out := id
	return &out, nil
}

func (m *Manager) requireAuthenticated() error {
	state, _ := m.Snapshot()
	if state != StateAuthenticated {
		return errors.ErrNotAuthenticated
	}
	return nil
}

// rejected marks a 400 from the service as a validation failure.
func rejected(err error) error {
	var statusErr *apiclient.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusBadRequest {
		return fmt.Errorf("%w: %w", errors.ErrValidation, err)
	}
	return err
}
