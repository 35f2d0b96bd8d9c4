package handlers

import (
	"context"

	"github.com/rs/zerolog"
)

// Mailer delivers account emails. Delivery failures are logged by the
// handlers, never surfaced to clients: responses must not reveal whether an
// address is registered.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
	SendVerification(ctx context.Context, email, token string) error
}

// LogMailer writes the mail that would be sent to the log. Development
// stand-in until an SMTP or provider-backed implementation is wired.
// Tokens are redacted unless IncludeTokens is set; production wiring must
// leave it false.
type LogMailer struct {
	Log           zerolog.Logger
	IncludeTokens bool
}

func (m LogMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.Log.Info().Str("email", email).Str("token", m.redact(token)).Msg("password reset email")
	return nil
}

func (m LogMailer) SendVerification(_ context.Context, email, token string) error {
	m.Log.Info().Str("email", email).Str("token", m.redact(token)).Msg("verification email")
	return nil
}

func (m LogMailer) redact(token string) string {
	if m.IncludeTokens {
		return token
	}
	return "[redacted]"
}
