package auth

import "context"

// Mailer delivers out-of-band notifications. Delivery itself is an external
// collaborator; the auth service only hands it the recipient and secret.
type Mailer interface {
	SendTemporaryPassword(ctx context.Context, email, tempPassword string) error
}

// NopMailer drops every message. Used in development and tests.
type NopMailer struct{}

func (NopMailer) SendTemporaryPassword(context.Context, string, string) error { return nil }
