package webauth

import (
	"context"
	"fmt"
	"log/slog"
)

// EmailSender delivers the auth flows' outbound mail: OTP codes and
// password reset links. Implementations plug in whatever provider the host
// app uses.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ConsoleEmailSender logs mail instead of sending it. It is the default so
// development setups work without a mail provider.
type ConsoleEmailSender struct{}

func (ConsoleEmailSender) Send(ctx context.Context, to, subject, body string) error {
	slog.Info("email (console sender)", "to", to, "subject", subject, "body", body)
	return nil
}

// sendOTPEmail mails a verification code.
func (a *Auth) sendOTPEmail(ctx context.Context, to, code string) error {
	subject := fmt.Sprintf("%s: your verification code", a.Config.EmailAppName)
	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		code, int(a.Config.OneTimeStateTTL.Minutes()))
	return a.Email.Send(ctx, to, subject, body)
}

// sendPasswordResetEmail mails a reset link pointing back at this service.
func (a *Auth) sendPasswordResetEmail(ctx context.Context, to, token string) error {
	subject := fmt.Sprintf("%s: password reset", a.Config.EmailAppName)
	link := fmt.Sprintf("%s/password/reset/%s", a.Config.BaseURL, token)
	body := fmt.Sprintf("Follow this link to reset your password: %s\nThe link expires in %d minutes.",
		link, int(a.Config.ResetTokenTTL.Minutes()))
	return a.Email.Send(ctx, to, subject, body)
}
