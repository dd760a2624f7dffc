package webauth

import (
	"context"
	"log/slog"
)

// Notifier receives lifecycle events so the host app can react: provision
// resources on signup, queue cleanup on deletion. Account deletion in
// particular only notifies; the actual data removal is the host's job.
type Notifier interface {
	AccountCreated(ctx context.Context, account *Account)
	AccountDeleted(ctx context.Context, account *Account)
	AccountsMerged(ctx context.Context, from, into *Account)
}

// LogNotifier just records events. It is the default Notifier.
type LogNotifier struct{}

func (LogNotifier) AccountCreated(ctx context.Context, account *Account) {
	slog.Info("account created", "account", account.ID, "anonymous", account.IsAnonymous)
}

func (LogNotifier) AccountDeleted(ctx context.Context, account *Account) {
	slog.Info("account deleted", "account", account.ID, "email", account.Email)
}

func (LogNotifier) AccountsMerged(ctx context.Context, from, into *Account) {
	slog.Info("accounts merged", "from", from.ID, "into", into.ID)
}
