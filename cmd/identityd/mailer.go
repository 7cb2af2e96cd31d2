package main

import (
	"context"
	"log/slog"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// logMailer writes reset mail to the log instead of sending it. The link is
// logged so development setups can complete a reset.
type logMailer struct {
	logger *slog.Logger
}

func (m logMailer) SendPasswordReset(ctx context.Context, email goIdentity.ResetEmail) error {
	m.logger.InfoContext(ctx, "password reset mail",
		"operation", "send_reset",
		"to", email.To,
		"link", email.Link,
	)
	return nil
}
