// Package notify sends email alerts about terminal job failures so
// administrators hear about broken uploads without polling.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"

	"github.com/Garzer09/finanzas-pyme-vision-sub002/internal/domain/ingest/repository"
)

// EmailNotifier delivers failure notices through Resend. A nil client
// (missing API key) downgrades every send to a log line.
type EmailNotifier struct {
	client    *resend.Client
	fromEmail string
	toEmail   string
	logger    *slog.Logger
}

func NewEmailNotifier(apiKey, fromEmail, toEmail string, logger *slog.Logger) *EmailNotifier {
	var client *resend.Client
	if apiKey != "" {
		client = resend.NewClient(apiKey)
	}
	if fromEmail == "" {
		fromEmail = "Finanzas PYME <no-reply@finanzas-pyme.example>"
	}
	return &EmailNotifier{
		client:    client,
		fromEmail: fromEmail,
		toEmail:   toEmail,
		logger:    logger,
	}
}

// JobFailed emails the admin about a failed processing job.
func (n *EmailNotifier) JobFailed(_ context.Context, job *repository.ProcessingJob, reason string) {
	if n.client == nil || n.toEmail == "" {
		n.logger.Warn("resend client not configured, skipping failure email",
			slog.String("job_id", job.ID.String()),
			slog.String("reason", reason))
		return
	}

	html := fmt.Sprintf(`
<p>El procesamiento del archivo <strong>%s</strong> ha fallado.</p>
<p>Motivo: %s</p>
<p>Empresa: %s<br>Trabajo: %s</p>
<p>Consulta el informe de validación en el panel de administración.</p>`,
		job.FileName, reason, job.CompanyID, job.ID)

	_, err := n.client.Emails.Send(&resend.SendEmailRequest{
		From:    n.fromEmail,
		To:      []string{n.toEmail},
		Subject: fmt.Sprintf("Carga fallida: %s", job.FileName),
		Html:    html,
	})
	if err != nil {
		n.logger.Error("failed to send failure email",
			slog.String("job_id", job.ID.String()),
			slog.Any("error", err))
	}
}
