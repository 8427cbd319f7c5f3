package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/vikrammonish02/EMprion/internal/domain/port"
	"go.uber.org/zap"
)

type SMTPNotifier struct {
	host   string
	port   int
	from   string
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, logger: logger}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, notice port.FailureNotice) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	msg := buildFailureMessage(n.from, notice)

	err := smtp.SendMail(addr, nil, n.from, []string{notice.To}, []byte(msg))
	if err != nil {
		n.logger.Error("failed to send failure notification email",
			zap.String("to", notice.To),
			zap.String("job_id", notice.JobID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification email sent",
		zap.String("to", notice.To),
		zap.String("job_id", notice.JobID),
	)
	return nil
}

func buildFailureMessage(from string, notice port.FailureNotice) string {
	subject := fmt.Sprintf("Embryo Assessment - Analysis Failed [Job %s]", notice.JobID)
	mode := notice.Mode
	if mode == "" {
		mode = "unspecified"
	}
	body := fmt.Sprintf(
		"Hello,\r\n\r\n"+
			"The embryo analysis you submitted could not be completed.\r\n\r\n"+
			"Job ID: %s\r\n"+
			"Media: %s\r\n"+
			"Analysis: %s\r\n"+
			"Attempts: %d of %d\r\n"+
			"Reason: %s\r\n\r\n"+
			"No clinical result was produced for this submission. Please review the upload "+
			"and resubmit, or grade the embryo manually.\r\n\r\n"+
			"-- Embryo Assessment Service",
		notice.JobID, notice.MediaKey, mode, notice.Attempt, notice.MaxAttempts, notice.Reason,
	)
	return fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, notice.To, subject, body)
}
