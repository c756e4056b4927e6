package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pulsefit/pulsefit-auth/internal/models"
)

const sendTimeout = 30 * time.Second

// otpTemplate is the only message this service sends today. It renders
// from the same data map that gets recorded on the outbox row.
var otpTemplate = template.Must(template.New("otp").Parse(`<html>
<body>
<p>Hello {{.name}},</p>
<p>Your one-time passcode for {{.project_name}} is:</p>
<h2>{{.otp}}</h2>
<p>The code expires shortly. If you did not request it, ignore this mail.</p>
</body>
</html>`))

// Dispatcher owns outbound delivery. Enqueue writes an outbox row and
// returns; the actual SMTP exchange runs in the background and only
// updates the row's status. A nil sender still records rows, which is
// how the debug configuration runs without a mail server.
type Dispatcher struct {
	db     *gorm.DB
	sender Sender
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(db *gorm.DB, sender Sender) *Dispatcher {
	return &Dispatcher{db: db, sender: sender}
}

// Enqueue renders the message, records it in the outbox and hands it to
// the background sender. An error here means nothing was submitted;
// delivery failures after return are recorded on the outbox row only.
func (d *Dispatcher) Enqueue(ctx context.Context, recipient, subject string, data map[string]any) error {
	var body bytes.Buffer
	if err := otpTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("mail: render: %w", err)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("mail: encode template data: %w", err)
	}
	row := models.OutboundMail{
		Recipient:    recipient,
		Subject:      subject,
		TemplateData: datatypes.JSON(payload),
		Status:       models.MailStatusPending,
	}
	if errCreate := d.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return fmt.Errorf("mail: record outbox: %w", errCreate)
	}

	if d.sender == nil {
		return nil
	}

	go d.deliver(row.ID, recipient, subject, body.String())
	return nil
}

// deliver runs detached from the request; it carries its own timeout
// instead of the caller's context.
func (d *Dispatcher) deliver(id uint64, recipient, subject, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	columns := map[string]any{"status": models.MailStatusSent}
	if sendErr := d.sender.Send(ctx, recipient, subject, body); sendErr != nil {
		columns["status"] = models.MailStatusFailed
		columns["error"] = sendErr.Error()
		log.WithError(sendErr).WithField("mail_id", id).Error("mail delivery failed")
	}

	if errUpdate := d.db.Model(&models.OutboundMail{}).
		Where("id = ?", id).
		Updates(columns).Error; errUpdate != nil {
		log.WithError(errUpdate).WithField("mail_id", id).Error("mail outbox status update failed")
	}
}
