// Package notify delivers rejection notices to patients. Delivery is
// best-effort by contract: the scheduler observes failures in logs and
// metrics but never alters appointment state because of them.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
)

// Notifier sends a rejection notice. Implementations must be safe for
// concurrent use.
type Notifier interface {
	SendRejection(ctx context.Context, toEmail, patientName, date, timeOfDay string) error
}

// RejectionSubject is the mail subject line for declined appointments.
const RejectionSubject = "Appointment Status Update - Clinic System"

// RejectionBody renders the notice text sent to the patient. The date and
// time are the original booking strings, unmodified.
func RejectionBody(patientName, date, timeOfDay string) string {
	return fmt.Sprintf(
		"Dear %s,\n\n"+
			"We regret to inform you that your appointment on %s at %s has been DECLINED by the doctor.\n\n"+
			"Please contact the clinic for rescheduling.\n\n"+
			"Thank you.",
		patientName, date, timeOfDay,
	)
}

// SMTPNotifier delivers notices over a plain SMTP relay.
type SMTPNotifier struct {
	Addr string // host:port of the relay
	From string
}

// NewSMTP constructs an SMTP-backed notifier.
func NewSMTP(addr, from string) *SMTPNotifier {
	return &SMTPNotifier{Addr: addr, From: from}
}

// SendRejection composes and sends the notice in one SMTP exchange.
func (n *SMTPNotifier) SendRejection(ctx context.Context, toEmail, patientName, date, timeOfDay string) error {
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		n.From, toEmail, RejectionSubject, RejectionBody(patientName, date, timeOfDay),
	)
	if err := smtp.SendMail(n.Addr, nil, n.From, []string{toEmail}, []byte(msg)); err != nil {
		return fmt.Errorf("send rejection to %s: %w", toEmail, err)
	}
	return nil
}
