// Package alert implements the operator email notifier (spec §6). No
// repo in the reference corpus wires an email/SMTP library (see
// DESIGN.md), so this uses net/smtp directly, in the teacher's
// unadorned style for ambient I/O it has no library for.
package alert

import (
	"fmt"
	"log"
	"net/smtp"
)

// Config carries the SMTP credentials read from the environment
// (EMAIL_USER, EMAIL_PASS, EMAIL_TO, EMAIL_SERVICE). A zero-value
// Config (any field empty) disables alerting entirely.
type Config struct {
	User    string
	Pass    string
	To      string
	Service string // SMTP host, e.g. "smtp.gmail.com:587"
}

// Notifier sends operator alert emails, or silently no-ops when no
// email credentials are configured.
type Notifier struct {
	cfg     Config
	enabled bool
}

// New builds a Notifier from cfg. Alerting is disabled (Alert becomes
// a no-op) unless every field of cfg is non-empty.
func New(cfg Config) *Notifier {
	enabled := cfg.User != "" && cfg.Pass != "" && cfg.To != "" && cfg.Service != ""
	return &Notifier{cfg: cfg, enabled: enabled}
}

// Alert sends subject/body as a plain-text email to the configured
// recipient. A send failure is logged, never returned: alerting must
// never block the strategy control loop.
func (n *Notifier) Alert(subject, body string) {
	if !n.enabled {
		return
	}

	host := n.cfg.Service
	if idx := indexColon(host); idx >= 0 {
		host = host[:idx]
	}
	auth := smtp.PlainAuth("", n.cfg.User, n.cfg.Pass, host)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", n.cfg.User, n.cfg.To, subject, body)

	if err := smtp.SendMail(n.cfg.Service, auth, n.cfg.User, []string{n.cfg.To}, []byte(msg)); err != nil {
		log.Printf("alert: send email failed: %v", err)
	}
}

func indexColon(s string) int {
	for i, c := range s {
		if c == ':' {
			return i
		}
	}
	return -1
}
