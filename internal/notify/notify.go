// Package notify delivers best-effort notifications. Senders are
// called after the owning transaction commits; a delivery failure is
// reported to the caller as a count, never as a rollback.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Notification kinds.
const (
	AssignmentCreated = "assignment.created"
)

type Data map[string]any

type Sender interface {
	Send(ctx context.Context, kind string, data Data) error
}

// Noop drops every notification. Used when no SMTP server is configured.
type Noop struct{}

func (Noop) Send(context.Context, string, Data) error { return nil }

// SMTP sends plain-text mail over a single SMTP hop.
type SMTP struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

func (s SMTP) Send(ctx context.Context, kind string, data Data) error {
	to, _ := data["to"].(string)
	if to == "" {
		return fmt.Errorf("notification %s: no recipient", kind)
	}
	subject, body := render(kind, data)
	msg := strings.Join([]string{
		"From: " + s.From,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	return smtp.SendMail(addr, auth, s.From, []string{to}, []byte(msg))
}

func render(kind string, data Data) (subject, body string) {
	switch kind {
	case AssignmentCreated:
		return fmt.Sprintf("New audit assignment for %v", data["period"]),
			fmt.Sprintf("Hello %v,\n\nyou have been assigned a process audit for period %v.\nDeadline: %v\n",
				data["name"], data["period"], data["deadline"])
	}
	return kind, fmt.Sprintf("%v", data)
}

// Recorder captures sent notifications for tests.
type Recorder struct {
	Sent []string
	Fail bool
}

func (r *Recorder) Send(_ context.Context, kind string, data Data) error {
	if r.Fail {
		return fmt.Errorf("delivery refused")
	}
	r.Sent = append(r.Sent, fmt.Sprintf("%s:%v", kind, data["to"]))
	return nil
}
