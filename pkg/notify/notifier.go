// Package notify emails a task's new assignee. Notification is best effort:
// every attempt is audited and no failure ever reaches the task write that
// triggered it.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/store"
)

// DefaultProjectName stands in when the project cannot be looked up.
const DefaultProjectName = "a project"

type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Directory resolves context for a message and keeps the audit trail.
type Directory interface {
	GetUser(ctx context.Context, id string) (model.User, error)
	GetProject(ctx context.Context, id string) (model.Project, error)
	WriteNotificationAudit(ctx context.Context, e store.AuditEntry) error
}

var messageTemplate = template.Must(template.New("assigned").Parse(`<!DOCTYPE html>
<html>
<body>
<p>You have been assigned a task in <strong>{{.Project}}</strong>.</p>
<h2>{{.Title}}</h2>
{{- if .Description}}
<p>{{.Description}}</p>
{{- end}}
<p>Priority: {{.Priority}}</p>
{{- if .Due}}
<p>Due: {{.Due}}</p>
{{- end}}
</body>
</html>
`))

type message struct {
	Project     string
	Title       string
	Description string
	Priority    string
	Due         string
}

type Notifier struct {
	log    *slog.Logger
	dir    Directory
	mailer Mailer
	now    func() time.Time
}

func NewNotifier(log *slog.Logger, dir Directory, mailer Mailer) *Notifier {
	return &Notifier{log: log, dir: dir, mailer: mailer, now: time.Now}
}

// Handle reacts to one committed task write. It never fails.
func (n *Notifier) Handle(ctx context.Context, change store.TaskChange) {
	if !assigneeChanged(change.Before, change.After) {
		return
	}
	task := change.After

	to := n.recipient(ctx, task)
	if to == "" {
		n.log.Debug("no email address for assignee", "task_id", task.ID, "user_id", task.AssigneeID)
		return
	}

	entry := store.AuditEntry{TaskID: task.ID, Recipient: to}
	if err := n.send(ctx, to, task); err != nil {
		n.log.Warn("assignment notification failed", "task_id", task.ID, "recipient", to, "error", err)
		entry.Error = err.Error()
	} else {
		n.log.Info("assignment notification sent", "task_id", task.ID, "recipient", to)
		entry.Success = true
	}
	entry.SentAt = n.now().UTC()

	if err := n.dir.WriteNotificationAudit(ctx, entry); err != nil {
		n.log.Error("could not write notification audit", "task_id", task.ID, "error", err)
	}
}

func (n *Notifier) send(ctx context.Context, to string, task *model.Task) error {
	body, err := render(message{
		Project:     n.projectName(ctx, task.ProjectID),
		Title:       task.Title,
		Description: task.Description,
		Priority:    string(task.Priority),
		Due:         formatDue(task.DueAt),
	})
	if err != nil {
		return err
	}
	return n.mailer.Send(ctx, to, "New task assigned: "+task.Title, body)
}

func (n *Notifier) recipient(ctx context.Context, task *model.Task) string {
	user, err := n.dir.GetUser(ctx, task.AssigneeID)
	if err == nil && isEmail(user.Email) {
		return user.Email
	}
	if err != nil {
		n.log.Debug("assignee lookup failed", "user_id", task.AssigneeID, "error", err)
	}
	for _, candidate := range []string{task.AssigneeName, task.AssigneeID} {
		if isEmail(candidate) {
			return strings.TrimSpace(candidate)
		}
	}
	return ""
}

func (n *Notifier) projectName(ctx context.Context, projectID string) string {
	p, err := n.dir.GetProject(ctx, projectID)
	if err != nil || p.Name == "" {
		return DefaultProjectName
	}
	return p.Name
}

// assigneeChanged reports a transition to a new non-empty assignee.
func assigneeChanged(before, after *model.Task) bool {
	if after == nil || after.AssigneeID == "" {
		return false
	}
	return before == nil || before.AssigneeID != after.AssigneeID
}

func render(m message) (string, error) {
	var buf bytes.Buffer
	if err := messageTemplate.Execute(&buf, m); err != nil {
		return "", fmt.Errorf("render notification: %w", err)
	}
	return buf.String(), nil
}

func formatDue(due *time.Time) string {
	if due == nil {
		return ""
	}
	return due.UTC().Format("Mon, 02 Jan 2006")
}

func isEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
