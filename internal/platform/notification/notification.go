// Package notification renders reminder templates and delivers them to
// users over push, keeping a short in-memory history for retries.
package notification

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Notification is one outbound message to a single user.
type Notification struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Status       Status            `json:"status"`
	Attempts     int               `json:"attempts"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Template is a reusable notification with {{key}} placeholders.
type Template struct {
	ID    string
	Title string
	Body  string
}

const (
	TemplateAppointmentReminder = "appointment-reminder"
	TemplateTherapyReminder     = "therapy-reminder"
)

type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateEngine returns an engine with the reminder templates registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	e.RegisterTemplate(Template{
		ID:    TemplateAppointmentReminder,
		Title: "Upcoming consultation",
		Body:  "Namaste {{patient_name}}, your consultation with Dr. {{doctor_name}} is on {{date}} at {{time}}.",
	})
	e.RegisterTemplate(Template{
		ID:    TemplateTherapyReminder,
		Title: "Upcoming {{therapy_type}} session",
		Body:  "Namaste {{patient_name}}, session {{session_number}} of {{total_sessions}} of {{therapy_type}} with {{therapist_name}} starts at {{time}} on {{date}}.",
	})
	return e
}

func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render substitutes data into the template. Placeholders without a value
// are left untouched.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (title, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	title, body = t.Title, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		title = strings.ReplaceAll(title, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return title, body, nil
}

const defaultHistoryLimit = 1000

// Manager sends notifications through a PushSender and remembers the most
// recent ones so failed deliveries can be retried.
type Manager struct {
	sender    PushSender
	templates *TemplateEngine
	limit     int

	mu            sync.RWMutex
	notifications map[string]*Notification
	order         []string
}

func NewManager(sender PushSender, tpl *TemplateEngine) *Manager {
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	return &Manager{
		sender:        sender,
		templates:     tpl,
		limit:         defaultHistoryLimit,
		notifications: make(map[string]*Notification),
	}
}

// Send delivers n and records the outcome. The returned error is the
// delivery error, if any; n is stored either way.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.UserID == "" {
		return fmt.Errorf("notification recipient is required")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now().UTC()
	n.Status = StatusPending

	err := m.deliver(ctx, n)
	m.store(n)
	return err
}

// SendFromTemplate renders templateID with data and sends it to userID.
func (m *Manager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, userID string) (*Notification, error) {
	title, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	n := &Notification{
		UserID:       userID,
		Title:        title,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
	}
	return n, m.Send(ctx, n)
}

func (m *Manager) Get(id string) (*Notification, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[id]
	return n, ok
}

// Retry re-sends a failed notification.
func (m *Manager) Retry(ctx context.Context, id string) error {
	n, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("notification %q not found", id)
	}
	m.mu.RLock()
	status := n.Status
	m.mu.RUnlock()
	if status != StatusFailed {
		return fmt.Errorf("notification %q is not in failed status (current: %s)", id, status)
	}
	return m.deliver(ctx, n)
}

// ListByUser returns the user's notifications, newest first.
func (m *Manager) ListByUser(userID string, limit int) []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Stats counts stored notifications by status.
func (m *Manager) Stats() map[Status]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := make(map[Status]int)
	for _, n := range m.notifications {
		stats[n.Status]++
	}
	return stats
}

func (m *Manager) deliver(ctx context.Context, n *Notification) error {
	err := m.sender.SendPush(ctx, n.UserID, n.Title, n.Body, n.TemplateData)

	m.mu.Lock()
	defer m.mu.Unlock()
	n.Attempts++
	if err != nil {
		n.Status = StatusFailed
		n.Error = err.Error()
		return err
	}
	n.Status = StatusSent
	n.Error = ""
	sentAt := time.Now().UTC()
	n.SentAt = &sentAt
	return nil
}

func (m *Manager) store(n *Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.notifications[n.ID]; !exists {
		m.order = append(m.order, n.ID)
	}
	m.notifications[n.ID] = n
	for len(m.order) > m.limit {
		delete(m.notifications, m.order[0])
		m.order = m.order[1:]
	}
}
