// Package notification delivers alert events to the on-call care team over a
// configurable webhook channel, with template rendering for human-readable
// messages, an in-memory delivery log, retry support, and Echo HTTP handlers
// for inspection.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Alert events
// ---------------------------------------------------------------------------

// AlertEvent is the payload handed to the notifier when an alert crosses an
// escalation level.
type AlertEvent struct {
	AlertID    string    `json:"alert_id"`
	PatientID  string    `json:"patient_id"`
	RuleID     string    `json:"rule_id"`
	Severity   string    `json:"severity"`
	Level      int       `json:"level"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier is implemented by anything that can push an alert event to the
// care team. The escalation scheduler depends on this interface only.
type Notifier interface {
	NotifyAlert(ctx context.Context, ev AlertEvent) error
}

// ---------------------------------------------------------------------------
// Notification record
// ---------------------------------------------------------------------------

// Delivery statuses.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Notification represents a single outbound care-team notification.
type Notification struct {
	ID        string     `json:"id"`
	AlertID   string     `json:"alert_id"`
	PatientID string     `json:"patient_id"`
	RuleID    string     `json:"rule_id"`
	Severity  string     `json:"severity"`
	Level     int        `json:"level"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// Deliverer interface and webhook implementation
// ---------------------------------------------------------------------------

// Deliverer is the transport used to push a rendered notification out.
type Deliverer interface {
	Deliver(ctx context.Context, n *Notification) error
}

// WebhookDeliverer posts the notification as JSON to a configured endpoint.
// The receiving side (paging gateway, chat bridge) fans it out to the on-call
// rotation.
type WebhookDeliverer struct {
	client *resty.Client
	url    string
}

// NewWebhookDeliverer constructs a WebhookDeliverer for the given endpoint.
func NewWebhookDeliverer(url string) *WebhookDeliverer {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &WebhookDeliverer{client: client, url: url}
}

// Deliver posts the notification and treats any non-2xx response as failure.
func (d *WebhookDeliverer) Deliver(ctx context.Context, n *Notification) error {
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(n).
		Post(d.url)
	if err != nil {
		return fmt.Errorf("post notification webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode())
	}
	return nil
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines a reusable notification template.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      "alert-escalated",
			Name:    "Alert Escalated",
			Subject: "Unacknowledged {{severity}} alert for patient {{patient_id}}",
			Body:    "Alert {{rule}} ({{severity}}) for patient {{patient_id}} has not been acknowledged and is now at escalation level {{level}}. {{message}}",
		},
		{
			ID:      "alert-physician-page",
			Name:    "Physician Page",
			Subject: "PHYSICIAN PAGE: {{severity}} alert for patient {{patient_id}} still open",
			Body:    "Alert {{rule}} ({{severity}}) for patient {{patient_id}} remains unacknowledged after staff escalation. The responsible physician is being paged. {{message}}",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Mocks (test doubles)
// ---------------------------------------------------------------------------

// MockDeliverer is a test double for Deliverer.
type MockDeliverer struct {
	mu         sync.Mutex
	calls      []Notification
	ShouldFail bool
	FailError  string
}

// Deliver records the call and optionally returns an error.
func (m *MockDeliverer) Deliver(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, *n)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded deliveries.
func (m *MockDeliverer) Calls() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.calls))
	copy(out, m.calls)
	return out
}

// MockNotifier is a test double for Notifier, for use by packages that
// trigger notifications.
type MockNotifier struct {
	mu         sync.Mutex
	calls      []AlertEvent
	ShouldFail bool
	FailError  string
}

// NotifyAlert records the event and optionally returns an error.
func (m *MockNotifier) NotifyAlert(_ context.Context, ev AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, ev)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded alert events.
func (m *MockNotifier) Calls() []AlertEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AlertEvent, len(m.calls))
	copy(out, m.calls)
	return out
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

// Manager renders alert events into notifications, dispatches them through
// the configured deliverer, and keeps a delivery log for retry and
// inspection.
type Manager struct {
	deliverer     Deliverer
	templates     *TemplateEngine
	mu            sync.RWMutex
	notifications map[string]*Notification
}

// NewManager constructs a Manager.
func NewManager(deliverer Deliverer, tpl *TemplateEngine) *Manager {
	return &Manager{
		deliverer:     deliverer,
		templates:     tpl,
		notifications: make(map[string]*Notification),
	}
}

// templateForLevel maps an escalation level to a builtin template.
func templateForLevel(level int) string {
	if level >= 2 {
		return "alert-physician-page"
	}
	return "alert-escalated"
}

// NotifyAlert renders the event, delivers it, and records the outcome. The
// record is kept even when delivery fails, so operators can inspect and
// retry.
func (m *Manager) NotifyAlert(ctx context.Context, ev AlertEvent) error {
	data := map[string]string{
		"patient_id": ev.PatientID,
		"rule":       ev.RuleID,
		"severity":   ev.Severity,
		"level":      strconv.Itoa(ev.Level),
		"message":    ev.Message,
	}

	subject, body, err := m.templates.Render(templateForLevel(ev.Level), data)
	if err != nil {
		return fmt.Errorf("render notification: %w", err)
	}

	n := &Notification{
		ID:        uuid.New().String(),
		AlertID:   ev.AlertID,
		PatientID: ev.PatientID,
		RuleID:    ev.RuleID,
		Severity:  ev.Severity,
		Level:     ev.Level,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}

	sendErr := m.deliverer.Deliver(ctx, n)
	if sendErr != nil {
		n.Status = StatusFailed
		n.Error = sendErr.Error()
	} else {
		n.Status = StatusSent
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}

	m.mu.Lock()
	m.notifications[n.ID] = n
	m.mu.Unlock()

	return sendErr
}

// Get retrieves a notification by ID.
func (m *Manager) Get(_ context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	n, ok := m.notifications[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	return n, nil
}

// ListByPatient returns notifications for a given patient, up to limit.
func (m *Manager) ListByPatient(_ context.Context, patientID string, limit int) ([]*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Notification
	for _, n := range m.notifications {
		if n.PatientID == patientID {
			result = append(result, n)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

// Retry re-delivers a failed notification. Returns an error if the
// notification is not in failed status.
func (m *Manager) Retry(ctx context.Context, id string) error {
	m.mu.RLock()
	n, ok := m.notifications[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("notification %q not found", id)
	}
	if n.Status != StatusFailed {
		return fmt.Errorf("notification %q is not in failed status (current: %s)", id, n.Status)
	}

	sendErr := m.deliverer.Deliver(ctx, n)

	m.mu.Lock()
	if sendErr != nil {
		n.Status = StatusFailed
		n.Error = sendErr.Error()
	} else {
		n.Status = StatusSent
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
		n.Error = ""
	}
	m.mu.Unlock()

	return sendErr
}

// Stats returns counts of notifications grouped by status.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, n := range m.notifications {
		stats[n.Status]++
	}
	return stats
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

// Handler exposes the notification delivery log over HTTP via Echo.
type Handler struct {
	manager *Manager
}

// NewHandler creates a new Handler.
func NewHandler(mgr *Manager) *Handler {
	return &Handler{manager: mgr}
}

// RegisterRoutes registers all notification routes on the given Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications/stats", h.HandleStats)
	g.GET("/notifications/:id", h.HandleGet)
	g.GET("/notifications", h.HandleList)
	g.POST("/notifications/:id/retry", h.HandleRetry)
}

// HandleGet handles GET /notifications/:id.
func (h *Handler) HandleGet(c echo.Context) error {
	id := c.Param("id")
	n, err := h.manager.Get(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, n)
}

// HandleList handles GET /notifications?patient=...
func (h *Handler) HandleList(c echo.Context) error {
	patientID := c.QueryParam("patient")
	if patientID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "patient query parameter is required"})
	}

	list, err := h.manager.ListByPatient(c.Request().Context(), patientID, 100)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, list)
}

// HandleRetry handles POST /notifications/:id/retry.
func (h *Handler) HandleRetry(c echo.Context) error {
	id := c.Param("id")
	if err := h.manager.Retry(c.Request().Context(), id); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	n, _ := h.manager.Get(c.Request().Context(), id)
	return c.JSON(http.StatusOK, n)
}

// HandleStats handles GET /notifications/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	stats := h.manager.Stats(c.Request().Context())
	return c.JSON(http.StatusOK, stats)
}
