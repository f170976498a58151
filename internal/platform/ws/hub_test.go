package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// Hub tests
// ---------------------------------------------------------------------------

func TestHub_RegisterClient(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:     "client-1",
		Topics: []string{TopicAlerts},
		Send:   make(chan []byte, 256),
		hub:    hub,
	}

	hub.Register(client)

	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount(TopicAlerts) != 1 {
		t.Fatalf("expected 1 client on alerts, got %d", hub.TopicCount(TopicAlerts))
	}
}

func TestHub_UnregisterClient(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:     "client-2",
		Topics: []string{PatientTopic("p-456")},
		Send:   make(chan []byte, 256),
		hub:    hub,
	}

	hub.Register(client)
	hub.Unregister(client)

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
	if hub.TopicCount(PatientTopic("p-456")) != 0 {
		t.Fatalf("expected 0 clients on patient topic, got %d", hub.TopicCount(PatientTopic("p-456")))
	}
}

func TestHub_BroadcastToTopic(t *testing.T) {
	hub := NewHub()

	subscriber := &Client{
		ID:     "sub-1",
		Topics: []string{PatientTopic("p-123")},
		Send:   make(chan []byte, 256),
		hub:    hub,
	}
	nonSubscriber := &Client{
		ID:     "non-sub-1",
		Topics: []string{PatientTopic("p-999")},
		Send:   make(chan []byte, 256),
		hub:    hub,
	}

	hub.Register(subscriber)
	hub.Register(nonSubscriber)

	event := Event{
		Type:      EventAlertRaised,
		Topic:     PatientTopic("p-123"),
		PatientID: "p-123",
		AlertID:   "alert-1",
		Timestamp: time.Now(),
	}

	hub.Broadcast(PatientTopic("p-123"), event)

	select {
	case msg := <-subscriber.Send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		if received.Type != EventAlertRaised {
			t.Fatalf("expected event type %s, got %s", EventAlertRaised, received.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	select {
	case <-nonSubscriber.Send:
		t.Fatal("non-subscriber should not have received event")
	default:
		// expected
	}
}

func TestHub_BroadcastAll(t *testing.T) {
	hub := NewHub()

	c1 := &Client{
		ID:     "all-1",
		Topics: []string{PatientTopic("p-1")},
		Send:   make(chan []byte, 256),
		hub:    hub,
	}
	c2 := &Client{
		ID:     "all-2",
		Topics: []string{PatientTopic("p-2")},
		Send:   make(chan []byte, 256),
		hub:    hub,
	}

	hub.Register(c1)
	hub.Register(c2)

	event := Event{
		Type:      "system.maintenance",
		Topic:     "system",
		Timestamp: time.Now(),
	}

	hub.BroadcastAll(event)

	for _, c := range []*Client{c1, c2} {
		select {
		case msg := <-c.Send:
			var received Event
			if err := json.Unmarshal(msg, &received); err != nil {
				t.Fatalf("failed to unmarshal: %v", err)
			}
			if received.Type != "system.maintenance" {
				t.Fatalf("expected system.maintenance, got %s", received.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %s did not receive broadcast", c.ID)
		}
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub()

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0, got %d", hub.ClientCount())
	}

	clients := make([]*Client, 5)
	for i := range clients {
		clients[i] = &Client{
			ID:     "count-" + string(rune('a'+i)),
			Topics: []string{TopicAlerts},
			Send:   make(chan []byte, 256),
			hub:    hub,
		}
		hub.Register(clients[i])
	}

	if hub.ClientCount() != 5 {
		t.Fatalf("expected 5, got %d", hub.ClientCount())
	}

	hub.Unregister(clients[0])
	hub.Unregister(clients[1])

	if hub.ClientCount() != 3 {
		t.Fatalf("expected 3, got %d", hub.ClientCount())
	}
}

func TestHub_TopicCount(t *testing.T) {
	hub := NewHub()

	c1 := &Client{
		ID:     "tc-1",
		Topics: []string{TopicAlerts},
		Send:   make(chan []byte, 256),
		hub:    hub,
	}
	c2 := &Client{
		ID:     "tc-2",
		Topics: []string{TopicAlerts},
		Send:   make(chan []byte, 256),
		hub:    hub,
	}
	c3 := &Client{
		ID:     "tc-3",
		Topics: []string{PatientTopic("p-5")},
		Send:   make(chan []byte, 256),
		hub:    hub,
	}

	hub.Register(c1)
	hub.Register(c2)
	hub.Register(c3)

	if hub.TopicCount(TopicAlerts) != 2 {
		t.Fatalf("expected 2 on alerts, got %d", hub.TopicCount(TopicAlerts))
	}
	if hub.TopicCount(PatientTopic("p-5")) != 1 {
		t.Fatalf("expected 1 on patient topic, got %d", hub.TopicCount(PatientTopic("p-5")))
	}
	if hub.TopicCount("nonexistent") != 0 {
		t.Fatalf("expected 0 on nonexistent, got %d", hub.TopicCount("nonexistent"))
	}
}

func TestHub_UnregisterClosesChannel(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:     "close-1",
		Topics: []string{TopicAlerts},
		Send:   make(chan []byte, 256),
		hub:    hub,
	}

	hub.Register(client)
	hub.Unregister(client)

	// Reading from a closed channel returns zero value immediately
	_, ok := <-client.Send
	if ok {
		t.Fatal("expected Send channel to be closed after unregister")
	}
}

func TestHub_BroadcastToEmptyTopic(t *testing.T) {
	hub := NewHub()

	event := Event{
		Type:      EventAlertDismissed,
		Topic:     PatientTopic("nobody"),
		PatientID: "nobody",
		Timestamp: time.Now(),
	}

	// Should not panic
	hub.Broadcast(PatientTopic("nobody"), event)
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub()
	const n = 100

	var wg sync.WaitGroup
	wg.Add(n * 2)

	clients := make([]*Client, n)
	for i := 0; i < n; i++ {
		clients[i] = &Client{
			ID:     "concurrent-" + string(rune(i)),
			Topics: []string{TopicAlerts},
			Send:   make(chan []byte, 256),
			hub:    hub,
		}
	}

	// Register all concurrently
	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			hub.Register(clients[idx])
		}(i)
	}

	// Unregister all concurrently
	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			hub.Unregister(clients[idx])
		}(i)
	}

	wg.Wait()

	// Final count should be consistent (all registered then unregistered, or some mix)
	count := hub.ClientCount()
	if count < 0 {
		t.Fatalf("client count should not be negative, got %d", count)
	}
}

// ---------------------------------------------------------------------------
// PublishAlert tests
// ---------------------------------------------------------------------------

func TestHub_PublishAlert_FansOutToBothTopics(t *testing.T) {
	hub := NewHub()

	globalWatcher := &Client{
		ID:     "global-1",
		Topics: []string{TopicAlerts},
		Send:   make(chan []byte, 256),
		hub:    hub,
	}
	patientWatcher := &Client{
		ID:     "patient-1",
		Topics: []string{PatientTopic("p-200")},
		Send:   make(chan []byte, 256),
		hub:    hub,
	}
	otherWatcher := &Client{
		ID:     "other-1",
		Topics: []string{PatientTopic("p-999")},
		Send:   make(chan []byte, 256),
		hub:    hub,
	}

	hub.Register(globalWatcher)
	hub.Register(patientWatcher)
	hub.Register(otherWatcher)

	hub.PublishAlert(EventAlertRaised, "p-200", "alert-42", json.RawMessage(`{"severity":"CRITICAL"}`))

	for _, c := range []*Client{globalWatcher, patientWatcher} {
		select {
		case msg := <-c.Send:
			var received Event
			if err := json.Unmarshal(msg, &received); err != nil {
				t.Fatalf("client %s: failed to unmarshal: %v", c.ID, err)
			}
			if received.AlertID != "alert-42" {
				t.Fatalf("client %s: expected alertId=alert-42, got %s", c.ID, received.AlertID)
			}
			if received.PatientID != "p-200" {
				t.Fatalf("client %s: expected patientId=p-200, got %s", c.ID, received.PatientID)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %s did not receive the alert event", c.ID)
		}
	}

	select {
	case <-otherWatcher.Send:
		t.Fatal("watcher of another patient should not have received the event")
	default:
		// expected
	}
}

func TestHub_PublishAlert_TopicsDiffer(t *testing.T) {
	hub := NewHub()

	globalWatcher := &Client{
		ID:     "global-2",
		Topics: []string{TopicAlerts},
		Send:   make(chan []byte, 256),
		hub:    hub,
	}
	hub.Register(globalWatcher)

	hub.PublishAlert(EventAlertEscalated, "p-77", "alert-7", nil)

	select {
	case msg := <-globalWatcher.Send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if received.Topic != TopicAlerts {
			t.Fatalf("expected topic=alerts on global copy, got %s", received.Topic)
		}
		if received.Type != EventAlertEscalated {
			t.Fatalf("expected type=%s, got %s", EventAlertEscalated, received.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("global watcher did not receive the event")
	}
}

func TestPatientTopic(t *testing.T) {
	if got := PatientTopic("abc"); got != "alerts:abc" {
		t.Fatalf("expected alerts:abc, got %s", got)
	}
}

// ---------------------------------------------------------------------------
// Publisher tests
// ---------------------------------------------------------------------------

func TestHub_PublishEvent(t *testing.T) {
	hub := NewHub()

	client := &Client{
		ID:     "pub-1",
		Topics: []string{PatientTopic("p-100")},
		Send:   make(chan []byte, 256),
		hub:    hub,
	}
	hub.Register(client)

	var publisher EventPublisher = hub

	event := Event{
		Type:      EventAlertRaised,
		Topic:     PatientTopic("p-100"),
		PatientID: "p-100",
		AlertID:   "alert-100",
		Timestamp: time.Now(),
	}

	if err := publisher.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-client.Send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if received.AlertID != "alert-100" {
			t.Fatalf("expected alertId alert-100, got %s", received.AlertID)
		}
	case <-time.After(time.Second):
		t.Fatal("did not receive published event")
	}
}

// ---------------------------------------------------------------------------
// Subscription management tests
// ---------------------------------------------------------------------------

func TestHub_SubscribeAddsTopics(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:     "dynamic-sub-1",
		Topics: []string{},
		Send:   make(chan []byte, 256),
		hub:    hub,
	}
	hub.Register(client)

	hub.Subscribe(client, []string{TopicAlerts, PatientTopic("p-new")})

	if hub.TopicCount(TopicAlerts) != 1 {
		t.Fatalf("expected 1 on alerts, got %d", hub.TopicCount(TopicAlerts))
	}
	if hub.TopicCount(PatientTopic("p-new")) != 1 {
		t.Fatalf("expected 1 on patient topic, got %d", hub.TopicCount(PatientTopic("p-new")))
	}
	if len(client.Topics) != 2 {
		t.Fatalf("expected 2 topics on client, got %d", len(client.Topics))
	}
}

func TestHub_UnsubscribeRemovesTopics(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:     "dynamic-unsub-1",
		Topics: []string{TopicAlerts, PatientTopic("p-1"), PatientTopic("p-2")},
		Send:   make(chan []byte, 256),
		hub:    hub,
	}
	hub.Register(client)

	hub.Unsubscribe(client, []string{TopicAlerts, PatientTopic("p-2")})

	if hub.TopicCount(TopicAlerts) != 0 {
		t.Fatalf("expected 0 on alerts, got %d", hub.TopicCount(TopicAlerts))
	}
	if hub.TopicCount(PatientTopic("p-1")) != 1 {
		t.Fatalf("expected 1 on p-1 topic, got %d", hub.TopicCount(PatientTopic("p-1")))
	}
	if hub.TopicCount(PatientTopic("p-2")) != 0 {
		t.Fatalf("expected 0 on p-2 topic, got %d", hub.TopicCount(PatientTopic("p-2")))
	}
	if len(client.Topics) != 1 {
		t.Fatalf("expected 1 topic remaining, got %d", len(client.Topics))
	}
}

func TestClientMessage_ProcessSubscribe(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:     "process-1",
		Topics: []string{},
		Send:   make(chan []byte, 256),
		hub:    hub,
	}
	hub.Register(client)

	raw := `{"action":"subscribe","topics":["alerts","alerts:p-123"]}`
	var msg ClientMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	hub.ProcessMessage(client, msg)

	if hub.TopicCount(TopicAlerts) != 1 {
		t.Fatalf("expected 1 subscriber on alerts, got %d", hub.TopicCount(TopicAlerts))
	}
	if hub.TopicCount("alerts:p-123") != 1 {
		t.Fatalf("expected 1 subscriber on alerts:p-123, got %d", hub.TopicCount("alerts:p-123"))
	}
}

func TestClientMessage_ProcessUnsubscribe(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:     "process-2",
		Topics: []string{TopicAlerts, PatientTopic("p-456")},
		Send:   make(chan []byte, 256),
		hub:    hub,
	}
	hub.Register(client)

	raw := `{"action":"unsubscribe","topics":["alerts"]}`
	var msg ClientMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	hub.ProcessMessage(client, msg)

	if hub.TopicCount(TopicAlerts) != 0 {
		t.Fatalf("expected 0 on alerts, got %d", hub.TopicCount(TopicAlerts))
	}
	if hub.TopicCount(PatientTopic("p-456")) != 1 {
		t.Fatalf("expected 1 on patient topic, got %d", hub.TopicCount(PatientTopic("p-456")))
	}
}

// ---------------------------------------------------------------------------
// Handler tests
// ---------------------------------------------------------------------------

func TestWebSocketHandler_RegisterRoutes(t *testing.T) {
	hub := NewHub()
	handler := NewWebSocketHandler(hub)

	e := echo.New()
	g := e.Group("")
	handler.RegisterRoutes(g)

	routes := e.Routes()
	found := false
	for _, r := range routes {
		if r.Path == "/ws" && r.Method == http.MethodGet {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("expected GET /ws route to be registered")
	}
}

func TestWebSocketHandler_HandleConnectRequiresWebSocket(t *testing.T) {
	hub := NewHub()
	handler := NewWebSocketHandler(hub)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := handler.HandleConnect(c)

	// gorilla/websocket upgrader will reject non-WS requests
	if err == nil && rec.Code == http.StatusSwitchingProtocols {
		t.Fatal("expected upgrade to fail for non-websocket request")
	}
}

func TestWebSocketHandler_FullUpgradeWithDialer(t *testing.T) {
	hub := NewHub()
	handler := NewWebSocketHandler(hub)

	e := echo.New()
	g := e.Group("")
	handler.RegisterRoutes(g)

	server := httptest.NewServer(e)
	defer server.Close()

	// Convert http URL to ws URL
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	dialer := gorillawebsocket.Dialer{}
	conn, resp, err := dialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	// Client should have been registered in the hub
	// Give the goroutine a moment to register
	time.Sleep(50 * time.Millisecond)
	if hub.ClientCount() < 1 {
		t.Fatal("expected at least 1 client registered after connect")
	}

	// Send a subscribe message
	subMsg := ClientMessage{
		Action: "subscribe",
		Topics: []string{PatientTopic("ws-test")},
	}
	if err := conn.WriteJSON(subMsg); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}

	// Give the server time to process the subscribe
	time.Sleep(50 * time.Millisecond)

	if hub.TopicCount(PatientTopic("ws-test")) != 1 {
		t.Fatalf("expected 1 subscriber on patient topic, got %d", hub.TopicCount(PatientTopic("ws-test")))
	}

	// Now publish an alert and verify we receive it
	hub.PublishAlert(EventAlertRaised, "ws-test", "alert-ws", nil)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.Type != EventAlertRaised {
		t.Fatalf("expected %s, got %s", EventAlertRaised, received.Type)
	}
	if received.AlertID != "alert-ws" {
		t.Fatalf("expected alertId alert-ws, got %s", received.AlertID)
	}
}
