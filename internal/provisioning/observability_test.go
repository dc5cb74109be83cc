package provisioning

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockObserver is a test implementation of Observer that records events.
// Nodes of a deployment run concurrently, so it is guarded by a mutex.
type MockObserver struct {
	mu       *sync.Mutex
	events   *[]Event
	messages *[]string
	fields   map[string]string
}

func NewMockObserver() *MockObserver {
	return &MockObserver{
		mu:       &sync.Mutex{},
		events:   &[]Event{},
		messages: &[]string{},
		fields:   make(map[string]string),
	}
}

func (m *MockObserver) Printf(format string, v ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.messages = append(*m.messages, fmt.Sprintf(format, v...))
}

func (m *MockObserver) Event(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.events = append(*m.events, withContext(event, m.fields))
}

func (m *MockObserver) Progress(phase string, current, total int) {
	m.Event(Event{
		Type:    EventProgress,
		Phase:   phase,
		Message: "progress",
		Fields: map[string]string{
			"current": fmt.Sprint(current),
			"total":   fmt.Sprint(total),
		},
	})
}

// WithFields shares the event log with the parent so tests see every event.
func (m *MockObserver) WithFields(fields map[string]string) Observer {
	return &MockObserver{mu: m.mu, events: m.events, messages: m.messages, fields: mergeFields(m.fields, fields)}
}

func (m *MockObserver) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), *m.events...)
}

func (m *MockObserver) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), *m.messages...)
}

func (m *MockObserver) EventsOf(t EventType) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func TestConsoleObserver_Printf(t *testing.T) {
	observer := NewConsoleObserver()

	// Should not panic
	observer.Printf("test message: %s", "value")
}

func TestConsoleObserver_Event(t *testing.T) {
	observer := NewConsoleObserver()

	// Should not panic
	observer.Event(Event{
		Type:     EventResourceCreated,
		Phase:    "network",
		Resource: "network/vpc",
		Message:  "vpc created",
		Fields:   map[string]string{"id": "vpc-123"},
	})
	observer.Progress("deploy", 0, 0)
	observer.Progress("deploy", 5, 10)
}

func TestFormatEvent(t *testing.T) {
	t.Parallel()
	msg := formatEvent(Event{
		Type:     EventResourceReady,
		Phase:    "addon",
		Resource: "addon/vpc-cni",
		Message:  "ready",
		Fields:   map[string]string{"b": "2", "a": "1"},
	})
	assert.Equal(t, "resource.ready [addon] resource=addon/vpc-cni ready (a=1, b=2)", msg)
}

func TestConsoleObserver_WithFields(t *testing.T) {
	t.Parallel()
	observer := NewConsoleObserver()

	child := observer.WithFields(map[string]string{"cluster": "demo"})
	grandchild := child.WithFields(map[string]string{"region": "eu-west-1"}).(*ConsoleObserver)

	assert.Equal(t, map[string]string{"cluster": "demo", "region": "eu-west-1"}, grandchild.contextFields)
	assert.Empty(t, observer.contextFields, "parent must not be modified")
}

func TestWithContext_EventFieldsWin(t *testing.T) {
	t.Parallel()
	e := withContext(Event{Fields: map[string]string{"id": "event"}}, map[string]string{"id": "ctx", "cluster": "demo"})
	assert.Equal(t, "event", e.Fields["id"])
	assert.Equal(t, "demo", e.Fields["cluster"])
	assert.False(t, e.Timestamp.IsZero())
}

func TestLogrObserver(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var lines []string
	logger := funcr.New(func(prefix, args string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, prefix+" "+args)
	}, funcr.Options{Verbosity: 1})

	observer := NewLogrObserver(logger).WithFields(map[string]string{"cluster": "demo"})
	observer.Printf("starting %d resources", 3)
	observer.Event(Event{Type: EventResourceReady, Phase: "network", Resource: "network/vpc", Message: "ready"})
	observer.Event(Event{Type: EventResourceFailed, Phase: "nodepool", Resource: "nodepool/gpu", Message: "failed"})
	observer.Progress("deploy", 1, 2)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "starting 3 resources")
	assert.Contains(t, lines[1], `"event"="resource.ready"`)
	assert.Contains(t, lines[1], `"cluster"="demo"`)
	assert.Contains(t, lines[2], `"error"=null`)
	assert.Contains(t, lines[2], `"resource"="nodepool/gpu"`)
	assert.Contains(t, lines[3], `"current"=1`)
}

func TestLogHelpers(t *testing.T) {
	t.Parallel()
	observer := NewMockObserver()

	LogPhaseStart(observer, "validation")
	LogPhaseComplete(observer, "validation", time.Second)
	LogPhaseFailed(observer, "account", assert.AnError)
	LogResourceCreating(observer, "network", "vpc", "vpc")
	LogResourceCreated(observer, "network", "vpc", "vpc", "vpc-123")
	LogResourceExists(observer, "network", "vpc", "vpc", "vpc-123")
	LogResourceUpdated(observer, "addon", "addon", "coredns")
	LogResourceWaiting(observer, "chart", "chart/lb", 15*time.Minute)

	events := observer.Events()
	require.Len(t, events, 8)
	assert.Equal(t, EventPhaseStarted, events[0].Type)
	assert.Equal(t, "vpc-123", events[4].Fields["id"])
	assert.Equal(t, EventResourceUpdated, events[6].Type)
	assert.True(t, strings.Contains(events[7].Message, "15m0s"))
}

func TestObserver_ImplementsLogger(t *testing.T) {
	var logger Logger
	var observer Observer = NewConsoleObserver()

	// Observer should be assignable to Logger (implements interface)
	logger = observer
	assert.NotNil(t, logger)
}
