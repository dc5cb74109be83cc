package testing

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/imamik/eksforge/internal/provisioning"
)

// RecordingObserver keeps every message and event. Resources of a
// deployment run concurrently, so it is guarded by a mutex shared with the
// observers derived through WithFields.
type RecordingObserver struct {
	mu       *sync.Mutex
	events   *[]provisioning.Event
	messages *[]string
	fields   map[string]string
}

// NewRecordingObserver returns an empty recorder.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{
		mu:       &sync.Mutex{},
		events:   &[]provisioning.Event{},
		messages: &[]string{},
	}
}

func (o *RecordingObserver) Printf(format string, v ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	*o.messages = append(*o.messages, fmt.Sprintf(format, v...))
}

func (o *RecordingObserver) Event(event provisioning.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fields := maps.Clone(o.fields)
	if fields == nil {
		fields = make(map[string]string)
	}
	maps.Copy(fields, event.Fields)
	event.Fields = fields
	*o.events = append(*o.events, event)
}

func (o *RecordingObserver) Progress(phase string, current, total int) {
	o.Event(provisioning.Event{
		Type:    provisioning.EventProgress,
		Phase:   phase,
		Message: "progress",
		Fields: map[string]string{
			"current": fmt.Sprint(current),
			"total":   fmt.Sprint(total),
		},
	})
}

func (o *RecordingObserver) WithFields(fields map[string]string) provisioning.Observer {
	merged := maps.Clone(o.fields)
	if merged == nil {
		merged = make(map[string]string)
	}
	maps.Copy(merged, fields)
	return &RecordingObserver{mu: o.mu, events: o.events, messages: o.messages, fields: merged}
}

// Events returns a copy of the recorded events.
func (o *RecordingObserver) Events() []provisioning.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(*o.events)
}

// Messages returns a copy of the recorded messages.
func (o *RecordingObserver) Messages() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(*o.messages)
}

// EventsOf returns the recorded events of one type.
func (o *RecordingObserver) EventsOf(t provisioning.EventType) []provisioning.Event {
	var out []provisioning.Event
	for _, e := range o.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// ResourcesWith returns the resource IDs that emitted an event of type t.
func (o *RecordingObserver) ResourcesWith(t provisioning.EventType) []string {
	var out []string
	for _, e := range o.EventsOf(t) {
		if e.Resource != "" && !slices.Contains(out, e.Resource) {
			out = append(out, e.Resource)
		}
	}
	slices.Sort(out)
	return out
}

var _ provisioning.Observer = (*RecordingObserver)(nil)
