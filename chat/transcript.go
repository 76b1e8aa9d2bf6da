package chat

import (
	"sync"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

const (
	DefaultWelcome = "Hi there! Welcome to the studio. I'm your studio concierge. How are you doing today?"
	FailureMessage = "I'm having trouble connecting right now. Please try again."
)

type Message struct {
	ID   string
	Role Role
	Text string
	Time time.Time
}

// Transcript is the ordered list of chat messages shown to the visitor.
type Transcript struct {
	mu       sync.Mutex
	messages []Message
	onUpdate func(Message)
	now      func() time.Time
}

// NewTranscript starts a transcript with a model welcome message. An empty
// welcome starts it empty.
func NewTranscript(welcome string) *Transcript {
	t := &Transcript{now: time.Now}
	if welcome != "" {
		t.messages = append(t.messages, Message{ID: "welcome", Role: RoleModel, Text: welcome, Time: t.now()})
	}
	return t
}

// OnUpdate is called for every appended or changed message.
func (t *Transcript) OnUpdate(h func(Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onUpdate = h
}

func (t *Transcript) Append(role Role, text string) Message {
	id, _ := nanoid.New()
	msg := Message{ID: id, Role: role, Text: text, Time: t.now()}

	t.mu.Lock()
	t.messages = append(t.messages, msg)
	h := t.onUpdate
	t.mu.Unlock()

	if h != nil {
		h(msg)
	}
	return msg
}

// Update replaces the text of a message in place.
func (t *Transcript) Update(id, text string) (Message, bool) {
	t.mu.Lock()
	var (
		msg   Message
		found bool
	)
	for i := range t.messages {
		if t.messages[i].ID == id {
			t.messages[i].Text = text
			msg, found = t.messages[i], true
			break
		}
	}
	h := t.onUpdate
	t.mu.Unlock()

	if found && h != nil {
		h(msg)
	}
	return msg, found
}

func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.messages...)
}

func (t *Transcript) Last() (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}
