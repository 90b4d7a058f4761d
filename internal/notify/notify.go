// Package notify delivers account lifecycle emails. Handlers publish events;
// the Dispatcher owns rendering, delivery, retries and failure isolation.
package notify

import (
	"context"
	"fmt"
)

type EventKind string

const (
	EventWelcome      EventKind = "welcome"
	EventCancellation EventKind = "cancellation"
)

// Event is an account lifecycle fact worth telling the user about.
type Event struct {
	Kind  EventKind
	Email string
	Name  string
}

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(Event)
}

// Message is a rendered plain-text email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
}

// Mailer sends a single message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Render turns an event into the email sent for it.
func Render(e Event) (Message, error) {
	msg := Message{To: e.Email, ToName: e.Name}
	switch e.Kind {
	case EventWelcome:
		msg.Subject = "Thanks for joining in!"
		msg.Text = fmt.Sprintf("Welcome to the Task Manager App, %s! Let me know how you get along with the app.", e.Name)
	case EventCancellation:
		msg.Subject = "We're sorry to see you go :("
		msg.Text = fmt.Sprintf("Goodbye, %s! Is there anything we could've done to have kept you on board? Hope to see you back soon!", e.Name)
	default:
		return Message{}, fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return msg, nil
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}
