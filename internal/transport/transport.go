// Package transport defines what the chat core needs from a messaging platform
// and what a platform adapter calls back into.
package transport

import "context"

// Button is either a callback action or an external link.
type Button struct {
	Label  string
	Action string
	URL    string
}

// Menu is an inline keyboard attached to a message.
type Menu struct {
	Rows [][]Button
}

// Sender delivers messages to a user.
type Sender interface {
	Send(ctx context.Context, userID int64, text string, menu *Menu) error
	Typing(ctx context.Context, userID int64) error
}

// Handler receives inbound user input from a transport.
type Handler interface {
	// AdmitMessage is called in arrival order and must not block. The returned
	// func does the work and may run concurrently with later admissions.
	AdmitMessage(userID int64, text string) func(ctx context.Context)
	HandleCommand(ctx context.Context, userID int64, name, args string)
	// HandleAction returns a short toast shown by the transport, or "".
	HandleAction(ctx context.Context, userID int64, action string) string
}
