// Package prompt builds the message sequence sent to the completion service.
package prompt

import (
	"strings"
	"unicode/utf8"

	"github.com/aiox-platform/mila/internal/conversation"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// minEntries is the floor the size-bounding pass never trims below.
const minEntries = 3

// Message is one role/content pair in the OpenAI chat format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func validRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Compose returns [system persona] + exemplars + history + [user text].
// Blank entries and unknown roles are dropped. While the total rune count exceeds
// budget and more than three entries remain, the entry right after the persona is
// removed. budget <= 0 disables trimming. Inputs are not modified.
func Compose(persona string, exemplars, history []Message, text string, budget int) []Message {
	msgs := make([]Message, 0, len(exemplars)+len(history)+2)
	msgs = appendValid(msgs, Message{Role: RoleSystem, Content: persona})
	hasPersona := len(msgs) == 1

	for _, m := range exemplars {
		msgs = appendValid(msgs, m)
	}
	for _, m := range history {
		msgs = appendValid(msgs, m)
	}
	msgs = appendValid(msgs, Message{Role: RoleUser, Content: text})

	if budget <= 0 {
		return msgs
	}

	first := 0
	if hasPersona {
		first = 1
	}
	total := totalRunes(msgs)
	for total > budget && len(msgs) > minEntries {
		total -= utf8.RuneCountInString(msgs[first].Content)
		msgs = append(msgs[:first], msgs[first+1:]...)
	}
	return msgs
}

// Minimal keeps only the first system entry and the last user entry of msgs.
func Minimal(msgs []Message) []Message {
	var out []Message
	for _, m := range msgs {
		if m.Role == RoleSystem {
			out = appendValid(out, m)
			break
		}
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser && strings.TrimSpace(msgs[i].Content) != "" {
			return append(out, msgs[i])
		}
	}
	return out
}

// FromTurns converts stored turns into messages.
func FromTurns(turns []conversation.Turn) []Message {
	msgs := make([]Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, Message{Role: string(t.Role), Content: t.Content})
	}
	return msgs
}

func appendValid(msgs []Message, m Message) []Message {
	if !validRole(m.Role) || strings.TrimSpace(m.Content) == "" {
		return msgs
	}
	return append(msgs, m)
}

func totalRunes(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		n += utf8.RuneCountInString(m.Content)
	}
	return n
}
