package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/mila/internal/conversation"
)

func TestCompose_Order(t *testing.T) {
	exemplars := []Message{
		{Role: RoleUser, Content: "ex-u"},
		{Role: RoleAssistant, Content: "ex-a"},
	}
	history := []Message{
		{Role: RoleUser, Content: "h1"},
		{Role: RoleAssistant, Content: "h2"},
	}

	got := Compose("persona", exemplars, history, "now", 0)

	want := []Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "ex-u"},
		{Role: RoleAssistant, Content: "ex-a"},
		{Role: RoleUser, Content: "h1"},
		{Role: RoleAssistant, Content: "h2"},
		{Role: RoleUser, Content: "now"},
	}
	assert.Equal(t, want, got)
}

func TestCompose_DropsInvalidEntries(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "  "},
		{Role: "tool", Content: "tool output"},
		{Role: RoleAssistant, Content: "kept"},
		{Role: RoleUser, Content: ""},
	}

	got := Compose("persona", nil, history, "hi", 0)
	require.Len(t, got, 3)
	assert.Equal(t, "kept", got[1].Content)
}

func TestCompose_EmptyPersona(t *testing.T) {
	got := Compose("", nil, []Message{{Role: RoleUser, Content: "h"}}, "hi", 0)
	require.Len(t, got, 2)
	assert.Equal(t, RoleUser, got[0].Role)
}

func TestCompose_TrimsEarliestAfterPersona(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: strings.Repeat("a", 50)},
		{Role: RoleAssistant, Content: strings.Repeat("b", 50)},
		{Role: RoleUser, Content: strings.Repeat("c", 50)},
		{Role: RoleAssistant, Content: strings.Repeat("d", 50)},
	}

	got := Compose("sys", nil, history, "new", 120)

	require.Len(t, got, 4)
	assert.Equal(t, RoleSystem, got[0].Role)
	assert.Equal(t, strings.Repeat("c", 50), got[1].Content)
	assert.Equal(t, strings.Repeat("d", 50), got[2].Content)
	assert.Equal(t, "new", got[3].Content)
	assert.LessOrEqual(t, totalRunes(got), 120)
}

func TestCompose_TrimsExemplarsBeforeHistory(t *testing.T) {
	exemplars := []Message{
		{Role: RoleUser, Content: strings.Repeat("e", 40)},
		{Role: RoleAssistant, Content: strings.Repeat("f", 40)},
	}
	history := []Message{{Role: RoleUser, Content: "recent"}}

	got := Compose("sys", exemplars, history, "new", 15)

	require.Len(t, got, 3)
	assert.Equal(t, "recent", got[1].Content)
}

func TestCompose_StopsAtThreeEntries(t *testing.T) {
	big := strings.Repeat("x", 1000)
	history := []Message{
		{Role: RoleUser, Content: big},
		{Role: RoleAssistant, Content: big},
	}

	got := Compose(big, nil, history, big, 10)

	require.Len(t, got, 3)
	assert.Equal(t, RoleSystem, got[0].Role)
	assert.Equal(t, RoleAssistant, got[1].Role)
	assert.Equal(t, RoleUser, got[2].Role)
}

func TestCompose_CountsRunesNotBytes(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "привет"},
		{Role: RoleAssistant, Content: "пока"},
	}

	got := Compose("мила", nil, history, "да", 16)
	assert.Len(t, got, 4)
}

func TestCompose_DoesNotMutateInputs(t *testing.T) {
	exemplars := []Message{{Role: RoleUser, Content: strings.Repeat("e", 40)}}
	history := []Message{
		{Role: RoleUser, Content: strings.Repeat("h", 40)},
		{Role: RoleAssistant, Content: strings.Repeat("i", 40)},
	}
	exCopy := append([]Message(nil), exemplars...)
	histCopy := append([]Message(nil), history...)

	first := Compose("sys", exemplars, history, "new", 50)
	second := Compose("sys", exemplars, history, "new", 50)

	assert.Equal(t, exCopy, exemplars)
	assert.Equal(t, histCopy, history)
	assert.Equal(t, first, second)
}

func TestMinimal(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "old"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "last"},
	}

	got := Minimal(msgs)
	assert.Equal(t, []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "last"},
	}, got)
}

func TestFromTurns(t *testing.T) {
	turns := []conversation.Turn{
		{Seq: 1, Role: conversation.RoleUser, Content: "q", CreatedAt: time.Now()},
		{Seq: 2, Role: conversation.RoleAssistant, Content: "a", CreatedAt: time.Now()},
	}

	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, Content: "a"},
	}, FromTurns(turns))
}
