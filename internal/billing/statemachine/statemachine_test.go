package statemachine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenhq/lumen/internal/shared"
)

func TestNextFollowsTable(t *testing.T) {
	m := MustNew("quote",
		[]State{"draft", "sent", "accepted"},
		[]Transition{
			{From: "draft", Event: "send", To: "sent"},
			{From: "sent", Event: "accept", To: "accepted"},
		},
	)

	next, err := m.Next("draft", "send")
	require.NoError(t, err)
	require.Equal(t, State("sent"), next)
	require.True(t, m.Can("sent", "accept"))
	require.False(t, m.Can("accepted", "send"))
}

func TestNextRejectsIllegalTransition(t *testing.T) {
	m := MustNew("quote",
		[]State{"draft", "sent"},
		[]Transition{{From: "draft", Event: "send", To: "sent"}},
	)

	_, err := m.Next("sent", "send")
	var transitionErr *shared.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, "quote", transitionErr.Entity)
	require.Equal(t, "sent", transitionErr.State)
}

func TestNewRejectsBadTables(t *testing.T) {
	_, err := New("quote", []State{"draft"}, []Transition{{From: "draft", Event: "send", To: "sent"}})
	require.Error(t, err)

	_, err = New("quote", []State{"draft", "sent"}, []Transition{
		{From: "draft", Event: "send", To: "sent"},
		{From: "draft", Event: "send", To: "sent"},
	})
	require.Error(t, err)
}
