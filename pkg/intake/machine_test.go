package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(t *testing.T, m *Machine, inputs ...string) Reply {
	t.Helper()
	var reply Reply
	for _, in := range inputs {
		reply = m.Input(in)
	}
	return reply
}

func TestMachineFullBookIntake(t *testing.T) {
	m := New(NewBookFlow(nil))

	reply := m.Start()
	assert.Equal(t, StateCollecting, m.State())
	require.Len(t, reply.Messages, 1)
	assert.Contains(t, reply.Messages[0], "title")

	reply = feed(t, m,
		"Worm", "Wildbow", "digital", "-",
		"850 000", "web serial", "-", "https://parahumans.wordpress.com",
		"no", "no",
	)
	assert.Equal(t, StateConfirming, m.State())
	require.Len(t, reply.Messages, 2)
	assert.Contains(t, reply.Messages[0], "Characters: 850000")
	assert.Contains(t, reply.Messages[1], "Save it?")

	reply = m.Input("yes")
	assert.Equal(t, OutcomeConfirmed, reply.Outcome)
	// The machine holds Confirming until the caller resets, so a failed
	// store commit can be retried with another "yes".
	assert.Equal(t, StateConfirming, m.State())

	draft := reply.Draft.(*BookDraft)
	assert.Equal(t, "Worm", draft.Title)
	require.NotNil(t, draft.CharCount)
	assert.Equal(t, 850000, *draft.CharCount)
}

func TestMachineRejectionDoesNotAdvance(t *testing.T) {
	m := New(NewBookFlow(nil))
	m.Start()
	feed(t, m, "Dune", "Frank Herbert")

	reply := m.Input("hardcover")
	require.Len(t, reply.Messages, 2)
	assert.Contains(t, reply.Messages[0], "physical")
	assert.Contains(t, reply.Messages[1], "Format?")

	draft := m.Draft().(*BookDraft)
	assert.Empty(t, draft.Format)
	assert.Equal(t, "Dune", draft.Title)

	reply = m.Input("physical")
	assert.Contains(t, reply.Messages[0], "Source?")
}

func TestMachineConfirmNoCancels(t *testing.T) {
	m := New(NewBuyFlow())
	m.Start()
	feed(t, m, "Author", "Title", "-")

	reply := m.Input("3")
	assert.Equal(t, StateConfirming, m.State())
	assert.Contains(t, reply.Messages[0], "Priority: 3")

	reply = m.Input("no")
	assert.Equal(t, OutcomeCancelled, reply.Outcome)
	assert.Equal(t, StateIdle, m.State())
	assert.Nil(t, m.Draft())
	assert.Contains(t, reply.Messages[0], "nothing was saved")
}

func TestMachineConfirmGarbageReprompts(t *testing.T) {
	m := New(NewBuyFlow())
	m.Start()
	feed(t, m, "Author", "Title", "-", "3")

	reply := m.Input("what do you mean")
	assert.Equal(t, OutcomeContinue, reply.Outcome)
	assert.Equal(t, StateConfirming, m.State())
	require.Len(t, reply.Messages, 1)
	assert.Contains(t, reply.Messages[0], "yes or no")

	// The garbage was not reprocessed as a field answer.
	draft := m.Draft().(*BuyDraft)
	assert.Equal(t, "Title", *draft.Title)
}

func TestMachineStartWithPrefilledDraft(t *testing.T) {
	m := New(NewBookFlow(nil))
	reply := m.StartWith(&BookDraft{Title: "Foo", Authors: "Bar", FromBuyID: 12})

	require.Len(t, reply.Messages, 1)
	assert.Contains(t, reply.Messages[0], "Format?")

	draft := m.Draft().(*BookDraft)
	assert.Equal(t, "Foo", draft.Title)
	assert.Equal(t, uint(12), draft.FromBuyID)
}

func TestMachineIdleInput(t *testing.T) {
	m := New(NewBuyFlow())
	reply := m.Input("hello")
	assert.Equal(t, OutcomeContinue, reply.Outcome)
	assert.Contains(t, reply.Messages[0], "Nothing is in progress")
}
