package service

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoom(t *testing.T, r *RoomRegistry) *Room {
	t.Helper()
	room, err := r.Create("DSA",
		WaitingEntry{Username: "alice", ConnectionID: "conn-a", Rating: 1000},
		WaitingEntry{Username: "bob", ConnectionID: "conn-b", Rating: 1040})
	require.NoError(t, err)
	return room
}

func TestNewRoomID(t *testing.T) {
	pattern := regexp.MustCompile(`^alice_bob_[1-9]\d{5}$`)
	seen := make(map[string]bool)

	for i := 0; i < 50; i++ {
		id := NewRoomID("alice", "bob")
		assert.Regexp(t, pattern, id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 1, "repeated matches of the same pair get distinct ids")
}

func TestRoomRegistry_Create(t *testing.T) {
	r := NewRoomRegistry()
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	r.now = func() time.Time { return created }

	room := newTestRoom(t, r)

	assert.Equal(t, RoomForming, room.State)
	assert.Equal(t, "DSA", room.Topic)
	assert.Equal(t, created, room.CreatedAt)
	assert.Equal(t, []string{"alice", "bob"}, room.Users())
	assert.False(t, room.QuestionReady)
	require.Len(t, room.Participants, 2)

	for _, p := range room.Participants {
		assert.Equal(t, PlaceholderCode, p.Code)
		assert.False(t, p.HasSubmitted)
	}
	assert.Equal(t, 1040, room.Participant("bob").RatingSnapshot)
	assert.Equal(t, "bob", room.Opponent("alice").Username)
	assert.Nil(t, room.Opponent("mallory"))

	got, ok := r.Get(room.ID)
	require.True(t, ok)
	assert.Same(t, room, got)
}

func TestRoomRegistry_CreateDuplicateID(t *testing.T) {
	r := NewRoomRegistry()
	r.newID = func(a, b string) string { return a + "_" + b + "_123456" }

	newTestRoom(t, r)
	_, err := r.Create("DSA", WaitingEntry{Username: "alice"}, WaitingEntry{Username: "bob"})

	assert.True(t, errors.Is(err, ErrRoomExists))
	assert.Equal(t, 1, r.Len())
}

func TestRoomRegistry_UpdateCode(t *testing.T) {
	r := NewRoomRegistry()
	room := newTestRoom(t, r)

	assert.True(t, r.UpdateCode(room.ID, "alice", "x := 1"))
	assert.Equal(t, "x := 1", room.Participant("alice").Code)
	assert.Equal(t, PlaceholderCode, room.Participant("bob").Code)

	assert.False(t, r.UpdateCode(room.ID, "mallory", "x"))
	assert.False(t, r.UpdateCode("missing", "alice", "x"))
}

func TestRoomRegistry_MarkSubmittedIsIdempotent(t *testing.T) {
	r := NewRoomRegistry()
	room := newTestRoom(t, r)

	first := r.MarkSubmitted(room.ID, "alice")
	assert.Equal(t, SubmitResult{Changed: true, BothSubmitted: false, Opponent: "bob"}, first)

	again := r.MarkSubmitted(room.ID, "alice")
	assert.Equal(t, SubmitResult{Changed: false, BothSubmitted: false, Opponent: "bob"}, again)

	second := r.MarkSubmitted(room.ID, "bob")
	assert.Equal(t, SubmitResult{Changed: true, BothSubmitted: true, Opponent: "alice"}, second)

	late := r.MarkSubmitted(room.ID, "bob")
	assert.False(t, late.Changed, "a repeat after both submitted must not re-trigger evaluation")
	assert.True(t, late.BothSubmitted)

	assert.Equal(t, SubmitResult{}, r.MarkSubmitted("missing", "alice"))
	assert.Equal(t, SubmitResult{}, r.MarkSubmitted(room.ID, "mallory"))
}

func TestRoomRegistry_RebindAndFindByConnection(t *testing.T) {
	r := NewRoomRegistry()
	room := newTestRoom(t, r)

	assert.Len(t, r.FindByConnection("conn-a"), 1)
	assert.True(t, r.Rebind(room.ID, "alice", "conn-a2"))
	assert.Empty(t, r.FindByConnection("conn-a"))
	assert.Len(t, r.FindByConnection("conn-a2"), 1)

	assert.False(t, r.Rebind(room.ID, "mallory", "conn-m"))
	assert.False(t, r.Rebind("missing", "alice", "conn-m"))
}

func TestRoomRegistry_DestroyTwice(t *testing.T) {
	r := NewRoomRegistry()
	room := newTestRoom(t, r)

	assert.True(t, r.Destroy(room.ID))
	assert.False(t, r.Destroy(room.ID))
	assert.Equal(t, 0, r.Len())

	_, ok := r.Get(room.ID)
	assert.False(t, ok)
}

func TestRoomState_Transitions(t *testing.T) {
	tests := []struct {
		from RoomState
		to   RoomState
		want bool
	}{
		{RoomForming, RoomQuestionPending, true},
		{RoomQuestionPending, RoomInProgress, true},
		{RoomInProgress, RoomEvaluating, true},
		{RoomEvaluating, RoomArchived, true},
		{RoomForming, RoomAborted, true},
		{RoomQuestionPending, RoomAborted, true},
		{RoomInProgress, RoomAborted, true},
		{RoomEvaluating, RoomAborted, true},
		{RoomForming, RoomInProgress, false},
		{RoomInProgress, RoomArchived, false},
		{RoomEvaluating, RoomInProgress, false},
		{RoomArchived, RoomAborted, false},
		{RoomAborted, RoomArchived, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))

			room := &Room{State: tt.from}
			assert.Equal(t, tt.want, room.Transition(tt.to))
			if tt.want {
				assert.Equal(t, tt.to, room.State)
			} else {
				assert.Equal(t, tt.from, room.State)
			}
		})
	}

	assert.True(t, RoomArchived.Terminal())
	assert.True(t, RoomAborted.Terminal())
	assert.False(t, RoomEvaluating.Terminal())
}
