package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeKind(t *testing.T) {
	cases := []struct {
		requested    ChatKind
		counterparts int
		want         ChatKind
	}{
		{ChatKindGroup, 1, ChatKindPrivate},
		{ChatKindChannel, 1, ChatKindPrivate},
		{"", 1, ChatKindPrivate},
		{ChatKindGroup, 2, ChatKindGroup},
		{ChatKindChannel, 3, ChatKindChannel},
		{"", 0, ChatKindGroup},
		{"", 5, ChatKindGroup},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NormalizeKind(tc.requested, tc.counterparts),
			"requested=%q counterparts=%d", tc.requested, tc.counterparts)
	}
}

func TestSortMessagesStable(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	messages := []Message{
		{ID: 3, CreatedAt: base.Add(2 * time.Minute)},
		{ID: 1, CreatedAt: base},
		{ID: 4, CreatedAt: base.Add(2 * time.Minute)},
		{ID: 2, CreatedAt: base.Add(1 * time.Minute)},
	}
	SortMessages(messages)

	var ids []int64
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	// Equal timestamps keep their relative order.
	require.Equal(t, []int64{1, 2, 3, 4}, ids)
}

func TestLastMessage(t *testing.T) {
	require.Nil(t, LastMessage(nil))
	require.Nil(t, LastMessage([]Message{}))

	messages := []Message{{ID: 1}, {ID: 2}}
	last := LastMessage(messages)
	require.NotNil(t, last)
	require.Equal(t, int64(2), last.ID)

	// The returned message is a copy, not an alias into the slice.
	last.Content = "mutated"
	require.Empty(t, messages[1].Content)
}
