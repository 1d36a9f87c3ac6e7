// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package streamrouter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStream_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     StreamConfig
		wantErr bool
	}{
		{"minimal", StreamConfig{Topics: []string{"orders"}}, false},
		{"grouped", StreamConfig{Topics: []string{"orders"}, TaskGroup: &TaskGroup{Group: 1}}, false},
		{"explicit inbox size", StreamConfig{Topics: []string{"orders"}, InboxSize: 5}, false},
		{"no topics", StreamConfig{}, true},
		{"empty topic", StreamConfig{Topics: []string{""}}, true},
		{"illegal topic", StreamConfig{Topics: []string{"orders", "a b"}}, true},
		{"negative inbox size", StreamConfig{Topics: []string{"orders"}, InboxSize: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, err := NewStream(tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestNewStream_Defaults(t *testing.T) {
	t.Parallel()

	a := mustStream(t, StreamConfig{Topics: []string{"orders"}})
	b := mustStream(t, StreamConfig{Topics: []string{"orders"}})

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.True(t, a.Active())
	assert.Equal(t, DefaultInboxSize, a.Inbox().Cap())

	_, grouped := a.TaskGroup()
	assert.False(t, grouped)
}

func TestNewStream_CopiesConfig(t *testing.T) {
	t.Parallel()

	topics := []string{"orders"}
	group := &TaskGroup{Group: 3, Index: 1}

	s := mustStream(t, StreamConfig{ID: "s", Topics: topics, TaskGroup: group, InboxSize: 2, Inactive: true})

	topics[0] = "changed"
	group.Group = 9

	assert.Equal(t, []string{"orders"}, s.Topics())
	g, ok := s.TaskGroup()
	assert.True(t, ok)
	assert.Equal(t, TaskGroup{Group: 3, Index: 1}, g)
	assert.Equal(t, "3/1", g.String())
	assert.False(t, s.Active())
	assert.Equal(t, 2, s.Inbox().Cap())

	s.SetActive(true)
	assert.True(t, s.Active())
}

func TestStream_NextUnlinked(t *testing.T) {
	t.Parallel()

	s := mustStream(t, StreamConfig{Topics: []string{"orders"}, InboxSize: 1})
	require.NoError(t, s.Inbox().Put(context.Background(), NewMessage("orders", 0, 5, nil)))

	msg, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), msg.Offset)

	err = s.Ack(msg)
	assert.ErrorIs(t, err, ErrUnknownSubscriber)
}

func TestStream_NextReadsGroupInbox(t *testing.T) {
	t.Parallel()

	group := &TaskGroup{Group: 1}
	a := mustStream(t, StreamConfig{ID: "A", Topics: []string{"clicks"}, TaskGroup: group})
	b := mustStream(t, StreamConfig{ID: "B", Topics: []string{"clicks"}, TaskGroup: group})

	r := &Router{NewConsumer: newTestConsumerFactory(newMockConsumer())}
	t.Cleanup(func() { _ = r.Stop(context.Background()) })

	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))
	require.NoError(t, r.Update(context.Background()))

	require.NoError(t, r.OnMessage(context.Background(), NewMessage("clicks", 0, 1, nil)))

	// B is not the representative, yet it receives through the shared inbox.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, err := b.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Offset)
	assert.Equal(t, 0, a.Inbox().Len())
}
