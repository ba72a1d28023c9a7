package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

var _ IGroupConsumer[TestMessage] = (*GroupConsumer[TestMessage])(nil)

func publish(t *testing.T, client *redis.Client, stream string, messages ...TestMessage) {
	t.Helper()
	for _, message := range messages {
		values, err := EncodeMessage(message)
		require.NoError(t, err)
		require.NoError(t, client.XAdd(context.Background(), &redis.XAddArgs{Stream: stream, Values: values}).Err())
	}
}

func receive(t *testing.T, ch <-chan *Message[TestMessage]) *Message[TestMessage] {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func newTestConsumer(t *testing.T, client *redis.Client, consumer string, opts ...GroupConsumerOption[TestMessage]) *GroupConsumer[TestMessage] {
	t.Helper()
	opts = append([]GroupConsumerOption[TestMessage]{
		WithGroupConsumerLogger[TestMessage](discardLogger),
		WithGroupConsumerBlockTimeout[TestMessage](50 * time.Millisecond),
		WithGroupConsumerRetryDelay[TestMessage](10 * time.Millisecond),
	}, opts...)
	gc, err := NewGroupConsumer(client, "orphans", "reconciler", consumer, opts...)
	require.NoError(t, err)
	return gc
}

func TestNewGroupConsumer(t *testing.T) {
	tests := []struct {
		name          string
		client        *redis.Client
		stream        string
		group         string
		consumer      string
		opts          []GroupConsumerOption[TestMessage]
		wantExclusive bool
		wantErr       string
	}{
		{
			name:     "valid configuration",
			client:   redis.NewClient(&redis.Options{}),
			stream:   "orphans",
			group:    "reconciler",
			consumer: "api-1",
		},
		{
			name:     "nil client",
			stream:   "orphans",
			group:    "reconciler",
			consumer: "api-1",
			wantErr:  "redis client cannot be nil",
		},
		{
			name:     "empty group",
			client:   redis.NewClient(&redis.Options{}),
			stream:   "orphans",
			consumer: "api-1",
			wantErr:  "stream, group and consumer cannot be empty",
		},
		{
			name:     "exclusive with default mutex",
			client:   redis.NewClient(&redis.Options{}),
			stream:   "orphans",
			group:    "reconciler",
			consumer: "api-1",
			opts: []GroupConsumerOption[TestMessage]{
				WithGroupConsumerExclusive[TestMessage](true),
				WithGroupConsumerBufferSize[TestMessage](4),
				WithGroupConsumerDeadLetter[TestMessage]("orphans:dlq"),
				WithGroupConsumerParseFunc[TestMessage](DecodeMessage[TestMessage]),
			},
			wantExclusive: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gc, err := NewGroupConsumer(tt.client, tt.stream, tt.group, tt.consumer, tt.opts...)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				assert.Nil(t, gc)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantExclusive, gc.mutex != nil)
			}
			if tt.client != nil {
				tt.client.Close()
			}
		})
	}
}

func TestGroupConsumer_ConsumeAndAck(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, _, cleanup := setupServer(t)
	defer cleanup()
	ctx := context.Background()

	publish(t, client, "orphans", TestMessage{ID: "1"}, TestMessage{ID: "2"})

	gc := newTestConsumer(t, client, "api-1")
	require.NoError(t, gc.Start())
	require.NoError(t, gc.Start())

	first := receive(t, gc.Subscribe())
	assert.Equal(t, "1", first.Data.ID)
	require.NoError(t, first.Done(ctx))
	require.NoError(t, first.Done(ctx))

	publish(t, client, "orphans", TestMessage{ID: "3"})
	second := receive(t, gc.Subscribe())
	assert.Equal(t, "2", second.Data.ID)
	require.NoError(t, second.Done(ctx))
	third := receive(t, gc.Subscribe())
	assert.Equal(t, "3", third.Data.ID)
	require.NoError(t, third.Done(ctx))

	require.NoError(t, gc.Close())
	require.NoError(t, gc.Close())

	_, ok := <-gc.Subscribe()
	assert.False(t, ok)

	pending, err := client.XPending(ctx, "orphans", "reconciler").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestGroupConsumer_RedeliversPending(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, _, cleanup := setupServer(t)
	defer cleanup()
	ctx := context.Background()

	publish(t, client, "orphans", TestMessage{ID: "1"}, TestMessage{ID: "2"})

	gc := newTestConsumer(t, client, "api-1")
	require.NoError(t, gc.Start())
	assert.Equal(t, "1", receive(t, gc.Subscribe()).Data.ID)
	require.NoError(t, gc.Close())

	// 沒有 ack 的消息在重新啟動後會先被讀到
	restarted := newTestConsumer(t, client, "api-1")
	require.NoError(t, restarted.Start())
	defer restarted.Close()

	var ids []string
	for range 2 {
		msg := receive(t, restarted.Subscribe())
		ids = append(ids, msg.Data.ID)
		require.NoError(t, msg.Done(ctx))
	}
	assert.Equal(t, []string{"1", "2"}, ids)
}

func TestGroupConsumer_DeadLetter(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, _, cleanup := setupServer(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: "orphans", Values: map[string]any{"data": "%%%"}}).Err())
	publish(t, client, "orphans", TestMessage{ID: "2"})

	gc := newTestConsumer(t, client, "api-1")
	require.NoError(t, gc.Start())
	defer gc.Close()

	// 解析失敗的消息直接進 dead-letter
	msg := receive(t, gc.Subscribe())
	assert.Equal(t, "2", msg.Data.ID)
	require.NoError(t, msg.Fail(ctx, errors.New("reconcile failed")))
	require.NoError(t, msg.Fail(ctx, errors.New("again")))

	dead, err := client.XRange(ctx, "orphans:dead-letter", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, dead, 2)
	assert.Contains(t, dead[0].Values["error"], "base64 decode error")
	assert.Equal(t, "reconcile failed", dead[1].Values["error"])

	pending, err := client.XPending(ctx, "orphans", "reconciler").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestGroupConsumer_Exclusive(t *testing.T) {
	defer goleak.VerifyNone(t)
	client, _, cleanup := setupServer(t)
	defer cleanup()

	ctrl := gomock.NewController(t)
	mutex := NewMockIAutoRenewMutex(ctrl)
	lockCtx, lose := context.WithCancel(context.Background())
	defer lose()
	relocked := make(chan struct{})

	gomock.InOrder(
		mutex.EXPECT().Lock(gomock.Any()).Return(lockCtx, nil),
		mutex.EXPECT().Unlock().Return(false, ErrLockNotHeld),
		mutex.EXPECT().Lock(gomock.Any()).DoAndReturn(func(ctx context.Context) (context.Context, error) {
			close(relocked)
			return ctx, nil
		}),
		mutex.EXPECT().Unlock().Return(true, nil),
	)

	publish(t, client, "orphans", TestMessage{ID: "1"}, TestMessage{ID: "2"})
	gc := newTestConsumer(t, client, "api-1",
		WithGroupConsumerExclusive[TestMessage](true),
		WithGroupConsumerMutex[TestMessage](mutex),
	)
	require.NoError(t, gc.Start())

	first := receive(t, gc.Subscribe())
	require.NoError(t, first.Done(context.Background()))

	// 鎖遺失後重新搶鎖，然後繼續讀取
	lose()
	select {
	case <-relocked:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not reacquire the lock")
	}
	second := receive(t, gc.Subscribe())
	assert.Equal(t, "2", second.Data.ID)
	require.NoError(t, second.Done(context.Background()))

	require.NoError(t, gc.Close())
}

func TestGroupConsumer_StartFailure(t *testing.T) {
	client, mock, cleanup := setupTest(t)
	defer cleanup()

	mock.ExpectXGroupCreateMkStream("orphans", "reconciler", "0").SetErr(errors.New("connection refused"))

	gc, err := NewGroupConsumer[TestMessage](client, "orphans", "reconciler", "api-1")
	require.NoError(t, err)
	assert.ErrorContains(t, gc.Start(), "connection refused")
	assert.NoError(t, gc.Close())
}
