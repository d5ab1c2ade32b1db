package notify

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T) (*RedisGateway, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisGateway(client, "support-desk:gateway", "support-desk"), mr
}

func TestRedisGateway_AllocatesChannelAndMessageIDs(t *testing.T) {
	ctx := context.Background()
	gw, mr := newTestGateway(t)

	first, err := gw.CreatePrivateChannel(ctx, 42, []int64{7})
	require.NoError(t, err)
	second, err := gw.CreatePrivateChannel(ctx, 43, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), second)

	msgID, err := gw.Send(ctx, first, Message{Title: "Ticket opened", Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), msgID)

	seq, err := mr.Get("support-desk:channel_seq")
	require.NoError(t, err)
	assert.Equal(t, "2", seq)
}

func TestRedisGateway_WritesCommandsInOrder(t *testing.T) {
	ctx := context.Background()
	gw, _ := newTestGateway(t)

	channelID, err := gw.CreatePrivateChannel(ctx, 42, []int64{7, 8})
	require.NoError(t, err)
	require.NoError(t, gw.SetMemberSendCapability(ctx, channelID, 42, Bool(false)))
	require.NoError(t, gw.SetMemberSendCapability(ctx, channelID, 42, nil))
	require.NoError(t, gw.MoveToArchive(ctx, channelID))
	require.NoError(t, gw.SendDirect(ctx, 42, Text("your ticket was closed")))

	commands, err := gw.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, commands, 5)

	assert.Equal(t, OpCreateChannel, commands[0].Op)
	assert.Equal(t, []int64{7, 8}, commands[0].Permitted)
	assert.Equal(t, int64(42), commands[0].MemberID)

	assert.Equal(t, OpSetSendAllowed, commands[1].Op)
	require.NotNil(t, commands[1].Allowed)
	assert.False(t, *commands[1].Allowed)
	assert.Nil(t, commands[2].Allowed)

	assert.Equal(t, OpMoveToArchive, commands[3].Op)
	assert.Equal(t, channelID, commands[3].ChannelID)

	assert.Equal(t, OpSendDirect, commands[4].Op)
	require.NotNil(t, commands[4].Message)
	assert.Equal(t, "your ticket was closed", commands[4].Message.Text)
	assert.NotEmpty(t, commands[4].ID)
}

func TestRedisGateway_FailsWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	gw, mr := newTestGateway(t)
	mr.Close()

	_, err := gw.Send(ctx, 1, Text("x"))
	assert.Error(t, err)
	assert.Error(t, gw.MoveToArchive(ctx, 1))
}
