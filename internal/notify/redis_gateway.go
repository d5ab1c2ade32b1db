package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Command operations written to the outbox stream.
const (
	OpCreateChannel  = "create_private_channel"
	OpSend           = "send"
	OpSetSendAllowed = "set_member_send_capability"
	OpMoveToArchive  = "move_to_archive"
	OpSendDirect     = "send_direct"
)

// Command is one outbox entry consumed by the platform bridge.
type Command struct {
	ID        string   `json:"id"`
	Op        string   `json:"op"`
	ChannelID int64    `json:"channel_id,omitempty"`
	MemberID  int64    `json:"member_id,omitempty"`
	MessageID int64    `json:"message_id,omitempty"`
	Permitted []int64  `json:"permitted,omitempty"`
	Allowed   *bool    `json:"allowed,omitempty"`
	Message   *Message `json:"message,omitempty"`
	IssuedAt  string   `json:"issued_at"`
}

// RedisGateway appends commands to a Redis stream. Channel and message ids
// are allocated from Redis counters so callers get them synchronously.
type RedisGateway struct {
	client    *redis.Client
	stream    string
	keyPrefix string
	maxLen    int64
}

// NewRedisGateway builds an outbox gateway.
func NewRedisGateway(client *redis.Client, stream, keyPrefix string) *RedisGateway {
	return &RedisGateway{
		client:    client,
		stream:    stream,
		keyPrefix: keyPrefix,
		maxLen:    10000,
	}
}

func (g *RedisGateway) CreatePrivateChannel(ctx context.Context, ownerID int64, permitted []int64) (int64, error) {
	channelID, err := g.client.Incr(ctx, g.key("channel_seq")).Result()
	if err != nil {
		return 0, fmt.Errorf("allocate channel id: %w", err)
	}
	err = g.publish(ctx, Command{
		Op:        OpCreateChannel,
		ChannelID: channelID,
		MemberID:  ownerID,
		Permitted: permitted,
	})
	if err != nil {
		return 0, err
	}
	return channelID, nil
}

func (g *RedisGateway) Send(ctx context.Context, channelID int64, msg Message) (int64, error) {
	messageID, err := g.client.Incr(ctx, g.key("message_seq")).Result()
	if err != nil {
		return 0, fmt.Errorf("allocate message id: %w", err)
	}
	if err := g.publish(ctx, Command{Op: OpSend, ChannelID: channelID, MessageID: messageID, Message: &msg}); err != nil {
		return 0, err
	}
	return messageID, nil
}

func (g *RedisGateway) SetMemberSendCapability(ctx context.Context, channelID, memberID int64, allowed *bool) error {
	return g.publish(ctx, Command{Op: OpSetSendAllowed, ChannelID: channelID, MemberID: memberID, Allowed: allowed})
}

func (g *RedisGateway) MoveToArchive(ctx context.Context, channelID int64) error {
	return g.publish(ctx, Command{Op: OpMoveToArchive, ChannelID: channelID})
}

func (g *RedisGateway) SendDirect(ctx context.Context, memberID int64, msg Message) error {
	return g.publish(ctx, Command{Op: OpSendDirect, MemberID: memberID, Message: &msg})
}

// Pending reads up to count commands from the start of the stream.
func (g *RedisGateway) Pending(ctx context.Context, count int64) ([]Command, error) {
	entries, err := g.client.XRangeN(ctx, g.stream, "-", "+", count).Result()
	if err != nil {
		return nil, err
	}
	commands := make([]Command, 0, len(entries))
	for _, entry := range entries {
		raw, ok := entry.Values["command"].(string)
		if !ok {
			continue
		}
		var cmd Command
		if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
			return nil, fmt.Errorf("decode outbox entry %s: %w", entry.ID, err)
		}
		commands = append(commands, cmd)
	}
	return commands, nil
}

func (g *RedisGateway) publish(ctx context.Context, cmd Command) error {
	cmd.ID = uuid.NewString()
	cmd.IssuedAt = time.Now().UTC().Format(time.RFC3339Nano)
	body, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	values := map[string]any{
		"op":      cmd.Op,
		"command": string(body),
	}
	if cmd.ChannelID != 0 {
		values["channel_id"] = strconv.FormatInt(cmd.ChannelID, 10)
	}
	err = g.client.XAdd(ctx, &redis.XAddArgs{
		Stream: g.stream,
		MaxLen: g.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("publish %s: %w", cmd.Op, err)
	}
	return nil
}

func (g *RedisGateway) key(name string) string {
	if g.keyPrefix == "" {
		return name
	}
	return g.keyPrefix + ":" + name
}
