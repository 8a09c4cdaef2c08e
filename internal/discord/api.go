package discord

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
)

var errNoSession = errors.New("discord: no active session")

// ListRecentMessages returns the IDs of the newest messages in a channel,
// newest first, up to limit.
func (b *Bot) ListRecentMessages(ctx context.Context, channelID string, limit int) ([]string, error) {
	s := b.current()
	if s == nil {
		return nil, errNoSession
	}
	msgs, err := s.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// DeleteMessages removes messages from a channel. Batches go through bulk
// delete; a single ID uses the per-message endpoint, which also works for
// messages too old for bulk deletion.
func (b *Bot) DeleteMessages(ctx context.Context, channelID string, ids []string) error {
	s := b.current()
	if s == nil {
		return errNoSession
	}
	if len(ids) == 0 {
		return nil
	}
	if len(ids) == 1 {
		return s.ChannelMessageDelete(channelID, ids[0], discordgo.WithContext(ctx))
	}
	return s.ChannelMessagesBulkDelete(channelID, ids, discordgo.WithContext(ctx))
}
