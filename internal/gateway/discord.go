package gateway

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/gnan1985/You-Only-Do-Once/internal/orchestrator"
)

// DiscordNotifier posts run summaries to one Discord channel through the
// REST API. It never opens a gateway connection.
type DiscordNotifier struct {
	Session   *discordgo.Session
	ChannelID string
}

func NewDiscordNotifier(token, channelID string) (*DiscordNotifier, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return &DiscordNotifier{Session: s, ChannelID: channelID}, nil
}

func (d *DiscordNotifier) Send(channelID, text string) error {
	_, err := d.Session.ChannelMessageSend(channelID, text)
	return err
}

func (d *DiscordNotifier) Notify(ctx context.Context, run *orchestrator.Run) error {
	_, err := d.Session.ChannelMessageSend(
		d.ChannelID, Summary(run), discordgo.WithContext(ctx),
	)
	return err
}
