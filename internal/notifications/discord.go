package notifications

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// embedSender is the slice of *discordgo.Session used for delivery.
type embedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type discordBackend struct {
	sender    embedSender
	channelID string
	now       func() time.Time
}

func newDiscordBackend(token, channelID string, timeout time.Duration) (*discordBackend, error) {
	session, err := discordgo.New("Bot " + strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Client = &http.Client{Timeout: timeout}
	return &discordBackend{sender: session, channelID: strings.TrimSpace(channelID), now: time.Now}, nil
}

func (d *discordBackend) name() string { return "discord" }

func (d *discordBackend) send(ctx context.Context, msg message) error {
	if d == nil || d.sender == nil {
		return nil
	}
	embed := &discordgo.MessageEmbed{
		Title:       msg.title,
		Description: msg.body,
		URL:         msg.url,
		Color:       embedColor(msg.priority),
		Timestamp:   d.now().UTC().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: strings.Join(msg.tags, " · "),
		},
	}
	if _, err := d.sender.ChannelMessageSendEmbed(d.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	return nil
}

func embedColor(priority string) int {
	switch priority {
	case "high":
		return 0xE74C3C
	case "low":
		return 0x95A5A6
	default:
		return 0x3498DB
	}
}
