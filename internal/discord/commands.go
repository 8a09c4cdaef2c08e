package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"eule/internal/cleaner"
	"eule/pkg/logx"
)

func commandDefinitions() []*discordgo.ApplicationCommand {
	intervalOptions := []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "interval",
			Description: "How often to clean",
			Required:    true,
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "unit",
			Description: "Interval unit",
			Required:    true,
			Choices: []*discordgo.ApplicationCommandOptionChoice{
				{Name: "minutes", Value: "minutes"},
				{Name: "hours", Value: "hours"},
				{Name: "days", Value: "days"},
			},
		},
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        "autoclean",
			Description: "Manage scheduled cleanups for this channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Schedule a recurring cleanup of this channel",
					Options:     intervalOptions,
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "Stop cleaning this channel",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List scheduled cleanups in this server",
				},
			},
		},
		{
			Name:        "clean",
			Description: "Delete recent messages in this channel now",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "count",
					Description: "How many messages to delete (default 100)",
					Required:    false,
				},
			},
		},
		{
			Name:        "status",
			Description: "Show bot uptime and scheduled cleanups",
		},
		{
			Name:        "workers",
			Description: "Show the cleanup worker pool size",
		},
	}
}

func (b *Bot) registerCommands(s *discordgo.Session) error {
	appID := s.State.User.ID
	for _, cmd := range commandDefinitions() {
		if _, err := s.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return fmt.Errorf("register %s: %w", cmd.Name, err)
		}
	}
	return nil
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	ctx := context.Background()
	data := i.ApplicationCommandData()

	if i.GuildID == "" {
		b.reply(s, i, ErrNotInGuild.Error())
		return
	}

	var msg string
	var err error
	switch data.Name {
	case "autoclean":
		msg, err = b.handleAutoclean(ctx, i, data)
	case "clean":
		msg, err = b.handleClean(ctx, i, data)
	case "status":
		msg = b.handleStatus(i)
	case "workers":
		msg = fmt.Sprintf("Cleanup workers: %d", b.manager.WorkerCount())
	default:
		return
	}
	if err != nil {
		b.log.Warn("command failed",
			logx.String("command", data.Name),
			logx.Err(err),
		)
		msg = userMessage(err)
	}
	b.reply(s, i, msg)
}

func (b *Bot) handleAutoclean(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) (string, error) {
	if len(data.Options) == 0 {
		return "", fmt.Errorf("missing subcommand")
	}
	sub := data.Options[0]
	switch sub.Name {
	case "add":
		var value int64
		var unit string
		for _, opt := range sub.Options {
			switch opt.Name {
			case "interval":
				value = opt.IntValue()
			case "unit":
				unit = opt.StringValue()
			}
		}
		interval, err := cleaner.ParseInterval(value, unit)
		if err != nil {
			return "", err
		}
		if err := b.manager.AddJob(ctx, i.GuildID, i.ChannelID, interval); err != nil {
			return "", err
		}
		return fmt.Sprintf("This channel will be cleaned every %d %s.", value, unit), nil
	case "remove":
		removed, err := b.manager.RemoveJob(ctx, i.GuildID, i.ChannelID)
		if err != nil {
			return "", err
		}
		if !removed {
			return "No cleanup was scheduled for this channel.", nil
		}
		return "Cleanup for this channel removed.", nil
	case "list":
		jobs := b.manager.ListJobs(i.GuildID)
		if len(jobs) == 0 {
			return "No cleanups scheduled in this server.", nil
		}
		var sb strings.Builder
		sb.WriteString("Scheduled cleanups:\n")
		for _, j := range jobs {
			fmt.Fprintf(&sb, "- <#%s> every %s\n", j.Channel, formatInterval(j.Interval))
		}
		return sb.String(), nil
	default:
		return "", fmt.Errorf("unknown subcommand %q", sub.Name)
	}
}

func (b *Bot) handleClean(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) (string, error) {
	count := 0
	for _, opt := range data.Options {
		if opt.Name == "count" {
			count = int(opt.IntValue())
		}
	}
	n, err := b.manager.CleanOnce(ctx, b, i.ChannelID, count)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "Nothing to delete.", nil
	}
	return fmt.Sprintf("Deleted %d messages.", n), nil
}

func (b *Bot) handleStatus(i *discordgo.InteractionCreate) string {
	return fmt.Sprintf("Uptime: %s\nScheduled cleanups in this server: %d",
		b.Uptime().Round(time.Second), b.manager.JobCount(i.GuildID))
}

func (b *Bot) reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.log.Warn("interaction reply failed", logx.Err(err))
	}
}

// userMessage maps an internal error to text safe to show in a channel.
func userMessage(err error) string {
	switch {
	case errors.Is(err, cleaner.ErrInvalidTimeUnit):
		return "Unknown time unit. Use minutes, hours, or days."
	case errors.Is(err, cleaner.ErrInvalidInterval):
		return "The interval must be at least 1."
	case errors.Is(err, ErrNotInGuild):
		return ErrNotInGuild.Error()
	default:
		return "Something went wrong, try again later."
	}
}

func formatInterval(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		n := d / (24 * time.Hour)
		if n == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", n)
	case d >= time.Hour && d%time.Hour == 0:
		n := d / time.Hour
		if n == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", n)
	default:
		n := d / time.Minute
		if n == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", n)
	}
}
