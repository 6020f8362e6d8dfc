package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/watzon/gearbox/internal/config"
	"github.com/watzon/gearbox/internal/events"
)

// DiscordSession implements Session over a discordgo gateway connection and
// translates gateway events onto the internal event bus.
type DiscordSession struct {
	session    *discordgo.Session
	bus        *events.Bus
	httpClient *http.Client
}

// NewDiscordSession opens a gateway connection and wires event forwarding.
func NewDiscordSession(cfg *config.BotConfig, bus *events.Bus) (*DiscordSession, error) {
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	if cfg.Intents != 0 {
		s.Identify.Intents = discordgo.Intent(cfg.Intents)
	} else {
		s.Identify.Intents = discordgo.IntentsAllWithoutPrivileged |
			discordgo.IntentsGuildMembers |
			discordgo.IntentsMessageContent
	}
	s.StateEnabled = true

	ds := &DiscordSession{
		session: s,
		bus:     bus,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	ds.registerForwarders()

	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("opening gateway: %w", err)
	}

	if cfg.Status != "" {
		if err := s.UpdateWatchStatus(0, cfg.Status); err != nil {
			log.Warn().Err(err).Msg("Failed to set status")
		}
	}

	log.Info().Msg("Gateway connected")
	return ds, nil
}

// Close shuts down the gateway connection.
func (d *DiscordSession) Close() error {
	return d.session.Close()
}

func (d *DiscordSession) registerForwarders() {
	d.session.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
		d.bus.Publish(context.Background(), &events.Event{
			Name:    events.MemberJoin,
			GuildID: m.GuildID,
			UserID:  m.User.ID,
			Payload: memberFromDiscord(m.GuildID, m.Member),
		})
	})

	d.session.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
		d.bus.Publish(context.Background(), &events.Event{
			Name:    events.MemberLeave,
			GuildID: m.GuildID,
			UserID:  m.User.ID,
			Payload: memberFromDiscord(m.GuildID, m.Member),
		})
	})

	d.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		d.bus.Publish(context.Background(), &events.Event{
			Name:      events.MessageCreate,
			GuildID:   m.GuildID,
			UserID:    m.Author.ID,
			ChannelID: m.ChannelID,
			Payload: &MessagePayload{
				MessageID: m.ID,
				Content:   m.Content,
				Author:    d.Member(m.GuildID, m.Author.ID),
			},
		})
	})

	d.session.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
		d.bus.Publish(context.Background(), &events.Event{
			Name:      events.ReactionAdd,
			GuildID:   r.GuildID,
			UserID:    r.UserID,
			ChannelID: r.ChannelID,
			Payload: &ReactionPayload{
				MessageID: r.MessageID,
				Emoji:     r.Emoji.Name,
				UserID:    r.UserID,
			},
		})
	})

	d.session.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionRemove) {
		d.bus.Publish(context.Background(), &events.Event{
			Name:      events.ReactionRemove,
			GuildID:   r.GuildID,
			UserID:    r.UserID,
			ChannelID: r.ChannelID,
			Payload: &ReactionPayload{
				MessageID: r.MessageID,
				Emoji:     r.Emoji.Name,
				UserID:    r.UserID,
			},
		})
	})

	d.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		data := i.ApplicationCommandData()
		options := make(map[string]string, len(data.Options))
		for _, opt := range data.Options {
			options[opt.Name] = fmt.Sprint(opt.Value)
		}
		var userID string
		if i.Member != nil && i.Member.User != nil {
			userID = i.Member.User.ID
		} else if i.User != nil {
			userID = i.User.ID
		}
		d.bus.Publish(context.Background(), &events.Event{
			Name:      events.CommandInvoke,
			GuildID:   i.GuildID,
			UserID:    userID,
			ChannelID: i.ChannelID,
			Payload: &CommandPayload{
				Command: data.Name,
				UserID:  userID,
				Options: options,
			},
		})
	})

	d.session.AddHandler(func(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
		if v.ChannelID == "" {
			return
		}
		d.bus.Publish(context.Background(), &events.Event{
			Name:      events.VoiceJoin,
			GuildID:   v.GuildID,
			UserID:    v.UserID,
			ChannelID: v.ChannelID,
		})
	})
}

// Channel implements Directory.
func (d *DiscordSession) Channel(id string) *Channel {
	ch, err := d.session.State.Channel(id)
	if err != nil {
		ch, err = d.session.Channel(id)
		if err != nil {
			return nil
		}
	}
	return &Channel{ID: ch.ID, GuildID: ch.GuildID, Name: ch.Name}
}

// Role implements Directory.
func (d *DiscordSession) Role(guildID, id string) *Role {
	r, err := d.session.State.Role(guildID, id)
	if err != nil {
		return nil
	}
	return &Role{ID: r.ID, Name: r.Name, Position: r.Position}
}

// Member implements Directory.
func (d *DiscordSession) Member(guildID, id string) *Member {
	m, err := d.session.State.Member(guildID, id)
	if err != nil {
		m, err = d.session.GuildMember(guildID, id)
		if err != nil {
			return nil
		}
	}
	return memberFromDiscord(guildID, m)
}

// SendMessage implements Sender.
func (d *DiscordSession) SendMessage(ctx context.Context, channelID, content string) error {
	_, err := d.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// SendEmbed implements Sender.
func (d *DiscordSession) SendEmbed(ctx context.Context, channelID string, embed *Embed) error {
	fields := make([]*discordgo.MessageEmbedField, 0, len(embed.Fields))
	for _, f := range embed.Fields {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}

	_, err := d.session.ChannelMessageSendEmbed(channelID, &discordgo.MessageEmbed{
		Title:       embed.Title,
		Description: embed.Description,
		Color:       embed.Color,
		Fields:      fields,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("sending embed: %w", err)
	}
	return nil
}

// SendDM implements Sender. Fails (without panicking) when the user blocks DMs.
func (d *DiscordSession) SendDM(ctx context.Context, userID, content string) error {
	ch, err := d.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("opening DM channel: %w", err)
	}
	return d.SendMessage(ctx, ch.ID, content)
}

// AddRole implements RoleManager.
func (d *DiscordSession) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := d.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("adding role: %w", err)
	}
	return nil
}

// RemoveRole implements RoleManager.
func (d *DiscordSession) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := d.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("removing role: %w", err)
	}
	return nil
}

// TimeoutMember implements RoleManager.
func (d *DiscordSession) TimeoutMember(ctx context.Context, guildID, userID string, until time.Time) error {
	if err := d.session.GuildMemberTimeout(guildID, userID, &until, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("timing out member: %w", err)
	}
	return nil
}

// CreateRole implements RoleManager.
func (d *DiscordSession) CreateRole(ctx context.Context, guildID, name string) (*Role, error) {
	r, err := d.session.GuildRoleCreate(guildID, &discordgo.RoleParams{Name: name}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("creating role: %w", err)
	}
	return &Role{ID: r.ID, Name: r.Name, Position: r.Position}, nil
}

// PostWebhook implements WebhookPoster.
func (d *DiscordSession) PostWebhook(ctx context.Context, url string, payload any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

// Latency implements Session.
func (d *DiscordSession) Latency() time.Duration {
	return d.session.HeartbeatLatency()
}

func memberFromDiscord(guildID string, m *discordgo.Member) *Member {
	if m == nil || m.User == nil {
		return nil
	}

	created, err := discordgo.SnowflakeTimestamp(m.User.ID)
	if err != nil {
		created = time.Time{}
	}

	return &Member{
		ID:        m.User.ID,
		Username:  m.User.Username,
		GuildID:   guildID,
		RoleIDs:   m.Roles,
		JoinedAt:  m.JoinedAt,
		CreatedAt: created,
	}
}
