// Package platform defines the chat-platform collaborator interfaces the
// automation core depends on, and the gateway adapter that implements them.
//
// Directory lookups return nil on miss, never an error. Send operations are
// fallible (a blocked DM, a deleted channel) and callers must treat failures
// as non-fatal.
package platform

import (
	"context"
	"time"
)

// Channel is a text channel handle.
type Channel struct {
	ID      string
	GuildID string
	Name    string
}

// Role is a guild role handle. Position is the platform's ordering index.
type Role struct {
	ID       string
	Name     string
	Position int
}

// Member is a guild member handle.
type Member struct {
	ID        string
	Username  string
	GuildID   string
	RoleIDs   []string
	JoinedAt  time.Time
	CreatedAt time.Time
}

// MessagePayload is the payload delivered with message events.
type MessagePayload struct {
	MessageID string
	Content   string
	Author    *Member
}

// ReactionPayload is the payload delivered with reaction events.
type ReactionPayload struct {
	MessageID string
	Emoji     string
	UserID    string
}

// CommandPayload is the payload delivered with slash-command events.
type CommandPayload struct {
	Command string
	UserID  string
	Options map[string]string
}

// Embed is a structured rich-content message.
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
}

// EmbedField is one field of an Embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Directory resolves platform objects by ID. Nil means not found.
type Directory interface {
	Channel(id string) *Channel
	Role(guildID, id string) *Role
	Member(guildID, id string) *Member
}

// Sender delivers outbound messages.
type Sender interface {
	SendMessage(ctx context.Context, channelID, content string) error
	SendEmbed(ctx context.Context, channelID string, embed *Embed) error
	SendDM(ctx context.Context, userID, content string) error
}

// RoleManager mutates member roles and timeouts.
type RoleManager interface {
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	TimeoutMember(ctx context.Context, guildID, userID string, until time.Time) error
	CreateRole(ctx context.Context, guildID, name string) (*Role, error)
}

// WebhookPoster sends an HTTP POST to an external webhook URL.
type WebhookPoster interface {
	PostWebhook(ctx context.Context, url string, payload any) (status int, err error)
}

// Session aggregates everything the automation core needs from the platform.
type Session interface {
	Directory
	Sender
	RoleManager
	WebhookPoster

	// Latency reports the gateway heartbeat latency, for diagnostics.
	Latency() time.Duration
}
