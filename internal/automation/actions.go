package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/gearbox/internal/platform"
)

// ExecContext carries per-invocation facts into the action pipeline.
type ExecContext struct {
	GuildID   string
	ChannelID string
	UserID    string
	Username  string

	// Vars feed FormatMessage: hook params plus runtime variables.
	Vars map[string]any

	// Depth counts trigger_hook hops in this dispatch chain.
	Depth int
}

// Action is one step of a hook's effect pipeline.
type Action interface {
	Type() string
	Do(ctx context.Context, d *Dispatcher, ec *ExecContext) error
}

// DecodeAction builds an Action from its map form (as authored in the
// template catalog). Unrecognized types decode to a no-op UnknownAction.
func DecodeAction(raw map[string]any) (Action, error) {
	kind, _ := raw["type"].(string)
	if kind == "" {
		return nil, fmt.Errorf("action without type")
	}

	str := func(key string) string {
		v, _ := raw[key].(string)
		return v
	}
	num := func(key string) float64 {
		switch v := raw[key].(type) {
		case int:
			return float64(v)
		case float64:
			return v
		default:
			return 0
		}
	}

	switch kind {
	case "send_message":
		return &SendMessageAction{ChannelID: str("channel_id"), Content: str("content")}, nil
	case "add_role":
		return &AddRoleAction{RoleID: str("role_id")}, nil
	case "remove_role":
		return &RemoveRoleAction{RoleID: str("role_id")}, nil
	case "timeout_member":
		return &TimeoutMemberAction{DurationSeconds: int(num("duration_seconds"))}, nil
	case "send_dm":
		return &SendDMAction{Content: str("content")}, nil
	case "invoke_webhook":
		return &InvokeWebhookAction{URL: str("url")}, nil
	case "create_role":
		return &CreateRoleAction{Name: str("name")}, nil
	case "delay":
		return &DelayAction{Seconds: num("seconds")}, nil
	case "trigger_hook":
		return &TriggerHookAction{HookID: str("hook_id")}, nil
	default:
		return &UnknownAction{RawType: kind}, nil
	}
}

// resolveField substitutes placeholders in an action field. A field that is
// still a bare unresolved placeholder (its parameter was optional and
// absent) resolves to empty, which actions treat as "skip".
func resolveField(field string, ec *ExecContext) string {
	out := FormatMessage(field, ec.Vars)
	if placeholderRe.MatchString(out) && placeholderRe.FindString(out) == out {
		return ""
	}
	return out
}

// SendMessageAction posts a formatted message to a channel.
type SendMessageAction struct {
	ChannelID string
	Content   string
}

func (a *SendMessageAction) Type() string { return "send_message" }

func (a *SendMessageAction) Do(ctx context.Context, d *Dispatcher, ec *ExecContext) error {
	channelID := resolveField(a.ChannelID, ec)
	if channelID == "" {
		channelID = ec.ChannelID
	}
	if channelID == "" {
		return nil
	}
	return d.session.SendMessage(ctx, channelID, FormatMessage(a.Content, ec.Vars))
}

// AddRoleAction grants a role to the acting member. No-op when the role
// parameter was left unset.
type AddRoleAction struct {
	RoleID string
}

func (a *AddRoleAction) Type() string { return "add_role" }

func (a *AddRoleAction) Do(ctx context.Context, d *Dispatcher, ec *ExecContext) error {
	roleID := resolveField(a.RoleID, ec)
	if roleID == "" || ec.UserID == "" {
		return nil
	}
	return d.session.AddRole(ctx, ec.GuildID, ec.UserID, roleID)
}

// RemoveRoleAction revokes a role from the acting member.
type RemoveRoleAction struct {
	RoleID string
}

func (a *RemoveRoleAction) Type() string { return "remove_role" }

func (a *RemoveRoleAction) Do(ctx context.Context, d *Dispatcher, ec *ExecContext) error {
	roleID := resolveField(a.RoleID, ec)
	if roleID == "" || ec.UserID == "" {
		return nil
	}
	return d.session.RemoveRole(ctx, ec.GuildID, ec.UserID, roleID)
}

// TimeoutMemberAction applies a communication timeout to the acting member.
type TimeoutMemberAction struct {
	DurationSeconds int
}

func (a *TimeoutMemberAction) Type() string { return "timeout_member" }

func (a *TimeoutMemberAction) Do(ctx context.Context, d *Dispatcher, ec *ExecContext) error {
	if ec.UserID == "" || a.DurationSeconds <= 0 {
		return nil
	}
	until := time.Now().Add(time.Duration(a.DurationSeconds) * time.Second)
	return d.session.TimeoutMember(ctx, ec.GuildID, ec.UserID, until)
}

// SendDMAction sends a formatted direct message to the acting member.
// A blocked DM is an ordinary failure, not a crash.
type SendDMAction struct {
	Content string
}

func (a *SendDMAction) Type() string { return "send_dm" }

func (a *SendDMAction) Do(ctx context.Context, d *Dispatcher, ec *ExecContext) error {
	if ec.UserID == "" {
		return nil
	}
	return d.session.SendDM(ctx, ec.UserID, FormatMessage(a.Content, ec.Vars))
}

// InvokeWebhookAction POSTs the execution context to an external URL.
type InvokeWebhookAction struct {
	URL string
}

func (a *InvokeWebhookAction) Type() string { return "invoke_webhook" }

func (a *InvokeWebhookAction) Do(ctx context.Context, d *Dispatcher, ec *ExecContext) error {
	url := resolveField(a.URL, ec)
	if url == "" {
		return nil
	}

	status, err := d.session.PostWebhook(ctx, url, map[string]any{
		"guild_id":   ec.GuildID,
		"channel_id": ec.ChannelID,
		"user_id":    ec.UserID,
		"username":   ec.Username,
	})
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("webhook returned status %d", status)
	}
	return nil
}

// CreateRoleAction creates a new role in the guild.
type CreateRoleAction struct {
	Name string
}

func (a *CreateRoleAction) Type() string { return "create_role" }

func (a *CreateRoleAction) Do(ctx context.Context, d *Dispatcher, ec *ExecContext) error {
	name := resolveField(a.Name, ec)
	if name == "" {
		return nil
	}
	_, err := d.session.CreateRole(ctx, ec.GuildID, name)
	return err
}

// DelayAction suspends this action chain only; other work proceeds.
type DelayAction struct {
	Seconds float64
}

func (a *DelayAction) Type() string { return "delay" }

func (a *DelayAction) Do(ctx context.Context, d *Dispatcher, ec *ExecContext) error {
	if a.Seconds <= 0 {
		return nil
	}
	select {
	case <-time.After(time.Duration(a.Seconds * float64(time.Second))):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TriggerHookAction runs another hook's pipeline. A missing or disabled
// target is a no-op; recursion depth is bounded by the dispatcher.
type TriggerHookAction struct {
	HookID string
}

func (a *TriggerHookAction) Type() string { return "trigger_hook" }

func (a *TriggerHookAction) Do(ctx context.Context, d *Dispatcher, ec *ExecContext) error {
	hookID := resolveField(a.HookID, ec)
	if hookID == "" {
		return nil
	}
	return d.engine.triggerChained(ctx, hookID, ec)
}

// UnknownAction preserves actions with unrecognized types as no-ops.
type UnknownAction struct {
	RawType string
}

func (a *UnknownAction) Type() string { return a.RawType }

func (a *UnknownAction) Do(ctx context.Context, d *Dispatcher, ec *ExecContext) error {
	return nil
}

// Dispatcher runs action pipelines against the platform session.
type Dispatcher struct {
	session platform.Session
	engine  *Engine
}

// Execute runs actions strictly in order. A failing action is logged and
// counted; the remaining actions still run. Returns the failure count.
func (d *Dispatcher) Execute(ctx context.Context, actions []Action, ec *ExecContext) int {
	failed := 0
	for _, action := range actions {
		if err := action.Do(ctx, d, ec); err != nil {
			failed++
			log.Warn().
				Err(err).
				Str("action", action.Type()).
				Str("guild_id", ec.GuildID).
				Msg("Action failed, continuing pipeline")
		}
	}
	return failed
}
