// Package commands implements the voxbars Discord slash commands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voxbars/internal/discord"
)

// refreshID is the custom_id of the status embed's refresh button.
const refreshID = "viz_refresh"

// commandTimeout bounds voice joins and teardown started from a command.
const commandTimeout = 30 * time.Second

// Controller is what the /viz commands drive. The application's session
// manager implements it.
type Controller interface {
	// Follow joins channelID (when not already there) and attaches the
	// visualiser to userID. An empty userID follows the first speaker.
	Follow(ctx context.Context, channelID, userID, requestedBy string) error

	// Stop detaches the visualiser and leaves the voice channel.
	Stop(ctx context.Context) error

	// Status describes the current visualiser state.
	Status() discord.Status
}

// VoiceLocator returns the voice channel a user is connected to.
type VoiceLocator func(userID string) (string, error)

// VizCommands holds the dependencies for the /viz slash commands.
type VizCommands struct {
	ctrl   Controller
	perms  *discord.PermissionChecker
	locate VoiceLocator
	stats  *discord.ProcessingStats
	sender discord.MessageSender

	// ctx outlives individual interactions; dashboards stop with it.
	ctx context.Context

	mu        sync.Mutex
	dashboard *discord.Dashboard
}

// Config holds the dependencies for [NewVizCommands].
type Config struct {
	Controller  Controller
	Permissions *discord.PermissionChecker
	Locate      VoiceLocator
	Stats       *discord.ProcessingStats

	// Sender posts the live dashboard. When nil, /viz dashboard is refused.
	Sender discord.MessageSender
}

// NewVizCommands creates a VizCommands. ctx bounds background work such
// as the live dashboard.
func NewVizCommands(ctx context.Context, cfg Config) *VizCommands {
	return &VizCommands{
		ctrl:   cfg.Controller,
		perms:  cfg.Permissions,
		locate: cfg.Locate,
		stats:  cfg.Stats,
		sender: cfg.Sender,
		ctx:    ctx,
	}
}

// Register registers the /viz command group with the router.
func (vc *VizCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("viz", vc.Definition(), func(r discord.Responder, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(r, i, "Please use a subcommand: `/viz follow`, `/viz stop`, `/viz status` or `/viz dashboard`.")
	})
	router.RegisterHandler("viz/follow", vc.handleFollow)
	router.RegisterHandler("viz/stop", vc.handleStop)
	router.RegisterHandler("viz/status", vc.handleStatus)
	router.RegisterHandler("viz/dashboard", vc.handleDashboard)
	router.RegisterComponent(refreshID, vc.handleRefresh)
}

// Definition returns the ApplicationCommand definition for Discord.
func (vc *VizCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "viz",
		Description: "Control the voice visualiser",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "follow",
				Description: "Visualise a participant's voice",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "user",
						Description: "Who to follow (defaults to you)",
					},
					{
						Type:         discordgo.ApplicationCommandOptionChannel,
						Name:         "channel",
						Description:  "Voice channel to join (defaults to the user's)",
						ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice},
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "stop",
				Description: "Stop visualising and leave the voice channel",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "status",
				Description: "Show the current bars and pipeline status",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "dashboard",
				Description: "Toggle a live status embed in this channel",
			},
		},
	}
}

// handleFollow handles /viz follow.
func (vc *VizCommands) handleFollow(r discord.Responder, i *discordgo.InteractionCreate) {
	if !vc.perms.CanControl(i) {
		discord.RespondEphemeral(r, i, "You need the control role to move the visualiser.")
		return
	}

	invoker := discord.InteractionUserID(i)
	target := subcommandIDOption(i, "user")
	if target == "" {
		target = invoker
	}

	channelID := subcommandIDOption(i, "channel")
	if channelID == "" {
		var err error
		channelID, err = vc.locateAny(target, invoker)
		if err != nil {
			discord.RespondEphemeral(r, i, "Join a voice channel first, or pass `channel`.")
			return
		}
	}

	// Joining voice can take a few seconds.
	discord.DeferReply(r, i)

	ctx, cancel := context.WithTimeout(vc.ctx, commandTimeout)
	defer cancel()

	if err := vc.ctrl.Follow(ctx, channelID, target, invoker); err != nil {
		slog.Warn("viz: follow failed", "channel", channelID, "user", target, "err", err)
		discord.FollowUp(r, i, fmt.Sprintf("Failed to follow: %v", err))
		return
	}
	discord.FollowUp(r, i, fmt.Sprintf("Following <@%s> in <#%s>.", target, channelID))
}

// locateAny returns the voice channel of the first user found in one.
func (vc *VizCommands) locateAny(userIDs ...string) (string, error) {
	if vc.locate == nil {
		return "", discord.ErrNotInVoice
	}
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if ch, err := vc.locate(id); err == nil {
			return ch, nil
		}
	}
	return "", discord.ErrNotInVoice
}

// handleStop handles /viz stop.
func (vc *VizCommands) handleStop(r discord.Responder, i *discordgo.InteractionCreate) {
	if !vc.perms.CanControl(i) {
		discord.RespondEphemeral(r, i, "You need the control role to stop the visualiser.")
		return
	}

	st := vc.ctrl.Status()
	if !st.Active {
		discord.RespondEphemeral(r, i, "The visualiser is not running.")
		return
	}

	ctx, cancel := context.WithTimeout(vc.ctx, commandTimeout)
	defer cancel()

	if err := vc.ctrl.Stop(ctx); err != nil {
		discord.RespondError(r, i, fmt.Errorf("stop visualiser: %w", err))
		return
	}
	discord.RespondEphemeral(r, i, fmt.Sprintf("Stopped after %s.", time.Since(st.StartedAt).Truncate(time.Second)))
}

// handleStatus handles /viz status.
func (vc *VizCommands) handleStatus(r discord.Responder, i *discordgo.InteractionCreate) {
	err := r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{vc.statusEmbed()},
			Components: refreshRow(),
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Warn("viz: failed to send status", "err", err)
	}
}

// handleRefresh re-renders the status embed the button is attached to.
func (vc *VizCommands) handleRefresh(r discord.Responder, i *discordgo.InteractionCreate) {
	discord.UpdateEmbed(r, i, vc.statusEmbed())
}

// handleDashboard handles /viz dashboard.
func (vc *VizCommands) handleDashboard(r discord.Responder, i *discordgo.InteractionCreate) {
	if !vc.perms.CanControl(i) {
		discord.RespondEphemeral(r, i, "You need the control role to manage the dashboard.")
		return
	}
	if vc.sender == nil {
		discord.RespondEphemeral(r, i, "The dashboard is not available.")
		return
	}

	vc.mu.Lock()
	defer vc.mu.Unlock()

	if vc.dashboard != nil {
		vc.dashboard.Stop()
		channelID := vc.dashboard.ChannelID()
		vc.dashboard = nil
		discord.RespondEphemeral(r, i, fmt.Sprintf("Dashboard in <#%s> stopped.", channelID))
		return
	}

	d := discord.NewDashboard(discord.DashboardConfig{
		Sender:    vc.sender,
		ChannelID: i.ChannelID,
		GetStatus: vc.ctrl.Status,
		Stats:     vc.stats,
	})
	d.Start(vc.ctx)
	vc.dashboard = d
	discord.RespondEphemeral(r, i, "Dashboard started.")
}

// StopDashboard stops the live dashboard, if one is running.
func (vc *VizCommands) StopDashboard() {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	if vc.dashboard != nil {
		vc.dashboard.Stop()
		vc.dashboard = nil
	}
}

func (vc *VizCommands) statusEmbed() *discordgo.MessageEmbed {
	var snap discord.StatsSnapshot
	if vc.stats != nil {
		snap = vc.stats.Snapshot()
	}
	return discord.BuildStatusEmbed(vc.ctrl.Status(), snap)
}

func refreshRow() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Refresh", Style: discordgo.SecondaryButton, CustomID: refreshID},
		}},
	}
}

// subcommandIDOption extracts a user or channel option from a subcommand
// interaction. Both carry a snowflake string.
func subcommandIDOption(i *discordgo.InteractionCreate, name string) string {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 || data.Options[0].Type != discordgo.ApplicationCommandOptionSubCommand {
		return ""
	}
	for _, opt := range data.Options[0].Options {
		if opt.Name != name {
			continue
		}
		if id, ok := opt.Value.(string); ok {
			return id
		}
	}
	return ""
}
