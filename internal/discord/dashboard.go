package discord

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voxbars/pkg/viz"
)

// Status is the visualiser state rendered into Discord embeds.
type Status struct {
	Active      bool
	SessionID   string
	ChannelID   string
	Participant string
	StartedAt   time.Time
	Mode        string

	Bars         []float32
	MinAmplitude float32

	// Agents maps participant IDs to their published agent state.
	Agents map[string]string

	// Segments is the number of transcript segments recorded.
	Segments int

	// Err describes why the bars are frozen, if they are.
	Err string
}

// MessageSender is the subset of *discordgo.Session the dashboard needs.
type MessageSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Compile-time interface assertion.
var _ MessageSender = (*discordgo.Session)(nil)

// embedColorGreen is the embed sidebar color while following a participant.
const embedColorGreen = 0x2ECC71

// embedColorAmber is the embed sidebar color while idle or frozen.
const embedColorAmber = 0xF39C12

// embedColorRed is the embed sidebar color when the dashboard has stopped.
const embedColorRed = 0xE74C3C

// defaultInterval is the default dashboard update interval. Discord rate
// limits message edits, so this is far slower than any renderer.
const defaultInterval = 5 * time.Second

// Dashboard keeps a Discord embed in a text channel updated with the live
// bars. The embed is created on the first update and edited in place.
//
// Thread-safe for concurrent use.
type Dashboard struct {
	mu        sync.Mutex
	sender    MessageSender
	channelID string
	messageID string // embed message; created on first update
	interval  time.Duration
	getStatus func() Status
	stats     *ProcessingStats
	done      chan struct{}
	stopOnce  sync.Once
}

// DashboardConfig holds dependencies for creating a Dashboard.
type DashboardConfig struct {
	Sender    MessageSender
	ChannelID string
	Interval  time.Duration // Default: 5 seconds
	GetStatus func() Status
	Stats     *ProcessingStats
}

// NewDashboard creates a Dashboard.
func NewDashboard(cfg DashboardConfig) *Dashboard {
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultInterval
	}
	return &Dashboard{
		sender:    cfg.Sender,
		channelID: cfg.ChannelID,
		interval:  interval,
		getStatus: cfg.GetStatus,
		stats:     cfg.Stats,
		done:      make(chan struct{}),
	}
}

// ChannelID returns the text channel the dashboard posts to.
func (d *Dashboard) ChannelID() string { return d.channelID }

// MessageID returns the embed message ID, or "" before the first update.
func (d *Dashboard) MessageID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.messageID
}

// Start begins the periodic update loop in a background goroutine.
func (d *Dashboard) Start(ctx context.Context) {
	go d.loop(ctx)
}

// Stop halts the periodic update loop and marks the embed as stopped.
func (d *Dashboard) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
		d.postFinalEmbed()
	})
}

func (d *Dashboard) loop(ctx context.Context) {
	d.update()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.update()
		}
	}
}

func (d *Dashboard) snapshot() StatsSnapshot {
	if d.stats == nil {
		return StatsSnapshot{}
	}
	return d.stats.Snapshot()
}

// update builds the embed from the current status and creates or edits the
// message.
func (d *Dashboard) update() {
	embed := BuildStatusEmbed(d.getStatus(), d.snapshot())

	d.mu.Lock()
	defer d.mu.Unlock()

	select {
	case <-d.done:
		return
	default:
	}

	if d.messageID == "" {
		msg, err := d.sender.ChannelMessageSendEmbed(d.channelID, embed)
		if err != nil {
			slog.Warn("dashboard: failed to create embed message", "channel", d.channelID, "err", err)
			return
		}
		d.messageID = msg.ID
		slog.Debug("dashboard: created embed message", "message_id", msg.ID, "channel", d.channelID)
		return
	}
	if _, err := d.sender.ChannelMessageEditEmbed(d.channelID, d.messageID, embed); err != nil {
		slog.Warn("dashboard: failed to edit embed message", "message_id", d.messageID, "err", err)
	}
}

func (d *Dashboard) postFinalEmbed() {
	embed := buildStoppedEmbed(d.getStatus(), d.snapshot())

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.messageID == "" {
		return
	}
	if _, err := d.sender.ChannelMessageEditEmbed(d.channelID, d.messageID, embed); err != nil {
		slog.Warn("dashboard: failed to post final embed", "message_id", d.messageID, "err", err)
	}
}

// BuildStatusEmbed renders st and snap as the live status embed.
func BuildStatusEmbed(st Status, snap StatsSnapshot) *discordgo.MessageEmbed {
	if !st.Active {
		return &discordgo.MessageEmbed{
			Title:       "Visualiser",
			Description: "Not following anyone. Use `/viz follow` to start.",
			Color:       embedColorAmber,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}
	}

	color := embedColorGreen
	description := "```\n" + viz.Blocks(st.Bars, st.MinAmplitude) + "\n```"
	if st.Err != "" {
		color = embedColorAmber
		description += "\nFrozen: " + st.Err
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Following", Value: mentionOrNone(st.Participant), Inline: true},
		{Name: "Channel", Value: channelOrNone(st.ChannelID), Inline: true},
		{Name: "Mode", Value: st.Mode, Inline: true},
		{Name: "Uptime", Value: formatDuration(time.Since(st.StartedAt)), Inline: true},
		{Name: "Updates", Value: fmt.Sprintf("%d", snap.Updates), Inline: true},
		{Name: "Transcript", Value: fmt.Sprintf("%d segments", st.Segments), Inline: true},
	}
	if latency := formatLatencyField(snap); latency != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "Processing Latency",
			Value: latency,
		})
	}
	if agents := formatAgentsField(st.Agents); agents != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "Agents",
			Value: agents,
		})
	}

	return &discordgo.MessageEmbed{
		Title:       "Visualiser",
		Description: description,
		Color:       color,
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Session " + st.SessionID,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// buildStoppedEmbed creates the final embed posted when the dashboard stops.
func buildStoppedEmbed(st Status, snap StatsSnapshot) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Updates", Value: fmt.Sprintf("%d", snap.Updates), Inline: true},
		{Name: "Errors", Value: fmt.Sprintf("%d", snap.Errors), Inline: true},
		{Name: "Transcript", Value: fmt.Sprintf("%d segments", st.Segments), Inline: true},
	}
	return &discordgo.MessageEmbed{
		Title:       "Visualiser",
		Description: "Dashboard stopped.",
		Color:       embedColorRed,
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Stopped",
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// formatLatencyField builds a compact multi-line string showing processing
// latencies. Returns empty string if no latency data is available.
func formatLatencyField(snap StatsSnapshot) string {
	var lines []string
	if snap.Volume.P50 > 0 || snap.Volume.P95 > 0 {
		lines = append(lines, fmt.Sprintf("Volume:   p50=%s p95=%s", formatMicros(snap.Volume.P50), formatMicros(snap.Volume.P95)))
	}
	if snap.Spectrum.P50 > 0 || snap.Spectrum.P95 > 0 {
		lines = append(lines, fmt.Sprintf("Spectrum: p50=%s p95=%s", formatMicros(snap.Spectrum.P50), formatMicros(snap.Spectrum.P95)))
	}
	if len(lines) == 0 {
		return ""
	}
	return "```\n" + strings.Join(lines, "\n") + "\n```"
}

// formatAgentsField lists agent states sorted by participant ID.
func formatAgentsField(agents map[string]string) string {
	if len(agents) == 0 {
		return ""
	}
	var lines []string
	for _, id := range slices.Sorted(maps.Keys(agents)) {
		lines = append(lines, fmt.Sprintf("<@%s>: %s", id, agents[id]))
	}
	return strings.Join(lines, "\n")
}

// formatMicros formats a duration as microseconds with one decimal place.
func formatMicros(d time.Duration) string {
	us := float64(d) / float64(time.Microsecond)
	return fmt.Sprintf("%.1fµs", us)
}

// formatDuration formats a duration as "Xh Ym Zs".
func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func mentionOrNone(userID string) string {
	if userID == "" {
		return "first speaker"
	}
	return "<@" + userID + ">"
}

func channelOrNone(channelID string) string {
	if channelID == "" {
		return "(none)"
	}
	return "<#" + channelID + ">"
}
