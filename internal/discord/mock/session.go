// Package mock provides test doubles for Discord interaction testing.
package mock

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// ─── InteractionResponder ────────────────────────────────────────────────────

// InteractionResponder records interaction responses for test assertions.
// It implements discord.Responder.
type InteractionResponder struct {
	mu sync.Mutex

	// Responses records all InteractionRespond calls.
	Responses []*discordgo.InteractionResponse

	// FollowUps records all FollowupMessageCreate calls.
	FollowUps []*discordgo.WebhookParams

	// Err is returned by InteractionRespond and FollowupMessageCreate
	// when non-nil, allowing error injection.
	Err error
}

// InteractionRespond records the response and returns the configured error.
func (m *InteractionResponder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = append(m.Responses, resp)
	return m.Err
}

// FollowupMessageCreate records the follow-up and returns a stub message.
func (m *InteractionResponder) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, params *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FollowUps = append(m.FollowUps, params)
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-followup"}, nil
}

// LastResponse returns the most recently recorded response, or nil.
func (m *InteractionResponder) LastResponse() *discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Responses) == 0 {
		return nil
	}
	return m.Responses[len(m.Responses)-1]
}

// LastFollowUp returns the most recently recorded follow-up, or nil.
func (m *InteractionResponder) LastFollowUp() *discordgo.WebhookParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.FollowUps) == 0 {
		return nil
	}
	return m.FollowUps[len(m.FollowUps)-1]
}

// LastContent returns the text of the most recent follow-up if any,
// otherwise of the most recent response.
func (m *InteractionResponder) LastContent() string {
	if f := m.LastFollowUp(); f != nil {
		return f.Content
	}
	if r := m.LastResponse(); r != nil && r.Data != nil {
		return r.Data.Content
	}
	return ""
}

// Reset clears all recorded interactions and errors.
func (m *InteractionResponder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = nil
	m.FollowUps = nil
	m.Err = nil
}

// ─── MessageSender ───────────────────────────────────────────────────────────

// EmbedCall records one embed send or edit.
type EmbedCall struct {
	ChannelID string
	MessageID string // empty for sends
	Embed     *discordgo.MessageEmbed
}

// MessageSender records channel embed messages. It implements
// discord.MessageSender.
type MessageSender struct {
	mu sync.Mutex

	// Sends records all ChannelMessageSendEmbed calls.
	Sends []EmbedCall

	// Edits records all ChannelMessageEditEmbed calls.
	Edits []EmbedCall

	// Err is returned by both methods when non-nil.
	Err error
}

// ChannelMessageSendEmbed records the call and returns a message with a
// sequential ID.
func (m *MessageSender) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sends = append(m.Sends, EmbedCall{ChannelID: channelID, Embed: embed})
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: fmt.Sprintf("msg-%d", len(m.Sends)), ChannelID: channelID}, nil
}

// ChannelMessageEditEmbed records the call.
func (m *MessageSender) ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Edits = append(m.Edits, EmbedCall{ChannelID: channelID, MessageID: messageID, Embed: embed})
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: messageID, ChannelID: channelID}, nil
}

// SendCount returns the number of sends recorded.
func (m *MessageSender) SendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sends)
}

// EditCount returns the number of edits recorded.
func (m *MessageSender) EditCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Edits)
}

// LastEdit returns the most recent edit, or the zero value.
func (m *MessageSender) LastEdit() EmbedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Edits) == 0 {
		return EmbedCall{}
	}
	return m.Edits[len(m.Edits)-1]
}
