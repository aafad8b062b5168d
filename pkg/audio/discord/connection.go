package discord

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/voxbars/pkg/audio"
	"github.com/bwmarrin/discordgo"
)

// Compile-time interface assertion.
var _ audio.Connection = (*Connection)(nil)

const inputChannelBuffer = 64

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// [audio.Connection] interface. It demuxes incoming Opus packets by SSRC
// into per-participant PCM input streams.
//
// Streams are keyed by Discord user ID once the SSRC has been announced by a
// speaking update, and by the decimal SSRC before that.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc      *discordgo.VoiceConnection
	session *discordgo.Session
	guildID string

	inputsMu sync.RWMutex
	inputs   map[string]chan audio.AudioFrame // keyed by participant ID
	ssrcUser map[uint32]string                // SSRC -> user ID, from speaking updates

	changeCb func(audio.Event)
	changeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	removeHandler func() // removes the VoiceStateUpdate handler

	// disconnectVC is called during Disconnect to tear down the voice connection.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newConnection initialises a Connection for an already-joined voice channel
// and starts the receive loop.
func newConnection(vc *discordgo.VoiceConnection, session *discordgo.Session, guildID string) (*Connection, error) {
	c := &Connection{
		vc:           vc,
		session:      session,
		guildID:      guildID,
		inputs:       make(map[string]chan audio.AudioFrame),
		ssrcUser:     make(map[uint32]string),
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}

	c.removeHandler = session.AddHandler(c.handleVoiceStateUpdate)
	vc.AddHandler(c.handleSpeakingUpdate)

	go c.recvLoop()

	return c, nil
}

// InputStreams returns a snapshot of the current per-participant audio channels.
func (c *Connection) InputStreams() map[string]<-chan audio.AudioFrame {
	c.inputsMu.RLock()
	defer c.inputsMu.RUnlock()
	snap := make(map[string]<-chan audio.AudioFrame, len(c.inputs))
	for id, ch := range c.inputs {
		snap[id] = ch
	}
	return snap
}

// OnParticipantChange registers cb as the callback for participant events.
// Only one callback may be registered; subsequent calls replace the previous one.
func (c *Connection) OnParticipantChange(cb func(audio.Event)) {
	c.changeMu.Lock()
	defer c.changeMu.Unlock()
	c.changeCb = cb
}

// Disconnect cleanly tears down the voice connection and stops the receive
// loop. It is safe to call more than once; subsequent calls return nil.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		if c.removeHandler != nil {
			c.removeHandler()
		}

		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}

		// Close all input channels so downstream tracks see EOF.
		c.inputsMu.Lock()
		for id, ch := range c.inputs {
			close(ch)
			delete(c.inputs, id)
		}
		c.inputsMu.Unlock()
	})
	return err
}

// recvLoop reads Opus packets from the Discord voice connection, demuxes them
// by SSRC, decodes Opus to PCM, and delivers AudioFrames to per-participant channels.
func (c *Connection) recvLoop() {
	decoders := make(map[uint32]*opusDecoder)

	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-c.vc.OpusRecv:
			if !ok {
				select {
				case <-c.done:
				default:
					slog.Warn("discord: voice receive stream closed", "guild", c.guildID)
					c.emitEvent(audio.Event{Type: audio.EventDisconnect})
				}
				return
			}
			if pkt == nil {
				continue
			}

			dec, exists := decoders[pkt.SSRC]
			if !exists {
				var err error
				dec, err = newOpusDecoder()
				if err != nil {
					slog.Error("discord: failed to create opus decoder", "ssrc", pkt.SSRC, "error", err)
					continue
				}
				decoders[pkt.SSRC] = dec
			}

			pcm, err := dec.decode(pkt.Opus)
			if err != nil {
				slog.Warn("discord: opus decode error", "ssrc", pkt.SSRC, "error", err)
				continue
			}

			c.deliver(pkt.SSRC, audio.AudioFrame{
				Data:       pcm,
				SampleRate: opusSampleRate,
				Channels:   opusChannels,
				Timestamp:  time.Duration(pkt.Timestamp) * time.Second / time.Duration(opusSampleRate),
			})
		}
	}
}

// deliver sends frame to the participant's input channel, creating the
// channel on first use. Full channels drop the frame rather than block.
func (c *Connection) deliver(ssrc uint32, frame audio.AudioFrame) {
	c.inputsMu.Lock()
	select {
	case <-c.done:
		c.inputsMu.Unlock()
		return
	default:
	}
	id := c.participantID(ssrc)
	ch, exists := c.inputs[id]
	if !exists {
		ch = make(chan audio.AudioFrame, inputChannelBuffer)
		c.inputs[id] = ch
	}
	select {
	case ch <- frame:
	default:
	}
	c.inputsMu.Unlock()

	if !exists {
		c.emitEvent(audio.Event{Type: audio.EventJoin, UserID: id})
	}
}

// participantID resolves ssrc to a stream key. Caller must hold inputsMu.
func (c *Connection) participantID(ssrc uint32) string {
	if userID, ok := c.ssrcUser[ssrc]; ok {
		return userID
	}
	return strconv.FormatUint(uint64(ssrc), 10)
}

// handleSpeakingUpdate records the SSRC announced for a user so later packets
// are keyed by user ID. A stream already opened under the bare SSRC is closed
// and reported as left; the next packet reopens it under the user ID.
func (c *Connection) handleSpeakingUpdate(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
	if vs == nil || vs.UserID == "" {
		return
	}
	ssrc := uint32(vs.SSRC)
	key := strconv.FormatUint(uint64(ssrc), 10)

	c.inputsMu.Lock()
	if c.ssrcUser[ssrc] == vs.UserID {
		c.inputsMu.Unlock()
		return
	}
	c.ssrcUser[ssrc] = vs.UserID
	ch, retired := c.inputs[key]
	if retired {
		close(ch)
		delete(c.inputs, key)
	}
	c.inputsMu.Unlock()

	if retired {
		slog.Debug("discord: stream re-keyed to user", "ssrc", ssrc, "user", vs.UserID)
		c.emitEvent(audio.Event{Type: audio.EventLeave, UserID: key})
	}
}

// handleVoiceStateUpdate processes Discord VoiceStateUpdate events to detect
// participant joins and leaves for the voice channel this connection is on.
func (c *Connection) handleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.GuildID != c.guildID {
		return
	}

	channelID := c.vc.ChannelID
	username := ""
	if vsu.Member != nil && vsu.Member.User != nil {
		username = vsu.Member.User.Username
	}

	// Participant left our channel.
	if vsu.BeforeUpdate != nil && vsu.BeforeUpdate.ChannelID == channelID && vsu.ChannelID != channelID {
		c.closeInput(vsu.UserID)
		c.emitEvent(audio.Event{
			Type:     audio.EventLeave,
			UserID:   vsu.UserID,
			Username: username,
		})
		return
	}

	// Participant joined our channel.
	if vsu.ChannelID == channelID && (vsu.BeforeUpdate == nil || vsu.BeforeUpdate.ChannelID != channelID) {
		c.emitEvent(audio.Event{
			Type:     audio.EventJoin,
			UserID:   vsu.UserID,
			Username: username,
		})
	}
}

// closeInput closes and forgets the input stream of userID, if any.
func (c *Connection) closeInput(userID string) {
	c.inputsMu.Lock()
	defer c.inputsMu.Unlock()
	if ch, ok := c.inputs[userID]; ok {
		close(ch)
		delete(c.inputs, userID)
	}
	for ssrc, id := range c.ssrcUser {
		if id == userID {
			delete(c.ssrcUser, ssrc)
		}
	}
}

// emitEvent safely invokes the registered participant change callback.
func (c *Connection) emitEvent(ev audio.Event) {
	c.changeMu.Lock()
	cb := c.changeCb
	c.changeMu.Unlock()
	if cb != nil {
		go cb(ev)
	}
}
