// Package discord captures audio from a Discord voice channel.
//
// Discord delivers 48 kHz stereo Opus packets tagged with an SSRC and sends
// nothing while nobody talks. The source decodes each SSRC with its own
// decoder and paces output with a 20 ms frame clock: every tick mixes one
// queued frame per speaker, or emits silence when none is queued, so chunks
// keep wall-clock cadence. When a user filter is set, only packets whose
// SSRC was announced for that user through a speaking update are kept.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"

	"github.com/MrWong99/hearken/pkg/audio"
	"github.com/MrWong99/hearken/pkg/audio/capture"
)

// Discord voice is 48 kHz stereo Opus in 20 ms frames.
const (
	opusSampleRate = 48000
	opusChannels   = 2
	opusFrameSize  = opusSampleRate * 20 / 1000
	frameInterval  = 20 * time.Millisecond

	defaultRate = 16000

	// maxQueued caps the frames buffered per speaker. Older frames are
	// dropped once a burst exceeds it.
	maxQueued = 25
)

var opusFormat = audio.Format{SampleRate: opusSampleRate, Channels: opusChannels}

// Option configures a [Source].
type Option func(*Source)

// WithUser keeps only audio spoken by userID.
func WithUser(userID string) Option {
	return func(s *Source) { s.userID = userID }
}

// WithSampleRate sets the rate of delivered chunks. Default: 16000.
func WithSampleRate(rate int) Option {
	return func(s *Source) { s.rate = rate }
}

// OpenSession connects a bot session with the intents voice capture needs.
// The caller closes the session.
func OpenSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	return session, nil
}

// Source listens in a voice channel for the duration of each Stream call.
type Source struct {
	rate   int
	userID string

	// join connects to the voice channel. Replaced in tests.
	join func() (*discordgo.VoiceConnection, error)
	// leave disconnects from the voice channel. Replaced in tests.
	leave func(*discordgo.VoiceConnection) error
	// ticks paces frames. Replaced in tests.
	ticks func(time.Duration) (<-chan time.Time, func())
}

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

var _ capture.Source = (*Source)(nil)

// New returns a Source joining channelID in guildID through session. The
// bot joins muted, since it only listens.
func New(session *discordgo.Session, guildID, channelID string, opts ...Option) *Source {
	s := &Source{
		rate: defaultRate,
		join: func() (*discordgo.VoiceConnection, error) {
			return session.ChannelVoiceJoin(guildID, channelID, true, false)
		},
		leave: func(vc *discordgo.VoiceConnection) error { return vc.Disconnect() },
		ticks: realTicker,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Source) Format() audio.Format {
	return audio.Format{SampleRate: s.rate, Channels: 1}
}

// Stream joins the channel and delivers decoded audio until fn returns
// false, ctx is cancelled or Discord closes the receive channel.
func (s *Source) Stream(ctx context.Context, chunk time.Duration, fn func(audio.Chunk) bool) error {
	vc, err := s.join()
	if err != nil {
		return fmt.Errorf("discord: join voice channel: %w", err)
	}
	defer func() {
		if err := s.leave(vc); err != nil {
			slog.Warn("discord: leave voice channel", "err", err)
		}
	}()

	ssrcs := &ssrcFilter{userID: s.userID, allowed: make(map[uint32]bool)}
	if s.userID != "" {
		vc.AddHandler(ssrcs.onSpeaking)
	}
	return s.receive(ctx, vc.OpusRecv, ssrcs, chunk, fn)
}

// receive emits one 20 ms frame per tick until ctx ends, fn declines or
// the packet channel closes. On close, frames still queued are delivered
// without waiting for the clock.
func (s *Source) receive(ctx context.Context, recv <-chan *discordgo.Packet, ssrcs *ssrcFilter, chunk time.Duration, fn func(audio.Chunk) bool) error {
	mix := newSpeakers(ssrcs)
	conv := &audio.StreamConverter{Target: s.rate}
	chunker := capture.NewChunker(s.rate, chunk)
	emit := func() bool {
		return chunker.Push(conv.Convert(mix.next(), opusFormat).Samples, fn)
	}
	drain := func() error {
		for mix.pending() {
			if !emit() {
				return nil
			}
		}
		if !chunker.Flush(fn) {
			return nil
		}
		return capture.ErrEndOfStream
	}

	tick, stop := s.ticks(frameInterval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt, ok := <-recv:
			if !ok {
				return drain()
			}
			if err := mix.add(pkt); err != nil {
				return err
			}
		case <-tick:
			closed, err := mix.collect(recv)
			if err != nil {
				return err
			}
			if closed {
				return drain()
			}
			if !emit() {
				return nil
			}
		}
	}
}

// speakers decodes packets per SSRC and mixes concurrent speakers one frame
// at a time. Not safe for concurrent use.
type speakers struct {
	filter   *ssrcFilter
	decoders map[uint32]*gopus.Decoder
	queued   map[uint32][][]int16
}

func newSpeakers(filter *ssrcFilter) *speakers {
	return &speakers{
		filter:   filter,
		decoders: make(map[uint32]*gopus.Decoder),
		queued:   make(map[uint32][][]int16),
	}
}

// add decodes pkt into its speaker's queue. Undecodable packets are logged
// and skipped; only a decoder that cannot be created is an error.
func (m *speakers) add(pkt *discordgo.Packet) error {
	if pkt == nil || !m.filter.allow(pkt.SSRC) {
		return nil
	}
	dec, ok := m.decoders[pkt.SSRC]
	if !ok {
		var err error
		dec, err = gopus.NewDecoder(opusSampleRate, opusChannels)
		if err != nil {
			return fmt.Errorf("discord: create opus decoder: %w", err)
		}
		m.decoders[pkt.SSRC] = dec
	}
	pcm, err := dec.Decode(pkt.Opus, opusFrameSize, false)
	if err != nil {
		slog.Warn("discord: opus decode error", "ssrc", pkt.SSRC, "err", err)
		return nil
	}
	q := append(m.queued[pkt.SSRC], pcm)
	if len(q) > maxQueued {
		slog.Debug("discord: speaker queue full, dropping oldest frame", "ssrc", pkt.SSRC)
		q = q[1:]
	}
	m.queued[pkt.SSRC] = q
	return nil
}

// collect takes every packet already waiting on recv without blocking and
// reports whether recv is closed.
func (m *speakers) collect(recv <-chan *discordgo.Packet) (bool, error) {
	for {
		select {
		case pkt, ok := <-recv:
			if !ok {
				return true, nil
			}
			if err := m.add(pkt); err != nil {
				return false, err
			}
		default:
			return false, nil
		}
	}
}

func (m *speakers) pending() bool {
	for _, q := range m.queued {
		if len(q) > 0 {
			return true
		}
	}
	return false
}

// next pops one frame per queued speaker and averages them. With nobody
// queued it returns a silent frame.
func (m *speakers) next() []int16 {
	const n = opusFrameSize * opusChannels
	var sum [n]int32
	voices := int32(0)
	for ssrc, q := range m.queued {
		if len(q) == 0 {
			delete(m.queued, ssrc)
			continue
		}
		for i, v := range q[0][:min(len(q[0]), n)] {
			sum[i] += int32(v)
		}
		m.queued[ssrc] = q[1:]
		voices++
	}
	frame := make([]int16, n)
	if voices == 0 {
		return frame
	}
	for i, v := range sum {
		frame[i] = int16(v / voices)
	}
	return frame
}

// ssrcFilter tracks which SSRCs belong to the configured user.
type ssrcFilter struct {
	userID string

	mu      sync.Mutex
	allowed map[uint32]bool
}

func (f *ssrcFilter) onSpeaking(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
	if vs.UserID != f.userID {
		return
	}
	f.mu.Lock()
	f.allowed[uint32(vs.SSRC)] = true
	f.mu.Unlock()
}

func (f *ssrcFilter) allow(ssrc uint32) bool {
	if f.userID == "" {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allowed[ssrc]
}
