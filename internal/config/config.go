// Package config provides the configuration schema, loader and component
// registry for hearken.
//
// Configuration files are YAML or TOML, chosen by file extension. ${VAR}
// references are expanded from the environment before decoding, and a .env
// file next to the configuration is loaded first when present.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded with [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Audio      AudioConfig      `yaml:"audio" toml:"audio"`
	Recognizer RecognizerConfig `yaml:"recognizer" toml:"recognizer"`
	Wake       WakeConfig       `yaml:"wake" toml:"wake"`
	Listen     ListenConfig     `yaml:"listen" toml:"listen"`
	Assistant  AssistantConfig  `yaml:"assistant" toml:"assistant"`
	LLM        LLMConfig        `yaml:"llm" toml:"llm"`
	Journal    JournalConfig    `yaml:"journal" toml:"journal"`
	Discord    DiscordConfig    `yaml:"discord" toml:"discord"`
}

// ServerConfig holds the metrics/health listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP server (e.g., ":9090").
	// Empty disables the server.
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level" toml:"log_level"`
}

// AudioConfig selects and tunes the capture source.
type AudioConfig struct {
	// Source names a registered capture source: "mic", "file" or "discord".
	Source string `yaml:"source" toml:"source"`

	// Device selects the input device by name; "" or "default" means the
	// system default.
	Device string `yaml:"device" toml:"device"`

	// File is the WAV file replayed by the "file" source.
	File string `yaml:"file" toml:"file"`

	// SampleRate is the recognizer sample rate in Hz.
	SampleRate int `yaml:"sample_rate" toml:"sample_rate"`

	// Chunk is the capture chunk duration for command episodes.
	Chunk time.Duration `yaml:"chunk" toml:"chunk"`

	Channels int `yaml:"channels" toml:"channels"`

	// RecordingsDir receives WAV files written by the record command.
	RecordingsDir string `yaml:"recordings_dir" toml:"recordings_dir"`
}

// RecognizerEntry configures one speech recognition engine.
type RecognizerEntry struct {
	// Name selects the registered engine: "vosk", "whisper",
	// "whisper-native" or "deepgram".
	Name string `yaml:"name" toml:"name"`

	// ModelPath is the model file for native engines.
	ModelPath string `yaml:"model_path" toml:"model_path"`

	// URL is the server endpoint for networked engines.
	URL string `yaml:"url" toml:"url"`

	APIKey string `yaml:"api_key" toml:"api_key"`

	// Model selects a hosted model (e.g., "nova-2", "base.en").
	Model string `yaml:"model" toml:"model"`

	Language string `yaml:"language" toml:"language"`

	// VADMode is the voice activity detector aggressiveness (0-3) used by
	// engines that gate audio themselves.
	VADMode int `yaml:"vad_mode" toml:"vad_mode"`

	// VAD selects the gating detector for whisper engines: "energy" or
	// "webrtc".
	VAD string `yaml:"vad" toml:"vad"`
}

// RecognizerConfig is the primary engine plus ordered fallbacks.
type RecognizerConfig struct {
	RecognizerEntry `yaml:",inline"`

	Fallback []RecognizerEntry `yaml:"fallback" toml:"fallback"`
}

// WakeConfig configures the wake phrase matcher.
type WakeConfig struct {
	Phrase string `yaml:"phrase" toml:"phrase"`

	// MaxDistance is the per-word edit distance tolerance. Nil means 2.
	MaxDistance *int `yaml:"max_distance" toml:"max_distance"`

	// AllTokens accepts a candidate containing every phrase word in any
	// order. Nil means true.
	AllTokens *bool `yaml:"all_tokens" toml:"all_tokens"`

	Phonetic bool `yaml:"phonetic" toml:"phonetic"`

	// PhoneticThreshold is the Jaro-Winkler similarity required alongside a
	// phonetic code match.
	PhoneticThreshold float64 `yaml:"phonetic_threshold" toml:"phonetic_threshold"`

	// Chunk is the capture chunk duration while wake-spotting.
	Chunk time.Duration `yaml:"chunk" toml:"chunk"`
}

// ListenConfig holds the episode timings.
type ListenConfig struct {
	CommandTimeout time.Duration `yaml:"command_timeout" toml:"command_timeout"`
	Silence        time.Duration `yaml:"silence" toml:"silence"`
	WakeTimeout    time.Duration `yaml:"wake_timeout" toml:"wake_timeout"`
	QueueSize      int           `yaml:"queue_size" toml:"queue_size"`
}

// AssistantConfig configures the conversation loop.
type AssistantConfig struct {
	ExitPhrases    []string      `yaml:"exit_phrases" toml:"exit_phrases"`
	MaxHistory     int           `yaml:"max_history" toml:"max_history"`
	SessionTimeout time.Duration `yaml:"session_timeout" toml:"session_timeout"`
	Beep           BeepConfig    `yaml:"beep" toml:"beep"`

	// PlayBeep plays the cue on the default output device instead of
	// printing it.
	PlayBeep bool `yaml:"play_beep" toml:"play_beep"`
}

// BeepConfig describes the listening cue tone.
type BeepConfig struct {
	Frequency float64       `yaml:"frequency" toml:"frequency"`
	Duration  time.Duration `yaml:"duration" toml:"duration"`
}

// LLMConfig selects the chat backend.
type LLMConfig struct {
	// Name selects the registered provider (e.g., "ollama", "openai").
	Name string `yaml:"name" toml:"name"`

	Model   string `yaml:"model" toml:"model"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
	APIKey  string `yaml:"api_key" toml:"api_key"`

	SystemPrompt string `yaml:"system_prompt" toml:"system_prompt"`

	// Fallback lists backends tried in order when the primary fails.
	Fallback []LLMConfig `yaml:"fallback" toml:"fallback"`
}

// JournalConfig selects the episode journal backend.
type JournalConfig struct {
	// Backend is "memory", "sqlite" or "postgres".
	Backend string `yaml:"backend" toml:"backend"`

	// DSN is the SQLite file path or the PostgreSQL connection string.
	DSN string `yaml:"dsn" toml:"dsn"`

	// Capacity bounds the memory backend.
	Capacity int `yaml:"capacity" toml:"capacity"`
}

// DiscordConfig configures the Discord voice capture source.
type DiscordConfig struct {
	Token     string `yaml:"token" toml:"token"`
	GuildID   string `yaml:"guild_id" toml:"guild_id"`
	ChannelID string `yaml:"channel_id" toml:"channel_id"`

	// UserID restricts capture to one speaker. Empty captures everyone.
	UserID string `yaml:"user_id" toml:"user_id"`
}
