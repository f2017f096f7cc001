package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/hearken/internal/listen/wakeword"
)

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the syntax from the file extension. Anything other than
// .toml is treated as YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// ValidNames lists known component names per kind.
// Used by [Validate] to warn about unrecognised names.
var ValidNames = map[string][]string{
	"source":     {"mic", "file", "discord"},
	"recognizer": {"vosk", "whisper", "whisper-native", "deepgram"},
	"vad":        {"energy", "webrtc"},
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"journal":    {"memory", "sqlite", "postgres"},
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads the configuration file at path and returns a validated [Config].
// A .env file in the same directory is loaded into the environment first;
// variables that are already set win.
func Load(path string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load %q: %w", envPath, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := parse(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a config in the given format from r, expands
// ${VAR} references, fills defaults and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader, format Format) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return parse(data, format)
}

func parse(data []byte, format Format) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	cfg := &Config{}
	switch format {
	case FormatTOML:
		md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: decode toml: unknown keys %v", undecoded)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: unsupported format %q", format)
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field of cfg with its built-in value.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.ListenAddr, ":9090")
	setDefault(&cfg.Server.LogLevel, LogInfo)

	setDefault(&cfg.Audio.Source, "mic")
	setDefault(&cfg.Audio.SampleRate, 16000)
	setDefault(&cfg.Audio.Chunk, 250*time.Millisecond)
	setDefault(&cfg.Audio.Channels, 1)
	setDefault(&cfg.Audio.RecordingsDir, "recordings")

	setDefault(&cfg.Recognizer.Name, "vosk")
	for _, e := range recognizerEntries(cfg) {
		setDefault(&e.Language, "en")
		setDefault(&e.VAD, "energy")
		if e.Name == "vosk" {
			setDefault(&e.URL, "ws://localhost:2700")
		}
	}

	setDefault(&cfg.Wake.Phrase, "computer")
	if cfg.Wake.MaxDistance == nil {
		d := wakeword.DefaultMaxDistance
		cfg.Wake.MaxDistance = &d
	}
	if cfg.Wake.AllTokens == nil {
		all := true
		cfg.Wake.AllTokens = &all
	}
	setDefault(&cfg.Wake.PhoneticThreshold, 0.7)
	setDefault(&cfg.Wake.Chunk, 500*time.Millisecond)

	setDefault(&cfg.Listen.CommandTimeout, 10*time.Second)
	setDefault(&cfg.Listen.Silence, 2*time.Second)
	setDefault(&cfg.Listen.WakeTimeout, 30*time.Second)
	setDefault(&cfg.Listen.QueueSize, 8)

	setDefault(&cfg.Assistant.MaxHistory, 10)
	setDefault(&cfg.Assistant.SessionTimeout, 300*time.Second)
	setDefault(&cfg.Assistant.Beep.Frequency, 1000)
	setDefault(&cfg.Assistant.Beep.Duration, 200*time.Millisecond)

	setDefault(&cfg.LLM.Name, "ollama")
	setDefault(&cfg.LLM.Model, "gemma3:4b")

	setDefault(&cfg.Journal.Backend, "memory")
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// recognizerEntries returns pointers to the primary and every fallback entry.
func recognizerEntries(cfg *Config) []*RecognizerEntry {
	entries := []*RecognizerEntry{&cfg.Recognizer.RecognizerEntry}
	for i := range cfg.Recognizer.Fallback {
		entries = append(entries, &cfg.Recognizer.Fallback[i])
	}
	return entries
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	validateName("source", cfg.Audio.Source)
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels <= 0 {
		errs = append(errs, fmt.Errorf("audio.channels must be positive, got %d", cfg.Audio.Channels))
	}
	if cfg.Audio.Chunk <= 0 {
		errs = append(errs, fmt.Errorf("audio.chunk must be positive, got %s", cfg.Audio.Chunk))
	}
	switch cfg.Audio.Source {
	case "file":
		if cfg.Audio.File == "" {
			errs = append(errs, errors.New("audio.file is required when audio.source is file"))
		}
	case "discord":
		if cfg.Discord.Token == "" || cfg.Discord.GuildID == "" || cfg.Discord.ChannelID == "" {
			errs = append(errs, errors.New("discord.token, discord.guild_id and discord.channel_id are required when audio.source is discord"))
		}
	}

	// Recognizer
	errs = append(errs, validateRecognizer("recognizer", cfg.Recognizer.RecognizerEntry)...)
	for i, fb := range cfg.Recognizer.Fallback {
		errs = append(errs, validateRecognizer(fmt.Sprintf("recognizer.fallback[%d]", i), fb)...)
	}

	// Wake
	if wakeword.Normalize(cfg.Wake.Phrase) == "" {
		errs = append(errs, errors.New("wake.phrase must contain at least one word"))
	}
	if cfg.Wake.MaxDistance != nil && *cfg.Wake.MaxDistance < 0 {
		errs = append(errs, fmt.Errorf("wake.max_distance must not be negative, got %d", *cfg.Wake.MaxDistance))
	}
	if cfg.Wake.PhoneticThreshold < 0 || cfg.Wake.PhoneticThreshold > 1 {
		errs = append(errs, fmt.Errorf("wake.phonetic_threshold %.2f is out of range [0, 1]", cfg.Wake.PhoneticThreshold))
	}
	if cfg.Wake.Chunk <= 0 {
		errs = append(errs, fmt.Errorf("wake.chunk must be positive, got %s", cfg.Wake.Chunk))
	}

	// Listen
	if cfg.Listen.CommandTimeout <= 0 {
		errs = append(errs, fmt.Errorf("listen.command_timeout must be positive, got %s", cfg.Listen.CommandTimeout))
	}
	if cfg.Listen.Silence <= 0 {
		errs = append(errs, fmt.Errorf("listen.silence must be positive, got %s", cfg.Listen.Silence))
	}
	if cfg.Listen.WakeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("listen.wake_timeout must be positive, got %s", cfg.Listen.WakeTimeout))
	}
	if cfg.Listen.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("listen.queue_size must be positive, got %d", cfg.Listen.QueueSize))
	}

	// Assistant
	if cfg.Assistant.MaxHistory <= 0 {
		errs = append(errs, fmt.Errorf("assistant.max_history must be positive, got %d", cfg.Assistant.MaxHistory))
	}
	if cfg.Assistant.Beep.Frequency <= 0 {
		errs = append(errs, fmt.Errorf("assistant.beep.frequency must be positive, got %.1f", cfg.Assistant.Beep.Frequency))
	}

	// LLM
	errs = append(errs, validateLLM("llm", cfg.LLM)...)
	for i, fb := range cfg.LLM.Fallback {
		errs = append(errs, validateLLM(fmt.Sprintf("llm.fallback[%d]", i), fb)...)
	}

	// Journal
	validateName("journal", cfg.Journal.Backend)
	switch cfg.Journal.Backend {
	case "sqlite", "postgres":
		if cfg.Journal.DSN == "" {
			errs = append(errs, fmt.Errorf("journal.dsn is required when journal.backend is %s", cfg.Journal.Backend))
		}
	}
	if cfg.Journal.Capacity < 0 {
		errs = append(errs, fmt.Errorf("journal.capacity must not be negative, got %d", cfg.Journal.Capacity))
	}

	return errors.Join(errs...)
}

func validateRecognizer(prefix string, e RecognizerEntry) []error {
	var errs []error
	if e.Name == "" {
		return []error{fmt.Errorf("%s.name is required", prefix)}
	}
	validateName("recognizer", e.Name)
	validateName("vad", e.VAD)
	switch e.Name {
	case "vosk", "whisper":
		if e.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required for %s", prefix, e.Name))
		}
	case "whisper-native":
		if e.ModelPath == "" {
			errs = append(errs, fmt.Errorf("%s.model_path is required for whisper-native", prefix))
		}
	case "deepgram":
		if e.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s.api_key is required for deepgram", prefix))
		}
	}
	if e.VADMode < 0 || e.VADMode > 3 {
		errs = append(errs, fmt.Errorf("%s.vad_mode %d is out of range [0, 3]", prefix, e.VADMode))
	}
	return errs
}

func validateLLM(prefix string, e LLMConfig) []error {
	if e.Name == "" {
		return []error{fmt.Errorf("%s.name is required", prefix)}
	}
	validateName("llm", e.Name)
	return nil
}

// validateName logs a warning if name is non-empty and not found in the
// [ValidNames] list for the given kind.
func validateName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown component name, may be a typo or third-party component",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
