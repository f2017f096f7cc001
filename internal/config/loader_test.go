package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/hearken/internal/config"
)

const fullYAML = `
server:
  listen_addr: ":8080"
  log_level: debug
audio:
  source: file
  file: clips/hello.wav
  sample_rate: 16000
  chunk: 100ms
recognizer:
  name: whisper
  url: http://localhost:8080
  model: base.en
  vad: webrtc
  vad_mode: 2
  fallback:
    - name: vosk
      url: ws://localhost:2700
wake:
  phrase: "hey jarvis"
  max_distance: 1
  all_tokens: false
  phonetic: true
listen:
  command_timeout: 8s
  silence: 1500ms
assistant:
  exit_phrases: ["bye", "stop"]
  max_history: 4
llm:
  name: openai
  model: gpt-4o-mini
  api_key: sk-test
  fallback:
    - name: ollama
      model: gemma3:4b
journal:
  backend: sqlite
  dsn: /tmp/episodes.db
`

const fullTOML = `
[server]
log_level = "warn"

[audio]
source = "mic"
device = "USB Microphone"

[recognizer]
name = "deepgram"
api_key = "dg-key"
model = "nova-2"

[[recognizer.fallback]]
name = "whisper-native"
model_path = "models/ggml-base.en.bin"

[wake]
phrase = "computer"
chunk = "250ms"

[listen]
wake_timeout = "1m"

[journal]
backend = "postgres"
dsn = "postgres://localhost/hearken"
`

func TestLoadFromReader_YAML(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML), config.FormatYAML)
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Audio.Chunk != 100*time.Millisecond {
		t.Errorf("audio.chunk = %s, want 100ms", cfg.Audio.Chunk)
	}
	if cfg.Recognizer.Name != "whisper" || cfg.Recognizer.VADMode != 2 || cfg.Recognizer.VAD != "webrtc" {
		t.Errorf("recognizer = %+v", cfg.Recognizer.RecognizerEntry)
	}
	if len(cfg.Recognizer.Fallback) != 1 || cfg.Recognizer.Fallback[0].Language != "en" {
		t.Errorf("fallback = %+v, want one vosk entry with default language", cfg.Recognizer.Fallback)
	}
	if *cfg.Wake.MaxDistance != 1 || *cfg.Wake.AllTokens || !cfg.Wake.Phonetic {
		t.Errorf("wake = %+v", cfg.Wake)
	}
	if cfg.Listen.Silence != 1500*time.Millisecond {
		t.Errorf("listen.silence = %s", cfg.Listen.Silence)
	}
	// Unset fields keep their defaults.
	if cfg.Listen.WakeTimeout != 30*time.Second {
		t.Errorf("listen.wake_timeout = %s, want 30s", cfg.Listen.WakeTimeout)
	}
	if cfg.Assistant.SessionTimeout != 5*time.Minute {
		t.Errorf("assistant.session_timeout = %s, want 5m", cfg.Assistant.SessionTimeout)
	}
	if len(cfg.LLM.Fallback) != 1 || cfg.LLM.Fallback[0].Name != "ollama" {
		t.Errorf("llm.fallback = %+v", cfg.LLM.Fallback)
	}
}

func TestLoadFromReader_TOML(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullTOML), config.FormatTOML)
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("log_level = %q, want warn", cfg.Server.LogLevel)
	}
	if cfg.Audio.Device != "USB Microphone" {
		t.Errorf("audio.device = %q", cfg.Audio.Device)
	}
	if cfg.Recognizer.Name != "deepgram" || cfg.Recognizer.APIKey != "dg-key" {
		t.Errorf("recognizer = %+v", cfg.Recognizer.RecognizerEntry)
	}
	if len(cfg.Recognizer.Fallback) != 1 || cfg.Recognizer.Fallback[0].ModelPath != "models/ggml-base.en.bin" {
		t.Errorf("fallback = %+v", cfg.Recognizer.Fallback)
	}
	if cfg.Wake.Chunk != 250*time.Millisecond {
		t.Errorf("wake.chunk = %s", cfg.Wake.Chunk)
	}
	if cfg.Listen.WakeTimeout != time.Minute {
		t.Errorf("listen.wake_timeout = %s", cfg.Listen.WakeTimeout)
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""), config.FormatYAML)
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	want := config.Defaults()
	if cfg.Audio != want.Audio || cfg.Listen != want.Listen || cfg.Journal != want.Journal {
		t.Errorf("empty config = %+v, want defaults %+v", cfg, want)
	}
	if cfg.Recognizer.Name != "vosk" || cfg.Recognizer.URL != "ws://localhost:2700" {
		t.Errorf("recognizer = %+v", cfg.Recognizer.RecognizerEntry)
	}
	if cfg.Wake.Phrase != "computer" || *cfg.Wake.MaxDistance != 2 || !*cfg.Wake.AllTokens {
		t.Errorf("wake = %+v", cfg.Wake)
	}
	if cfg.LLM.Name != "ollama" || cfg.LLM.Model != "gemma3:4b" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
}

func TestLoadFromReader_UnknownKeys(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		input  string
		format config.Format
	}{
		{"yaml", "wake:\n  phrase: computer\n  sensitivity: 3\n", config.FormatYAML},
		{"toml", "[wake]\nphrase = \"computer\"\nsensitivity = 3\n", config.FormatTOML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := config.LoadFromReader(strings.NewReader(tt.input), tt.format); err == nil {
				t.Error("expected error for unknown key")
			}
		})
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bad log level", "server:\n  log_level: bananas\n", "server.log_level"},
		{"file without path", "audio:\n  source: file\n", "audio.file is required"},
		{"discord without token", "audio:\n  source: discord\n", "discord.token"},
		{"native without model", "recognizer:\n  name: whisper-native\n", "model_path is required"},
		{"deepgram without key", "recognizer:\n  name: deepgram\n", "api_key is required"},
		{"fallback without url", "recognizer:\n  fallback:\n    - name: whisper\n", "recognizer.fallback[0].url"},
		{"vad mode range", "recognizer:\n  vad_mode: 7\n", "vad_mode 7"},
		{"blank phrase", "wake:\n  phrase: \"   \"\n", "wake.phrase"},
		{"negative distance", "wake:\n  max_distance: -1\n", "wake.max_distance"},
		{"threshold range", "wake:\n  phonetic_threshold: 1.5\n", "phonetic_threshold"},
		{"negative timeout", "listen:\n  command_timeout: -1s\n", "listen.command_timeout"},
		{"sqlite without dsn", "journal:\n  backend: sqlite\n", "journal.dsn is required"},
		{"llm fallback without name", "llm:\n  fallback:\n    - model: x\n", "llm.fallback[0].name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.input), config.FormatYAML)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	input := "server:\n  log_level: loud\njournal:\n  backend: postgres\n"
	_, err := config.LoadFromReader(strings.NewReader(input), config.FormatYAML)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"server.log_level", "journal.dsn"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestFormatFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path string
		want config.Format
	}{
		{"hearken.yaml", config.FormatYAML},
		{"hearken.yml", config.FormatYAML},
		{"conf/hearken.toml", config.FormatTOML},
		{"HEARKEN.TOML", config.FormatTOML},
		{"hearken", config.FormatYAML},
	}
	for _, tt := range tests {
		if got := config.FormatFor(tt.path); got != tt.want {
			t.Errorf("FormatFor(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// Not parallel: Load mutates the process environment through .env.
func TestLoad_ExpandsEnvAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), "HEARKEN_TEST_LLM_KEY=from-dotenv\n")
	writeFile(t, filepath.Join(dir, "hearken.yaml"), "llm:\n  name: openai\n  api_key: ${HEARKEN_TEST_LLM_KEY}\n  model: ${HEARKEN_TEST_LLM_MODEL}\n")
	t.Setenv("HEARKEN_TEST_LLM_MODEL", "gpt-4o")
	t.Cleanup(func() { os.Unsetenv("HEARKEN_TEST_LLM_KEY") })

	cfg, err := config.Load(filepath.Join(dir, "hearken.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "from-dotenv" {
		t.Errorf("api_key = %q, want from-dotenv", cfg.LLM.APIKey)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", cfg.LLM.Model)
	}
}

func TestLoad_Missing(t *testing.T) {
	t.Parallel()
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if cfg.Wake.Phrase != "computer" {
		t.Errorf("wake phrase = %q", cfg.Wake.Phrase)
	}
	if len(cfg.Recognizer.Fallback) != 1 || cfg.Recognizer.Fallback[0].Name != "whisper" {
		t.Errorf("recognizer fallbacks = %+v", cfg.Recognizer.Fallback)
	}
	if cfg.Journal.Backend != "sqlite" {
		t.Errorf("journal backend = %q", cfg.Journal.Backend)
	}
}
