package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sjawhar/parlo/internal/llm"
)

// EnvPrefix is the namespace prefix for all parlo environment variables.
const EnvPrefix = "PARLO_"

const (
	defaultEnergyThreshold = 0.01
	defaultMaxRecording    = 2 * time.Minute
	defaultVisualizerBins  = 64
	defaultVisualizerFPS   = 30
)

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	DBPath        string `yaml:"db_path"`
	TranscriptDir string `yaml:"transcript_dir"`
	LogFile       string `yaml:"log_file"`

	ChatModel          string `yaml:"chat_model"`
	Transcriber        string `yaml:"transcriber"`
	TranscribeModel    string `yaml:"transcribe_model"`
	TranscribeLanguage string `yaml:"transcribe_language"`
	Synthesizer        string `yaml:"synthesizer"`
	TTSModel           string `yaml:"tts_model"`
	TTSVoice           string `yaml:"tts_voice"`

	EnergyThreshold float64 `yaml:"energy_threshold"`
	MaxRecording    string  `yaml:"max_recording"`
	MicSampleRate   int     `yaml:"mic_sample_rate"`
	MicSampleRates  []int   `yaml:"mic_sample_rates"`
	VisualizerBins  int     `yaml:"visualizer_bins"`
	VisualizerFPS   int     `yaml:"visualizer_fps"`

	ServerURL  string `yaml:"server_url"`
	ListenAddr string `yaml:"listen_addr"`
	EventsAddr string `yaml:"events_addr"`

	NativeLanguage string `yaml:"native_language"`
	TargetLanguage string `yaml:"target_language"`
	Topic          string `yaml:"topic"`

	OpenAIBaseURL         string `yaml:"openai_base_url"`
	ElevenLabsBaseURL     string `yaml:"elevenlabs_base_url"`
	DeepgramHost          string `yaml:"deepgram_host"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`

	// Secrets: env vars only, never serialized to YAML.
	OpenAIAPIKey     string `yaml:"-"`
	AnthropicAPIKey  string `yaml:"-"`
	GeminiAPIKey     string `yaml:"-"`
	DeepgramAPIKey   string `yaml:"-"`
	ElevenLabsAPIKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		DBPath:          "data/parlo.db",
		ChatModel:       "openai/gpt-4o-mini",
		Transcriber:     "openai",
		TranscribeModel: "whisper-1",
		Synthesizer:     "openai",
		TTSModel:        "tts-1",
		TTSVoice:        "alloy",
		EnergyThreshold: defaultEnergyThreshold,
		MaxRecording:    "2m",
		MicSampleRate:   16000,
		MicSampleRates:  []int{48000, 44100, 32000, 24000},
		VisualizerBins:  defaultVisualizerBins,
		VisualizerFPS:   defaultVisualizerFPS,
		ListenAddr:      "127.0.0.1:8787",
		NativeLanguage:  "Spanish",
		TargetLanguage:  "English",
		Topic:           "Daily routine",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedMaxRecording returns MaxRecording as a time.Duration, falling back
// to two minutes if the value is invalid.
func (c *Config) ParsedMaxRecording() time.Duration {
	d, err := time.ParseDuration(c.MaxRecording)
	if err != nil || d <= 0 {
		return defaultMaxRecording
	}
	return d
}

// SampleRateCandidates returns a deduplicated ordered list of sample rates
// to try: preferred rate first, then configured alternatives, then defaults.
func (c *Config) SampleRateCandidates() []int {
	hardcoded := []int{16000, 48000, 44100, 32000, 24000}

	combined := make([]int, 0, 1+len(c.MicSampleRates)+len(hardcoded))
	combined = append(combined, c.MicSampleRate)
	combined = append(combined, c.MicSampleRates...)
	combined = append(combined, hardcoded...)

	seen := make(map[int]struct{}, len(combined))
	result := make([]int, 0, len(combined))
	for _, rate := range combined {
		if rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}
	return result
}

// ChatProvider is the provider half of ChatModel, or "" if it is malformed.
func (c *Config) ChatProvider() string {
	provider, _, err := llm.ParseModel(c.ChatModel)
	if err != nil {
		return ""
	}
	return provider
}

// APIKey returns the secret for a provider name.
func (c *Config) APIKey(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	case "deepgram":
		return c.DeepgramAPIKey
	case "elevenlabs":
		return c.ElevenLabsAPIKey
	}
	return ""
}

// Remote reports whether collaborators are reached through a gateway.
func (c *Config) Remote() bool {
	return strings.TrimSpace(c.ServerURL) != ""
}

func applyEnvOverrides(cfg *Config) {
	str := map[string]*string{
		"DB_PATH":                 &cfg.DBPath,
		"TRANSCRIPT_DIR":          &cfg.TranscriptDir,
		"LOG_FILE":                &cfg.LogFile,
		"CHAT_MODEL":              &cfg.ChatModel,
		"TRANSCRIBER":             &cfg.Transcriber,
		"TRANSCRIBE_MODEL":        &cfg.TranscribeModel,
		"TRANSCRIBE_LANGUAGE":     &cfg.TranscribeLanguage,
		"SYNTHESIZER":             &cfg.Synthesizer,
		"TTS_MODEL":               &cfg.TTSModel,
		"TTS_VOICE":               &cfg.TTSVoice,
		"MAX_RECORDING":           &cfg.MaxRecording,
		"SERVER_URL":              &cfg.ServerURL,
		"LISTEN_ADDR":             &cfg.ListenAddr,
		"EVENTS_ADDR":             &cfg.EventsAddr,
		"NATIVE_LANGUAGE":         &cfg.NativeLanguage,
		"TARGET_LANGUAGE":         &cfg.TargetLanguage,
		"TOPIC":                   &cfg.Topic,
		"OPENAI_BASE_URL":         &cfg.OpenAIBaseURL,
		"ELEVENLABS_BASE_URL":     &cfg.ElevenLabsBaseURL,
		"DEEPGRAM_HOST":           &cfg.DeepgramHost,
		"GOOGLE_CREDENTIALS_FILE": &cfg.GoogleCredentialsFile,
	}
	for key, dst := range str {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv(EnvPrefix + "ENERGY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.EnergyThreshold = f
		}
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.MicSampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATES"); v != "" {
		cfg.MicSampleRates = parseSampleRates(v)
	}
	if v := os.Getenv(EnvPrefix + "VISUALIZER_BINS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.VisualizerBins = n
		}
	}
	if v := os.Getenv(EnvPrefix + "VISUALIZER_FPS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.VisualizerFPS = n
		}
	}
}

func loadSecrets(cfg *Config) {
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.ElevenLabsAPIKey = os.Getenv(EnvPrefix + "ELEVENLABS_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if _, _, err := llm.ParseModel(cfg.ChatModel); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid chat_model %q: expected provider/model.", cfg.ChatModel))
	}

	switch cfg.Transcriber {
	case "openai", "deepgram", "google":
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown transcriber %q: using openai.", cfg.Transcriber))
		cfg.Transcriber = "openai"
	}
	switch cfg.Synthesizer {
	case "openai", "elevenlabs":
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown synthesizer %q: using openai.", cfg.Synthesizer))
		cfg.Synthesizer = "openai"
	}

	if !cfg.Remote() {
		warnings = append(warnings, missingKeyWarnings(cfg)...)
	}

	if cfg.EnergyThreshold < 0 || cfg.EnergyThreshold >= 1 {
		warnings = append(warnings, fmt.Sprintf("Invalid energy_threshold %v: using default %v.", cfg.EnergyThreshold, defaultEnergyThreshold))
		cfg.EnergyThreshold = defaultEnergyThreshold
	}
	if d, err := time.ParseDuration(cfg.MaxRecording); err != nil || d <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid max_recording %q: using default 2m.", cfg.MaxRecording))
	}
	if cfg.VisualizerBins <= 0 {
		cfg.VisualizerBins = defaultVisualizerBins
	}
	if cfg.VisualizerFPS <= 0 || cfg.VisualizerFPS > 120 {
		cfg.VisualizerFPS = defaultVisualizerFPS
	}

	return warnings
}

func missingKeyWarnings(cfg *Config) []string {
	var warnings []string
	seen := map[string]bool{}
	need := func(provider, feature string) {
		if provider == "" || seen[provider] || cfg.APIKey(provider) != "" {
			return
		}
		seen[provider] = true
		warnings = append(warnings, fmt.Sprintf("%s API key not configured: %s is disabled. Set %s%s_API_KEY.",
			providerLabel(provider), feature, EnvPrefix, strings.ToUpper(provider)))
	}

	need(cfg.ChatProvider(), "chat")
	if cfg.Transcriber != "google" {
		need(cfg.Transcriber, "transcription")
	}
	need(cfg.Synthesizer, "speech synthesis")
	return warnings
}

func providerLabel(provider string) string {
	switch provider {
	case "openai":
		return "OpenAI"
	case "elevenlabs":
		return "ElevenLabs"
	}
	return strings.ToUpper(provider[:1]) + provider[1:]
}

func parseSampleRates(raw string) []int {
	parts := strings.Split(raw, ",")
	seen := make(map[int]struct{}, len(parts))
	result := make([]int, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		rate, err := strconv.Atoi(trimmed)
		if err != nil || rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}

	return result
}
