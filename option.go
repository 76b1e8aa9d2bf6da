package concierge

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/codewandler/concierge-go/audio"
	"github.com/codewandler/concierge-go/tool"
)

const (
	ApiKeyEnvVarName       = "GEMINI_API_KEY"
	ApiKeyEnvVarNameGoogle = "GOOGLE_API_KEY"
	ApiKeyEnvVarNameShort  = "API_KEY"

	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	DefaultModel    = "gemini-2.5-flash-native-audio-preview-12-2025"
	DefaultVoice    = "Kore"
)

type clientConfig struct {
	model           string
	apiKey          string
	endpoint        string
	instruction     string
	voice           string
	temperature     *float64
	transcribe      bool
	inputRate       int
	outputRate      int
	frameSize       int
	loudnessGain    float64
	speakingEpsilon float64
	dialTimeout     time.Duration
	logger          *slog.Logger
	dispatcher      *tool.Dispatcher
	dialer          Dialer
	mic             audio.Microphone
	speaker         audio.Speaker
}

func (c *clientConfig) validate() error {
	if c.dialer == nil && c.apiKey == "" {
		return fmt.Errorf("missing api key")
	}
	if c.mic == nil {
		return fmt.Errorf("missing microphone")
	}
	if c.speaker == nil {
		return fmt.Errorf("missing speaker")
	}
	return nil
}

func (c *clientConfig) channelDialer() Dialer {
	if c.dialer != nil {
		return c.dialer
	}
	return &WebsocketDialer{
		Endpoint:    c.endpoint,
		APIKey:      c.apiKey,
		DialTimeout: c.dialTimeout,
		Logger:      c.logger,
	}
}

type ClientOption func(*clientConfig)

// WithTools registers handlers on the client's dispatcher.
func WithTools(handlers ...tool.Handler) ClientOption {
	return func(config *clientConfig) {
		if config.dispatcher == nil {
			config.dispatcher = tool.NewDispatcher(config.logger)
		}
		for _, h := range handlers {
			config.dispatcher.Register(h)
		}
	}
}

// WithDispatcher shares a dispatcher, typically with a chat session.
func WithDispatcher(d *tool.Dispatcher) ClientOption {
	return func(config *clientConfig) {
		config.dispatcher = d
	}
}

func WithVoice(voice string) ClientOption {
	return func(config *clientConfig) {
		config.voice = voice
	}
}

func WithSampleRates(input, output int) ClientOption {
	return func(config *clientConfig) {
		config.inputRate = input
		config.outputRate = output
	}
}

func WithFrameSize(samples int) ClientOption {
	return func(config *clientConfig) {
		config.frameSize = samples
	}
}

func WithLoudnessGain(gain float64) ClientOption {
	return func(config *clientConfig) {
		config.loudnessGain = gain
	}
}

func WithSpeakingEpsilon(eps time.Duration) ClientOption {
	return func(config *clientConfig) {
		config.speakingEpsilon = eps.Seconds()
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientConfig) {
		o.logger = logger
	}
}

func WithDefaultLogger() ClientOption {
	return WithLogger(slog.Default())
}

func WithTemperature(temperature float64) ClientOption {
	return func(o *clientConfig) {
		o.temperature = &temperature
	}
}

// WithOutputTranscription requests transcripts of the model audio, delivered
// as ContentEvent.Transcript.
func WithOutputTranscription() ClientOption {
	return func(o *clientConfig) {
		o.transcribe = true
	}
}

func WithModel(model string) ClientOption {
	return func(o *clientConfig) {
		o.model = model
	}
}

func WithEndpoint(endpoint string) ClientOption {
	return func(o *clientConfig) {
		o.endpoint = endpoint
	}
}

func WithDialTimeout(d time.Duration) ClientOption {
	return func(o *clientConfig) {
		o.dialTimeout = d
	}
}

// WithDialer replaces the websocket transport.
func WithDialer(d Dialer) ClientOption {
	return func(o *clientConfig) {
		o.dialer = d
	}
}

func WithMicrophone(mic audio.Microphone) ClientOption {
	return func(o *clientConfig) {
		o.mic = mic
	}
}

func WithSpeaker(speaker audio.Speaker) ClientOption {
	return func(o *clientConfig) {
		o.speaker = speaker
	}
}

func WithKey(apiKey string) ClientOption {
	return func(o *clientConfig) {
		o.apiKey = apiKey
	}
}

func WithEnvKey(vars ...string) ClientOption {
	return func(o *clientConfig) {
		for _, envVarName := range vars {
			if k := os.Getenv(envVarName); k != "" {
				o.apiKey = k
				return
			}
		}
	}
}

func WithInstruction(instruction string) ClientOption {
	return func(o *clientConfig) {
		o.instruction = instruction
	}
}

func WithOptions(opts ...ClientOption) ClientOption {
	return func(o *clientConfig) {
		for _, opt := range opts {
			opt(o)
		}
	}
}

func withDefaults() ClientOption {
	return WithOptions(
		WithLogger(slog.New(slog.DiscardHandler)),
		WithVoice(DefaultVoice),
		WithInstruction(DefaultInstruction),
		WithSampleRates(audio.InputSampleRate, audio.OutputSampleRate),
		WithFrameSize(audio.DefaultFrameSize),
		WithLoudnessGain(audio.DefaultLoudnessGain),
		WithSpeakingEpsilon(100*time.Millisecond),
		WithDialTimeout(10*time.Second),
		WithModel(DefaultModel),
		WithEndpoint(DefaultEndpoint),
		WithEnvKey(ApiKeyEnvVarName, ApiKeyEnvVarNameGoogle, ApiKeyEnvVarNameShort),
	)
}
