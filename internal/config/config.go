package config

import (
	"fmt"
	"time"

	"github.com/alecthomas/kong"
	"github.com/pkg/errors"
)

const serviceName = "whisper-relay"

// Config is read from flags, falling back to environment (a .env file is loaded into the environment before).
type Config struct {
	Port        int    `name:"port" env:"PORT" default:"3000" help:"Port to listen on."`
	BindAddress string `name:"bind-address" env:"BIND_ADDRESS" default:"0.0.0.0" help:"Address to bind to."`

	OpenAIAPIKey    string        `name:"openai-api-key" env:"OPENAI_API_KEY" help:"Bearer credential for the transcription provider."`
	Provider        string        `name:"provider" env:"STT_PROVIDER" enum:"openai,http" default:"openai" help:"Provider client: openai (go-openai SDK) or http (streamed multipart)."`
	ProviderBaseURL string        `name:"provider-base-url" env:"OPENAI_BASE_URL" default:"https://api.openai.com/v1" help:"Provider API base URL."`
	Model           string        `name:"model" env:"STT_MODEL" default:"whisper-1" help:"Model identifier sent with every request."`
	ProviderTimeout time.Duration `name:"provider-timeout" env:"STT_TIMEOUT" default:"120s" help:"Deadline for one provider call."`
	TextQuery       string        `name:"text-query" env:"STT_TEXT_QUERY" default:".text" help:"jq expression for the transcript (http provider)."`
	LanguageQuery   string        `name:"language-query" env:"STT_LANGUAGE_QUERY" default:".language" help:"jq expression for the language (http provider)."`

	MaxUploadBytes int64  `name:"max-upload-bytes" env:"STT_MAX_UPLOAD_BYTES" default:"10485760" help:"Largest accepted audio file."`
	UploadDir      string `name:"upload-dir" env:"STT_UPLOAD_DIR" default:"uploads" help:"Directory for transient upload files."`
	RequireAudio   bool   `name:"require-audio" env:"STT_REQUIRE_AUDIO" help:"Reject uploads that do not sniff as audio."`

	CORSOrigin string `name:"cors-origin" env:"CORS_ORIGIN" default:"*" help:"Access-Control-Allow-Origin value."`

	LogLevel  string `name:"log-level" env:"LOG_LEVEL" enum:"trace,debug,info,warn,error" default:"info" help:"Log level."`
	LogFormat string `name:"log-format" env:"LOG_FORMAT" enum:"console,json" default:"console" help:"Log output format."`
}

// Load parses args (without the program name) and the environment into a validated Config.
func Load(args []string) (*Config, error) {
	var cfg Config
	parser, err := kong.New(&cfg,
		kong.Name(serviceName),
		kong.Description("Relays uploaded audio to a speech to text provider."),
	)
	if err != nil {
		return nil, errors.Wrap(err, "cannot build config parser")
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, errors.Wrap(err, "cannot parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY is not set")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("invalid port %d", c.Port)
	}
	if c.ProviderTimeout <= 0 {
		return errors.Errorf("provider timeout must be positive, got %s", c.ProviderTimeout)
	}
	if c.MaxUploadBytes <= 0 {
		return errors.Errorf("max upload bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if c.UploadDir == "" {
		return errors.New("upload dir cannot be empty")
	}
	return nil
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.Port)
}
