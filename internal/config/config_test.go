package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every variable the config reads so the host environment cannot leak in.
// t.Setenv registers the restore, Unsetenv makes the variable truly absent.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"PORT", "BIND_ADDRESS", "OPENAI_API_KEY", "STT_PROVIDER", "OPENAI_BASE_URL", "STT_MODEL",
		"STT_TIMEOUT", "STT_TEXT_QUERY", "STT_LANGUAGE_QUERY", "STT_MAX_UPLOAD_BYTES", "STT_UPLOAD_DIR",
		"STT_REQUIRE_AUDIO", "CORS_ORIGIN", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(name, "")
		if err := os.Unsetenv(name); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 3000 {
		t.Errorf("port = %d, want 3000", cfg.Port)
	}
	if cfg.Address() != "0.0.0.0:3000" {
		t.Errorf("address = %s", cfg.Address())
	}
	if cfg.Provider != "openai" || cfg.Model != "whisper-1" {
		t.Errorf("provider = %s, model = %s", cfg.Provider, cfg.Model)
	}
	if cfg.ProviderBaseURL != "https://api.openai.com/v1" {
		t.Errorf("base url = %s", cfg.ProviderBaseURL)
	}
	if cfg.ProviderTimeout != 120*time.Second {
		t.Errorf("timeout = %s, want 120s", cfg.ProviderTimeout)
	}
	if cfg.MaxUploadBytes != 10*1024*1024 {
		t.Errorf("max upload = %d, want 10MiB", cfg.MaxUploadBytes)
	}
	if cfg.UploadDir != "uploads" || cfg.CORSOrigin != "*" {
		t.Errorf("upload dir = %s, cors = %s", cfg.UploadDir, cfg.CORSOrigin)
	}
	if cfg.RequireAudio {
		t.Error("require audio should default to off")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("PORT", "8080")
	t.Setenv("STT_PROVIDER", "http")
	t.Setenv("STT_TIMEOUT", "30s")
	t.Setenv("STT_MAX_UPLOAD_BYTES", "2048")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAIAPIKey != "sk-env" || cfg.Port != 8080 || cfg.Provider != "http" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.ProviderTimeout != 30*time.Second || cfg.MaxUploadBytes != 2048 {
		t.Errorf("timeout = %s, max = %d", cfg.ProviderTimeout, cfg.MaxUploadBytes)
	}
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("PORT", "8080")

	cfg, err := Load([]string{"--port=9090", "--require-audio"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Port)
	}
	if !cfg.RequireAudio {
		t.Error("--require-audio ignored")
	}
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]struct {
		env  map[string]string
		args []string
		want string
	}{
		"missing key":      {want: "OPENAI_API_KEY"},
		"unknown provider": {env: map[string]string{"OPENAI_API_KEY": "k", "STT_PROVIDER": "pigeon"}},
		"zero timeout":     {env: map[string]string{"OPENAI_API_KEY": "k"}, args: []string{"--provider-timeout=0s"}, want: "timeout"},
		"bad port":         {env: map[string]string{"OPENAI_API_KEY": "k"}, args: []string{"--port=70000"}, want: "port"},
		"zero max upload":  {env: map[string]string{"OPENAI_API_KEY": "k"}, args: []string{"--max-upload-bytes=0"}, want: "max upload"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(tc.args)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tc.want != "" && !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want it to mention %q", err, tc.want)
			}
		})
	}
}
