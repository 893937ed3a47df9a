package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"

	"github.com/browserbench/browserbench/env"
)

const testConfigFile = `
ws_url: ws://127.0.0.1:9222/devtools/browser/file
chromium_src: /src/chromium
log_level: debug
traces:
  endpoint: localhost:4318
  insecure: true
`

func TestConsolidate(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/browserbench.yaml", []byte(testConfigFile), 0o644))

	lookup := env.MapLookup(map[string]string{
		env.WSURL:       "ws://127.0.0.1:9222/devtools/browser/env",
		env.Force:       "true",
		env.SummaryFile: "/tmp/env-summary.txt",
	})
	flags := Config{SummaryFile: null.StringFrom("/tmp/flag-summary.txt")}

	cfg, err := Consolidate(fs, "/etc/browserbench.yaml", lookup, flags)
	require.NoError(t, err)

	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/env", cfg.WSURL.String)
	assert.Equal(t, "/src/chromium", cfg.ChromiumSrcDir.String)
	assert.Equal(t, "debug", cfg.LogLevel.String)
	assert.True(t, cfg.Force.Bool)
	assert.Equal(t, "/tmp/flag-summary.txt", cfg.SummaryFile.String)
	assert.Equal(t, "localhost:4318", cfg.TracesEndpoint.String)
	assert.Equal(t, "http", cfg.TracesProto.String)
	assert.False(t, cfg.TracesProto.Valid, "default must stay invalid")
	assert.True(t, cfg.TracesInsecure.Bool)
	assert.NoError(t, cfg.Validate())
}

func TestConsolidateDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Consolidate(afero.NewMemMapFs(), "", env.MapLookup(nil), Config{})
	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
	assert.Equal(t, "info", cfg.LogLevel.String)
}

func TestLoadFileErrors(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/unknown.yaml", []byte("wsurl: ws://x\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/empty.yaml", nil, 0o644))

	_, err := LoadFile(fs, "/missing.yaml")
	assert.Error(t, err)

	_, err = LoadFile(fs, "/unknown.yaml")
	assert.ErrorContains(t, err, "wsurl")

	cfg, err := LoadFile(fs, "/empty.yaml")
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}

func TestFromEnvInvalid(t *testing.T) {
	t.Parallel()

	_, err := FromEnv(env.MapLookup(map[string]string{env.Force: "maybe"}))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "ws",
			cfg:  Config{WSURL: null.StringFrom("ws://127.0.0.1:9222/devtools/browser/x")},
		},
		{
			name: "wss",
			cfg:  Config{WSURL: null.StringFrom("wss://browser.example.test/devtools/browser/x")},
		},
		{
			name:    "missing",
			cfg:     Config{},
			wantErr: "not set",
		},
		{
			name:    "http_scheme",
			cfg:     Config{WSURL: null.StringFrom("http://127.0.0.1:9222")},
			wantErr: "scheme must be ws or wss",
		},
		{
			name: "grpc_traces",
			cfg: Config{
				WSURL:          null.StringFrom("ws://127.0.0.1:9222/devtools/browser/x"),
				TracesEndpoint: null.StringFrom("localhost:4317"),
				TracesProto:    null.StringFrom("grpc"),
			},
			wantErr: "unsupported traces protocol",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := NewConfig().Apply(tt.cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
