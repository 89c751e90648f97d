package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `provider:
  name: master
  uri: ldap://ldap-master.example.org:389
consumers:
  - uri: ldap://ldap-replica-1.example.org:389
  - name: replica-2
    uri: ldaps://ldap-replica-2.example.org:636
    bind:
      dn: cn=replica-monitor,dc=example,dc=org
      password: replica-secret
baseDN: dc=example,dc=org
bind:
  dn: cn=monitor,dc=example,dc=org
  password: global-secret
threshold: 10m
serverID: 1
timeout: 5s
concurrency: 2
alerting:
  enabled: true
  alertmanager:
    url: http://alertmanager:9093
  labels:
    team: directory
monitor:
  interval: 60
`

func TestParse(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "master", cfg.Provider.DisplayName())
	require.Len(t, cfg.Consumers, 2)
	assert.Equal(t, "ldap-replica-1.example.org:389", cfg.Consumers[0].DisplayName())
	assert.Equal(t, "dc=example,dc=org", cfg.BaseDN)

	require.NotNil(t, cfg.ThresholdDuration())
	assert.Equal(t, 10*time.Minute, *cfg.ThresholdDuration())
	require.NotNil(t, cfg.ServerID)
	assert.Equal(t, 1, *cfg.ServerID)
	assert.Equal(t, 5*time.Second, cfg.GetTimeout())
	assert.Equal(t, 2, cfg.GetConcurrency())
	assert.Equal(t, NoThresholdStrict, cfg.GetNoThresholdPolicy())

	dn, pw := cfg.Provider.Credentials()
	assert.Equal(t, "cn=monitor,dc=example,dc=org", dn)
	assert.Equal(t, "global-secret", pw)

	dn, pw = cfg.Consumers[1].Credentials()
	assert.Equal(t, "cn=replica-monitor,dc=example,dc=org", dn)
	assert.Equal(t, "replica-secret", pw)

	assert.True(t, cfg.Alerting.IsEnabled())
	assert.Equal(t, DefaultAlertName, cfg.Alerting.GetName())
	assert.Equal(t, DefaultAlertSeverity, cfg.Alerting.GetSeverity())
	assert.Equal(t, DefaultAlertmanagerRetries, cfg.Alerting.Alertmanager.GetMaxRetries())
	assert.Equal(t, time.Minute, cfg.Monitor.GetInterval())
	assert.Equal(t, DefaultStatusDir, cfg.Monitor.GetStatusDir())
}

func TestParse_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`provider:
  uri: ldap://master
consumers:
  - uri: ldap://replica
baseDN: dc=example,dc=org
`))
	require.NoError(t, err)

	assert.Nil(t, cfg.ThresholdDuration())
	assert.Nil(t, cfg.ServerID)
	assert.Equal(t, DefaultTimeout, cfg.GetTimeout())
	assert.Equal(t, DefaultConcurrency, cfg.GetConcurrency())
	assert.False(t, cfg.Alerting.IsEnabled())
	assert.Equal(t, DefaultMonitorInterval, cfg.Monitor.GetInterval())
	assert.Equal(t, DefaultMonitorAddress, cfg.Monitor.GetAddress())

	dn, pw := cfg.Consumers[0].Credentials()
	assert.Empty(t, dn)
	assert.Empty(t, pw)
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "no consumers",
			yaml: `provider:
  uri: ldap://master
baseDN: dc=example,dc=org
`,
			wantErr: "Consumers",
		},
		{
			name: "missing base dn",
			yaml: `provider:
  uri: ldap://master
consumers:
  - uri: ldap://replica
`,
			wantErr: "BaseDN",
		},
		{
			name: "unsupported scheme",
			yaml: `provider:
  uri: http://master
consumers:
  - uri: ldap://replica
baseDN: dc=example,dc=org
`,
			wantErr: "uri scheme must be ldap, ldaps or ldapi",
		},
		{
			name: "dot-only uri host",
			yaml: `provider:
  uri: ldap://master
consumers:
  - uri: ldap://..
baseDN: dc=example,dc=org
`,
			wantErr: "is not usable as a server name",
		},
		{
			name: "dot-only name",
			yaml: `provider:
  uri: ldap://master
consumers:
  - uri: ldap://replica
    name: ".."
baseDN: dc=example,dc=org
`,
			wantErr: "may only contain",
		},
		{
			name: "empty uri host",
			yaml: `provider:
  uri: ldap://master
consumers:
  - uri: ldap:///
baseDN: dc=example,dc=org
`,
			wantErr: "is not usable as a server name",
		},
		{
			name: "duplicate names",
			yaml: `provider:
  uri: ldap://master
consumers:
  - uri: ldap://replica
  - uri: ldaps://replica
baseDN: dc=example,dc=org
`,
			wantErr: "duplicate server name",
		},
		{
			name: "server id out of range",
			yaml: `provider:
  uri: ldap://master
consumers:
  - uri: ldap://replica
baseDN: dc=example,dc=org
serverID: 5000
`,
			wantErr: "ServerID",
		},
		{
			name: "unknown no-threshold policy",
			yaml: `provider:
  uri: ldap://master
consumers:
  - uri: ldap://replica
baseDN: dc=example,dc=org
noThresholdPolicy: sometimes
`,
			wantErr: "NoThresholdPolicy",
		},
		{
			name: "negative threshold",
			yaml: `provider:
  uri: ldap://master
consumers:
  - uri: ldap://replica
baseDN: dc=example,dc=org
threshold: -5m
`,
			wantErr: "threshold must not be negative",
		},
		{
			name: "unparseable threshold",
			yaml: `provider:
  uri: ldap://master
consumers:
  - uri: ldap://replica
baseDN: dc=example,dc=org
threshold: soon
`,
			wantErr: "invalid duration",
		},
		{
			name: "invalid server name",
			yaml: `provider:
  name: "master node"
  uri: ldap://master
consumers:
  - uri: ldap://replica
baseDN: dc=example,dc=org
`,
			wantErr: "may only contain",
		},
		{
			name: "alertmanager without url",
			yaml: `provider:
  uri: ldap://master
consumers:
  - uri: ldap://replica
baseDN: dc=example,dc=org
alerting:
  enabled: true
  alertmanager: {}
`,
			wantErr: "URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0600))

	cfg, err := LoadConfig(WithConfigPath(path))
	require.NoError(t, err)
	assert.Equal(t, "dc=example,dc=org", cfg.BaseDN)

	_, err = LoadConfig()
	require.Error(t, err)

	_, err = LoadConfig(WithConfigPath(filepath.Join(dir, "missing.yaml")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to evaluate symlinks")

	_, err = LoadConfig(WithConfigPath(""))
	require.Error(t, err)
}

func TestServerDescriptor_DisplayName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		server   ServerDescriptor
		wantName string
		wantKey  string
	}{
		{ServerDescriptor{Name: "master", URI: "ldap://host"}, "master", "master"},
		{ServerDescriptor{URI: "ldap://ldap-replica-1:389"}, "ldap-replica-1:389", "ldap-replica-1_389"},
		{ServerDescriptor{URI: "ldapi://%2Fvar%2Frun%2Fslapd.sock"}, "%2Fvar%2Frun%2Fslapd.sock", "2Fvar_2Frun_2Fslapd.sock"},
		{ServerDescriptor{URI: "replica"}, "replica", "replica"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.wantName, tt.server.DisplayName())
		assert.Equal(t, tt.wantKey, tt.server.Key())
	}
}

func TestBindConfig_GetPassword(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	passwordFile := filepath.Join(dir, "password")
	require.NoError(t, os.WriteFile(passwordFile, []byte("from-file\n"), 0600))

	tests := []struct {
		name    string
		bind    BindConfig
		want    string
		wantErr bool
	}{
		{
			name: "inline password wins",
			bind: BindConfig{DN: "cn=admin", Password: "inline", PasswordFile: passwordFile},
			want: "inline",
		},
		{
			name: "password file is trimmed",
			bind: BindConfig{DN: "cn=admin", PasswordFile: passwordFile},
			want: "from-file",
		},
		{
			name:    "unreadable password file",
			bind:    BindConfig{DN: "cn=admin", PasswordFile: filepath.Join(dir, "nope")},
			wantErr: true,
		},
		{
			name: "anonymous bind needs no password",
			bind: BindConfig{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.bind.GetPassword()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBindConfig_GetPasswordFromEnv(t *testing.T) {
	t.Setenv(PasswordEnvVar, "from-env")

	bind := BindConfig{DN: "cn=admin"}
	got, err := bind.GetPassword()
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)
}

func TestBindConfig_MissingPassword(t *testing.T) {
	t.Setenv(PasswordEnvVar, "")

	bind := BindConfig{DN: "cn=admin"}
	_, err := bind.GetPassword()
	require.Error(t, err)
	assert.Contains(t, err.Error(), PasswordEnvVar)
}

func TestApplyOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	threshold := 30 * time.Second
	serverID := 3
	err = cfg.ApplyOverrides(Overrides{
		Threshold:         &threshold,
		ServerID:          &serverID,
		Concurrency:       4,
		NoThresholdPolicy: "lenient",
	})
	require.NoError(t, err)

	assert.Equal(t, threshold, *cfg.ThresholdDuration())
	assert.Equal(t, 3, *cfg.ServerID)
	assert.Equal(t, 4, cfg.GetConcurrency())
	assert.Equal(t, NoThresholdLenient, cfg.GetNoThresholdPolicy())

	badID := MaxServerID + 1
	err = cfg.ApplyOverrides(Overrides{ServerID: &badID})
	require.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "600", want: 10 * time.Minute},
		{in: " 0 ", want: 0},
		{in: "1h30m", want: 90 * time.Minute},
		{in: "250ms", want: 250 * time.Millisecond},
		{in: "", wantErr: true},
		{in: "ten minutes", wantErr: true},
		{in: "9223372036", want: 9223372036 * time.Second},
		{in: "9223372037", wantErr: true},
		{in: "-9223372037", wantErr: true},
		{in: "9223372036854775807", wantErr: true},
		{in: "99999999999999999999", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
