package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transifex/jsonapi-client/internal/config"
)

const typesConfig = `
[type:articles]
uri        = posts
attributes = title, body
to_one     = author:people
to_many    = tags

[type:people]
attributes = name
`

func getConfigPath(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jsonapirc")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	}
	return path
}

func TestLoginCommand(t *testing.T) {
	path := getConfigPath(t, "")
	streams, out, _ := getTestStreams()

	err := LoginCommand(LoginCommandArguments{
		ConfigPath: path,
		Name:       "production",
		APIBase:    "https://api.example.com",
		Token:      "secret",
		Workers:    4,
	}, streams)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "host 'production'")

	err = LoginCommand(LoginCommandArguments{
		ConfigPath: path,
		Name:       "staging",
		APIBase:    "https://staging.example.com",
		Token:      "other",
	}, streams)
	require.NoError(t, err)

	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	// The first host saved stays the active one
	assert.Equal(t, "production", cfg.ActiveHost)
	require.Len(t, cfg.Hosts, 2)
	assert.Equal(t, config.Host{
		Name:    "production",
		APIBase: "https://api.example.com",
		Token:   "secret",
		Workers: 4,
	}, *cfg.FindHost("production"))

	err = LoginCommand(LoginCommandArguments{
		ConfigPath: path,
		Name:       "staging",
		APIBase:    "https://staging.example.com",
		Token:      "rotated",
		Activate:   true,
	}, streams)
	require.NoError(t, err)
	cfg, err = config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.ActiveHost)
	assert.Len(t, cfg.Hosts, 2)
	assert.Equal(t, "rotated", cfg.FindHost("staging").Token)
}

func TestLoginCommandPromptsForToken(t *testing.T) {
	path := getConfigPath(t, "")
	original := promptToken
	promptToken = func() (string, error) { return "typed", nil }
	t.Cleanup(func() { promptToken = original })

	streams, _, _ := getTestStreams()
	arguments := LoginCommandArguments{
		ConfigPath: path,
		Name:       "production",
		APIBase:    "https://api.example.com",
	}

	err := LoginCommand(arguments, streams)
	assert.EqualError(t, err, "no token given")

	streams.Interactive = true
	err = LoginCommand(arguments, streams)
	require.NoError(t, err)
	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "typed", cfg.FindHost("production").Token)
}

func TestLoginCommandInvalidHost(t *testing.T) {
	path := getConfigPath(t, "")
	streams, _, _ := getTestStreams()

	err := LoginCommand(LoginCommandArguments{
		ConfigPath: path,
		Name:       "production",
		APIBase:    "not a url",
		Token:      "secret",
	}, streams)
	assert.Error(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestTypesCommand(t *testing.T) {
	path := getConfigPath(t, typesConfig)
	streams, out, _ := getTestStreams()

	err := TypesCommand(path, FormatYAML, streams)
	require.NoError(t, err)
	assert.YAMLEq(t, `
- name: articles
  uri: posts
  attributes: [title, body]
  relationships:
    author: people
    tags: "[]tags"
- name: people
  uri: people
  attributes: [name]
`, out.String())
}

func TestNewConnection(t *testing.T) {
	path := getConfigPath(t, `
[main]
host = production

[production]
api_base            = https://api.example.com
token               = secret
requests_per_second = 0.5
`+typesConfig)

	api, _, host, err := NewConnection(ConnectionOptions{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, "production", host.Name)
	assert.Equal(t, "https://api.example.com", api.APIBase)

	_, exists := api.Registry.Lookup("articles")
	assert.True(t, exists)

	api, _, _, err = NewConnection(ConnectionOptions{
		ConfigPath: path,
		Host:       "https://other.example.com",
		Token:      "override",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com", api.APIBase)

	_, _, _, err = NewConnection(ConnectionOptions{
		ConfigPath: path,
		Host:       "unknown",
	})
	assert.EqualError(t, err, "unknown host 'unknown'")
}

func TestLookupTypeFallsBack(t *testing.T) {
	path := getConfigPath(t, "[local]\napi_base = http://localhost:8000\n"+typesConfig)
	api, _, _, err := NewConnection(ConnectionOptions{ConfigPath: path})
	require.NoError(t, err)

	resourceType := LookupType(api, "comments")
	assert.Equal(t, "comments", resourceType.Name())
	assert.Empty(t, resourceType.AttributeNames())
}
