package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())
	assert.Equal(t, ProviderOllama, s.LLMProvider)
	assert.Equal(t, 8000, s.MCPServerPort)
	assert.Equal(t, 3, s.FullTextTopN)
	assert.Equal(t, 4000, s.FullTextMaxChars)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().SystemPrompt, s.SystemPrompt)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zoterochat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"llm_provider: anthropic\n"+
			"anthropic_api_key: sk-ant-test\n"+
			"mcp_server_port: 9123\n"+
			"fulltext_top_n: 0\n"), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, s.LLMProvider)
	assert.Equal(t, "sk-ant-test", s.AnthropicAPIKey)
	assert.Equal(t, 9123, s.MCPServerPort)
	assert.Zero(t, s.FullTextTopN)
	assert.Equal(t, "deepseek-r1:8b", s.OllamaModel, "unset keys keep defaults")
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"empty executable", func(s *Settings) { s.MCPExecutablePath = "" }},
		{"port too high", func(s *Settings) { s.MCPServerPort = 70000 }},
		{"port zero", func(s *Settings) { s.MCPServerPort = 0 }},
		{"unknown provider", func(s *Settings) { s.LLMProvider = "bard" }},
		{"negative history", func(s *Settings) { s.MaxConversationHistory = -1 }},
		{"negative top n", func(s *Settings) { s.FullTextTopN = -2 }},
		{"zero char cap", func(s *Settings) { s.FullTextMaxChars = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}
