package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ValidPrompt(t *testing.T) {
	ClearCache()

	prompt, err := Get(GenerationFile, "announcement-system")
	require.NoError(t, err)
	assert.Contains(t, prompt, "{{.MaxChars}}")
	assert.Contains(t, prompt, "no hashtags")
}

func TestGet_InvalidFile(t *testing.T) {
	ClearCache()

	_, err := Get("nonexistent.json", "some-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read prompt file")
}

func TestGet_InvalidKey(t *testing.T) {
	ClearCache()

	_, err := Get(GenerationFile, "nonexistent-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMustGet_Panics(t *testing.T) {
	ClearCache()

	assert.Panics(t, func() {
		MustGet("nonexistent.json", "some-key")
	})
}

func TestFormat(t *testing.T) {
	template := "Hello {{.Name}}, welcome to {{.Company}}!"
	data := map[string]string{
		"Name":    "Alice",
		"Company": "Acme Corp",
	}

	assert.Equal(t, "Hello Alice, welcome to Acme Corp!", Format(template, data))
}

func TestFormat_MissingKeyLeavesPlaceholder(t *testing.T) {
	assert.Equal(t, "Hello {{.Name}}", Format("Hello {{.Name}}", map[string]string{}))
}

func TestRender_GroundedUser(t *testing.T) {
	ClearCache()

	out, err := Render(GenerationFile, "script-grounded-user", map[string]string{
		"PriorPosts":  "Previous post: Sui launches new validator set",
		"NewsSummary": "Mysticeti cuts latency",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Previous post: Sui launches new validator set")
	assert.Contains(t, out, "Mysticeti cuts latency")
	assert.NotContains(t, out, "{{.")
}

func TestList_GenerationKeys(t *testing.T) {
	ClearCache()

	keys, err := List(GenerationFile)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"announcement-system",
		"announcement-user",
		"persona",
		"script-grounded-system",
		"script-grounded-user",
		"script-ungrounded",
	}, keys)
}

func TestCaching(t *testing.T) {
	ClearCache()

	prompt1, err := Get(GenerationFile, "persona")
	require.NoError(t, err)
	prompt2, err := Get(GenerationFile, "persona")
	require.NoError(t, err)

	assert.Equal(t, prompt1, prompt2)
}
