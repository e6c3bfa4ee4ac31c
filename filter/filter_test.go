package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompile_EmptyExpressionAllowsAll(t *testing.T) {
	eng, err := Compile("")
	assert.NoError(t, err)
	assert.True(t, eng.Allow(Input{ChatID: 1}))
	assert.True(t, eng.Allow(Input{ChatID: -999}))
}

func TestAllowAll_NeverRejects(t *testing.T) {
	eng := AllowAll()
	assert.True(t, eng.Allow(Input{ChatID: 1, Text: "anything"}))
}

func TestCompile_ChatIDAllowlist(t *testing.T) {
	eng, err := Compile(`chat_id in [100, 200]`)
	assert.NoError(t, err)

	assert.True(t, eng.Allow(Input{ChatID: 100}))
	assert.True(t, eng.Allow(Input{ChatID: 200}))
	assert.False(t, eng.Allow(Input{ChatID: 300}))
}

func TestCompile_IsCommandBypassesChatFilter(t *testing.T) {
	eng, err := Compile(`chat_id in [100] || is_command`)
	assert.NoError(t, err)

	assert.True(t, eng.Allow(Input{ChatID: 999, IsCommand: true}))
	assert.False(t, eng.Allow(Input{ChatID: 999, IsCommand: false}))
}

func TestCompile_TextPrefixCheck(t *testing.T) {
	eng, err := Compile(`text.startsWith("/")`)
	assert.NoError(t, err)

	assert.True(t, eng.Allow(Input{Text: "/start"}))
	assert.False(t, eng.Allow(Input{Text: "hello"}))
}

func TestCompile_RejectsNonBooleanExpression(t *testing.T) {
	_, err := Compile(`chat_id + 1`)
	assert.Error(t, err)
}

func TestCompile_RejectsInvalidSyntax(t *testing.T) {
	_, err := Compile(`chat_id ===`)
	assert.Error(t, err)
}

func TestCompile_RejectsUnknownVariable(t *testing.T) {
	_, err := Compile(`nonexistent_field == 1`)
	assert.Error(t, err)
}
