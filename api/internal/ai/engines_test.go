package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngines() *Engines {
	return NewEngines("gemini",
		NewService(&fakeProvider{name: "gemini"}),
		NewService(&fakeProvider{name: "gpt"}),
		nil,
	)
}

func TestEnginesGetEngine(t *testing.T) {
	e := testEngines()
	assert.Equal(t, []string{"gemini", "gpt"}, e.Names())

	cases := map[string]string{
		"":       "gemini",
		"gemini": "gemini",
		" GPT ":  "gpt",
		"openai": "gpt",
		"OpenAI": "gpt",
	}
	for in, want := range cases {
		s, err := e.GetEngine(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, s.Name(), in)
	}

	_, err := e.GetEngine("deepseek")
	assert.EqualError(t, err, `unknown llm_name "deepseek"; use one of gemini, gpt`)
}

func TestEnginesMissingDefault(t *testing.T) {
	e := NewEngines("gpt", NewService(&fakeProvider{name: "gemini"}))
	_, err := e.Default()
	assert.Error(t, err)
}

func TestManager(t *testing.T) {
	m := NewManager(testEngines())

	s, err := m.Get(42)
	require.NoError(t, err)
	assert.Equal(t, "gemini", s.Name())

	s, err = m.Set(42, "openai")
	require.NoError(t, err)
	assert.Equal(t, "gpt", s.Name())

	s, err = m.Get(42)
	require.NoError(t, err)
	assert.Equal(t, "gpt", s.Name())

	s, err = m.Get(7)
	require.NoError(t, err)
	assert.Equal(t, "gemini", s.Name(), "other chats keep the default")

	_, err = m.Set(42, "nope")
	assert.Error(t, err)
	s, _ = m.Get(42)
	assert.Equal(t, "gpt", s.Name(), "a failed switch keeps the previous engine")
}
