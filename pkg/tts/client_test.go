package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"aiko-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) config.TTSConfig {
	return config.TTSConfig{
		APIKey:          "xi-key",
		BaseURL:         baseURL,
		VoiceID:         "default-voice",
		ModelID:         "eleven_monolingual_v1",
		Stability:       0.3,
		SimilarityBoost: 0.7,
		Style:           0.8,
		SpeakerBoost:    true,
	}
}

func TestSynthesize_Success(t *testing.T) {
	var got synthesizeRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, "xi-key", r.Header.Get("xi-api-key"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("ID3fake-mp3"))
	}))
	defer srv.Close()

	audio, err := NewClient(testConfig(srv.URL)).Synthesize(context.Background(), "nyaa", "")
	require.NoError(t, err)

	assert.Equal(t, []byte("ID3fake-mp3"), audio)
	assert.Equal(t, "/v1/text-to-speech/default-voice", path)
	assert.Equal(t, "nyaa", got.Text)
	assert.Equal(t, "eleven_monolingual_v1", got.ModelID)
	assert.InDelta(t, 0.8, got.VoiceSettings.Style, 1e-9)
	assert.True(t, got.VoiceSettings.UseSpeakerBoost)
}

func TestSynthesize_ExplicitVoice(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	_, err := NewClient(testConfig(srv.URL)).Synthesize(context.Background(), "hi", "AZnzlk1XvdvUeBnXmlld")
	require.NoError(t, err)
	assert.Equal(t, "/v1/text-to-speech/AZnzlk1XvdvUeBnXmlld", path)
}

func TestSynthesize_Errors(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("bad key"))
		}))
		defer srv.Close()

		_, err := NewClient(testConfig(srv.URL)).Synthesize(context.Background(), "hi", "")
		assert.ErrorContains(t, err, "bad key")
	})

	t.Run("empty audio", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer srv.Close()

		_, err := NewClient(testConfig(srv.URL)).Synthesize(context.Background(), "hi", "")
		assert.ErrorContains(t, err, "empty audio")
	})
}
