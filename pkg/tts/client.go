// Package tts provides a client for the ElevenLabs text-to-speech API.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aiko-go/internal/config"
	"aiko-go/pkg/log"
)

// Client defines the interface for a TTS client.
type Client interface {
	// Synthesize 把文本合成为音频（audio/mpeg），voiceID 为空时使用配置中的默认音色。
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

type elevenLabsClient struct {
	cfg    config.TTSConfig
	client *http.Client
}

// NewClient creates a new ElevenLabs client.
func NewClient(cfg config.TTSConfig) Client {
	return &elevenLabsClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type synthesizeRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize calls POST /v1/text-to-speech/{voice_id} and returns the raw audio bytes.
func (c *elevenLabsClient) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if voiceID == "" {
		voiceID = c.cfg.VoiceID
	}
	log.Infof("[TTSClient] 开始调用 TTS API, voice: %s, text_len: %d", voiceID, len(text))

	reqBody := synthesizeRequest{
		Text:    text,
		ModelID: c.cfg.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       c.cfg.Stability,
			SimilarityBoost: c.cfg.SimilarityBoost,
			Style:           c.cfg.Style,
			UseSpeakerBoost: c.cfg.SpeakerBoost,
		},
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tts request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", strings.TrimRight(c.cfg.BaseURL, "/"), voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[TTSClient] 调用 TTS API 失败, error: %v", err)
		return nil, fmt.Errorf("failed to call tts api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Errorf("[TTSClient] TTS API 返回非 200 状态码: %s", resp.Status)
		return nil, fmt.Errorf("tts api returned non-200 status: %s, body: %s", resp.Status, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tts audio: %w", err)
	}
	if len(audio) == 0 {
		log.Warnf("[TTSClient] TTS API 返回了空的音频数据")
		return nil, fmt.Errorf("received empty audio from tts api")
	}
	log.Infof("[TTSClient] 成功获取音频, 大小: %d 字节", len(audio))
	return audio, nil
}
