package gateway

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// oggStream 生成一个包含 OpusHead、OpusTags 与给定帧的 Ogg 流。
func oggStream(t *testing.T, frames ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := oggwriter.NewWith(&buf, 48000, 2)
	require.NoError(t, err)
	for i, f := range frames {
		require.NoError(t, w.WriteRTP(&rtp.Packet{
			Header:  rtp.Header{SequenceNumber: uint16(i), Timestamp: uint32(i * 960)},
			Payload: f,
		}))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestStreamOpus(t *testing.T) {
	frames := [][]byte{{0xf8, 0x01}, {0xf8, 0x02}, {0xf8, 0x03}}
	out := make(chan []byte, len(frames))

	require.NoError(t, streamOpus(context.Background(), bytes.NewReader(oggStream(t, frames...)), out))
	close(out)

	var got [][]byte
	for f := range out {
		got = append(got, f)
	}
	assert.Equal(t, frames, got)
}

func TestStreamOpus_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// 无缓冲且无人接收的通道
	err := streamOpus(ctx, bytes.NewReader(oggStream(t, []byte{0xf8, 0x01})), make(chan []byte))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamOpus_NotOgg(t *testing.T) {
	err := streamOpus(context.Background(), bytes.NewReader([]byte("ID3 mp3 bytes")), make(chan []byte, 1))
	assert.Error(t, err)
}

func TestVoiceSink_Play(t *testing.T) {
	frames := [][]byte{{0xf8, 0x01}, {0xf8, 0x02}}
	stream := oggStream(t, frames...)

	vc := &discordgo.VoiceConnection{OpusSend: make(chan []byte, 8)}
	sink := &voiceSink{
		vc: vc,
		transcode: func(_ context.Context, audio []byte) (io.ReadCloser, func() error, error) {
			assert.Equal(t, []byte("mp3"), audio)
			return io.NopCloser(bytes.NewReader(stream)), func() error { return nil }, nil
		},
	}

	assert.False(t, sink.IsPlaying())
	require.NoError(t, sink.Play(context.Background(), []byte("mp3")))
	assert.False(t, sink.IsPlaying())

	require.Len(t, vc.OpusSend, 2)
	assert.Equal(t, frames[0], <-vc.OpusSend)
	assert.Equal(t, frames[1], <-vc.OpusSend)
}

func TestVoiceSink_PlayingFlag(t *testing.T) {
	pr, pw := io.Pipe()
	vc := &discordgo.VoiceConnection{OpusSend: make(chan []byte, 8)}
	sink := &voiceSink{
		vc: vc,
		transcode: func(context.Context, []byte) (io.ReadCloser, func() error, error) {
			return pr, func() error { return nil }, nil
		},
	}

	done := make(chan error, 1)
	go func() { done <- sink.Play(context.Background(), nil) }()

	require.Eventually(t, sink.IsPlaying, time.Second, time.Millisecond)
	_, err := pw.Write(oggStream(t, []byte{0xf8, 0x01}))
	require.NoError(t, err)
	require.NoError(t, pw.Close())

	require.NoError(t, <-done)
	assert.False(t, sink.IsPlaying())
}
