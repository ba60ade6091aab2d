package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"aiko-go/pkg/log"

	"github.com/bwmarrin/discordgo"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const opusSendTimeout = 5 * time.Second

// transcoder 把任意音频转换为 48kHz 双声道 Ogg/Opus 流，每页一个 20ms 帧。
type transcoder func(ctx context.Context, audio []byte) (io.ReadCloser, func() error, error)

func ffmpegTranscoder(ffmpegPath string) transcoder {
	return func(ctx context.Context, audio []byte) (io.ReadCloser, func() error, error) {
		cmd := exec.CommandContext(ctx, ffmpegPath,
			"-hide_banner", "-loglevel", "error",
			"-i", "pipe:0",
			"-c:a", "libopus", "-b:a", "64k", "-ar", "48000", "-ac", "2",
			"-frame_duration", "20", "-page_duration", "20000",
			"-f", "ogg", "pipe:1",
		)
		cmd.Stdin = bytes.NewReader(audio)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		out, err := cmd.StdoutPipe()
		if err != nil {
			return nil, nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, nil, fmt.Errorf("failed to start ffmpeg: %w", err)
		}
		wait := func() error {
			if err := cmd.Wait(); err != nil && ctx.Err() == nil {
				return fmt.Errorf("ffmpeg failed: %w: %s", err, stderr.String())
			}
			return nil
		}
		return out, wait, nil
	}
}

// voiceSink 通过语音连接播放音频，实现 service.AudioSink。
type voiceSink struct {
	vc        *discordgo.VoiceConnection
	transcode transcoder

	mu      sync.Mutex // 同一时刻只有一段音频写入 OpusSend
	playing atomic.Bool
}

func newVoiceSink(vc *discordgo.VoiceConnection, ffmpegPath string) *voiceSink {
	return &voiceSink{vc: vc, transcode: ffmpegTranscoder(ffmpegPath)}
}

func (s *voiceSink) Play(ctx context.Context, audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing.Store(true)
	defer s.playing.Store(false)

	stream, wait, err := s.transcode(ctx, audio)
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := s.vc.Speaking(true); err != nil {
		log.Warnf("设置说话状态失败: %v", err)
	}
	defer func() {
		if err := s.vc.Speaking(false); err != nil {
			log.Warnf("取消说话状态失败: %v", err)
		}
	}()

	sendErr := streamOpus(ctx, stream, s.vc.OpusSend)
	if sendErr != nil {
		// 让 ffmpeg 因管道关闭而退出
		_ = stream.Close()
	}
	if err := wait(); err != nil && sendErr == nil {
		return err
	}
	return sendErr
}

func (s *voiceSink) IsPlaying() bool {
	return s.playing.Load()
}

func (s *voiceSink) Disconnect() error {
	return s.vc.Disconnect()
}

// streamOpus 逐页读取 Ogg 流并把 Opus 帧写入 out，跳过 OpusTags 头。
func streamOpus(ctx context.Context, r io.Reader, out chan<- []byte) error {
	ogg, _, err := oggreader.NewWith(r)
	if err != nil {
		return fmt.Errorf("failed to read ogg header: %w", err)
	}
	for {
		payload, _, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to parse ogg page: %w", err)
		}
		if len(payload) == 0 || bytes.HasPrefix(payload, []byte("OpusTags")) {
			continue
		}

		select {
		case out <- payload:
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opusSendTimeout):
			return errors.New("voice connection is not accepting audio")
		}
	}
}
