package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aiko-go/internal/model"
	"aiko-go/pkg/log"
	"aiko-go/pkg/tts"
)

const (
	defaultVoiceQueueSize = 16
	defaultPollInterval   = 500 * time.Millisecond
)

// AudioSink 是一个已连接的语音输出通道。
type AudioSink interface {
	// Play 播放一段音频，直到播放结束或 ctx 被取消才返回。
	Play(ctx context.Context, audio []byte) error
	// IsPlaying 报告通道当前是否正在输出声音（包括其他来源的播放）。
	IsPlaying() bool
	// Disconnect 断开连接。
	Disconnect() error
}

// VoiceService 维护会话到语音通道的映射，并把回复朗读到对应通道。
type VoiceService interface {
	// Start 为会话登记语音通道，已存在时返回 ErrAlreadyActive。
	Start(key model.ConversationKey, sink AudioSink) error
	// Stop 立即移除并断开会话的语音通道，不存在时返回 ErrNotActive。
	Stop(key model.ConversationKey) error
	HasSink(key model.ConversationKey) bool
	// Speak 合成并播放文本，阻塞到播放完成；同一通道上的调用按先后顺序依次播放。
	Speak(ctx context.Context, key model.ConversationKey, text string) error
	// Enqueue 把文本放入朗读队列后立即返回，错误只记录日志。
	Enqueue(key model.ConversationKey, text string)
	// StopAll 断开全部语音通道，用于退出。
	StopAll()
}

type speakJob struct {
	text string
	done chan error // Enqueue 提交的任务为 nil
}

type voiceSession struct {
	key    model.ConversationKey
	sink   AudioSink
	jobs   chan speakJob
	ctx    context.Context
	cancel context.CancelFunc
	// exited 在 worker 回复完所有已取出和排队的任务后关闭
	exited chan struct{}
}

type voiceService struct {
	tts          tts.Client
	voiceID      string
	queueSize    int
	pollInterval time.Duration

	mu       sync.Mutex
	sessions map[model.ConversationKey]*voiceSession
}

// NewVoiceService 创建一个新的 VoiceService，voiceID 为空时使用 TTS 客户端的默认音色。
func NewVoiceService(ttsClient tts.Client, voiceID string, queueSize int) VoiceService {
	if queueSize <= 0 {
		queueSize = defaultVoiceQueueSize
	}
	return &voiceService{
		tts:          ttsClient,
		voiceID:      voiceID,
		queueSize:    queueSize,
		pollInterval: defaultPollInterval,
		sessions:     make(map[model.ConversationKey]*voiceSession),
	}
}

func (s *voiceService) Start(key model.ConversationKey, sink AudioSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[key]; ok {
		return ErrAlreadyActive
	}
	ctx, cancel := context.WithCancel(context.Background())
	sess := &voiceSession{
		key:    key,
		sink:   sink,
		jobs:   make(chan speakJob, s.queueSize),
		ctx:    ctx,
		cancel: cancel,
		exited: make(chan struct{}),
	}
	s.sessions[key] = sess
	go s.worker(sess)
	log.Infof("语音会话已开始: key=%s", key)
	return nil
}

func (s *voiceService) Stop(key model.ConversationKey) error {
	s.mu.Lock()
	sess, ok := s.sessions[key]
	if !ok {
		s.mu.Unlock()
		return ErrNotActive
	}
	delete(s.sessions, key)
	s.mu.Unlock()

	s.shutdown(sess)
	log.Infof("语音会话已结束: key=%s", key)
	return nil
}

func (s *voiceService) HasSink(key model.ConversationKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[key]
	return ok
}

func (s *voiceService) Speak(ctx context.Context, key model.ConversationKey, text string) error {
	sess, ok := s.session(key)
	if !ok {
		return ErrNotActive
	}
	return s.speakOn(ctx, sess, text)
}

// speakOn 把任务交给会话的 worker 并等待结果。会话可能在取出后被 Stop，此时 worker 已不再读取队列。
func (s *voiceService) speakOn(ctx context.Context, sess *voiceSession, text string) error {
	if sess.ctx.Err() != nil {
		return ErrNotActive
	}
	job := speakJob{text: text, done: make(chan error, 1)}
	select {
	case sess.jobs <- job:
	case <-sess.ctx.Done():
		return ErrNotActive
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-job.done:
		return err
	case <-sess.exited:
		// worker 退出前可能已回复该任务
		select {
		case err := <-job.done:
			return err
		default:
			return ErrNotActive
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *voiceService) Enqueue(key model.ConversationKey, text string) {
	sess, ok := s.session(key)
	if !ok {
		return
	}
	select {
	case sess.jobs <- speakJob{text: text}:
	default:
		log.Warnf("语音队列已满，丢弃本次朗读: key=%s, text_len=%d", key, len(text))
	}
}

func (s *voiceService) StopAll() {
	s.mu.Lock()
	sessions := make([]*voiceSession, 0, len(s.sessions))
	for key, sess := range s.sessions {
		sessions = append(sessions, sess)
		delete(s.sessions, key)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		s.shutdown(sess)
	}
}

func (s *voiceService) session(key model.ConversationKey) (*voiceSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	return sess, ok
}

// shutdown 取消正在进行的播放并断开连接，不等待 worker 退出。
func (s *voiceService) shutdown(sess *voiceSession) {
	sess.cancel()
	if err := sess.sink.Disconnect(); err != nil {
		log.Warnf("断开语音连接失败: key=%s, err=%v", sess.key, err)
	}
}

// worker 串行处理一个语音通道上的朗读任务。
func (s *voiceService) worker(sess *voiceSession) {
	defer close(sess.exited)
	for {
		select {
		case <-sess.ctx.Done():
			s.drain(sess)
			return
		case job := <-sess.jobs:
			err := s.play(sess, job.text)
			if err != nil {
				log.Errorf("朗读失败: key=%s, err=%v", sess.key, err)
			}
			if job.done != nil {
				job.done <- err
			}
		}
	}
}

func (s *voiceService) drain(sess *voiceSession) {
	for {
		select {
		case job := <-sess.jobs:
			if job.done != nil {
				job.done <- ErrNotActive
			}
		default:
			return
		}
	}
}

func (s *voiceService) play(sess *voiceSession, text string) error {
	audio, err := s.tts.Synthesize(sess.ctx, text, s.voiceID)
	if err != nil {
		return &BackendError{Backend: "tts", Err: err}
	}
	if err := s.waitIdle(sess); err != nil {
		return err
	}
	if err := sess.sink.Play(sess.ctx, audio); err != nil {
		if sess.ctx.Err() != nil {
			log.Infof("语音会话已停止，中断播放: key=%s", sess.key)
		}
		return fmt.Errorf("failed to play audio: %w", err)
	}
	return nil
}

// waitIdle 等待通道上的其他播放结束。
func (s *voiceService) waitIdle(sess *voiceSession) error {
	if !sess.sink.IsPlaying() {
		return nil
	}
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for sess.sink.IsPlaying() {
		select {
		case <-sess.ctx.Done():
			return sess.ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
