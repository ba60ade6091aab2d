package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTTS struct {
	err error
}

func (f *fakeTTS) Synthesize(_ context.Context, text, _ string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte(text), nil
}

// fakeSink 记录播放顺序与最大并发播放数。
type fakeSink struct {
	mu           sync.Mutex
	played       []string
	active       int
	maxActive    int
	delay        time.Duration
	external     atomic.Bool
	disconnected atomic.Int32
}

func (f *fakeSink) Play(ctx context.Context, audio []byte) error {
	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()

	var err error
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		err = ctx.Err()
	}

	f.mu.Lock()
	f.active--
	if err == nil {
		f.played = append(f.played, string(audio))
	}
	f.mu.Unlock()
	return err
}

func (f *fakeSink) IsPlaying() bool {
	if f.external.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active > 0
}

func (f *fakeSink) Disconnect() error {
	f.disconnected.Add(1)
	return nil
}

func (f *fakeSink) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.played...), f.maxActive
}

func newTestVoiceService(t *testing.T, ttsClient *fakeTTS) *voiceService {
	t.Helper()
	svc := NewVoiceService(ttsClient, "", 64).(*voiceService)
	svc.pollInterval = 5 * time.Millisecond
	t.Cleanup(svc.StopAll)
	return svc
}

func TestVoiceService_StartStop(t *testing.T) {
	svc := newTestVoiceService(t, &fakeTTS{})
	a, b := &fakeSink{}, &fakeSink{}

	require.NoError(t, svc.Start("a", a))
	require.NoError(t, svc.Start("b", b))
	assert.ErrorIs(t, svc.Start("a", &fakeSink{}), ErrAlreadyActive)

	// 停止不存在的通道不改变登记表
	assert.ErrorIs(t, svc.Stop("missing"), ErrNotActive)
	assert.True(t, svc.HasSink("a"))
	assert.True(t, svc.HasSink("b"))

	require.NoError(t, svc.Stop("a"))
	assert.False(t, svc.HasSink("a"))
	assert.True(t, svc.HasSink("b"))
	assert.Equal(t, int32(1), a.disconnected.Load())
	assert.ErrorIs(t, svc.Stop("a"), ErrNotActive)

	svc.StopAll()
	assert.False(t, svc.HasSink("b"))
	assert.Equal(t, int32(1), b.disconnected.Load())
}

func TestVoiceService_SpeakNoOverlap(t *testing.T) {
	svc := newTestVoiceService(t, &fakeTTS{})
	sink := &fakeSink{delay: 2 * time.Millisecond}
	require.NoError(t, svc.Start("k", sink))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, svc.Speak(context.Background(), "k", fmt.Sprintf("line-%d", i)))
		}(i)
	}
	wg.Wait()

	played, maxActive := sink.snapshot()
	assert.Len(t, played, 10)
	assert.Equal(t, 1, maxActive)
}

func TestVoiceService_EnqueueFIFO(t *testing.T) {
	svc := newTestVoiceService(t, &fakeTTS{})
	sink := &fakeSink{delay: time.Millisecond}
	require.NoError(t, svc.Start("k", sink))

	for i := 0; i < 5; i++ {
		svc.Enqueue("k", fmt.Sprintf("line-%d", i))
	}
	// 同步的 Speak 排在所有已入队任务之后
	require.NoError(t, svc.Speak(context.Background(), "k", "last"))

	played, _ := sink.snapshot()
	assert.Equal(t, []string{"line-0", "line-1", "line-2", "line-3", "line-4", "last"}, played)
}

func TestVoiceService_WaitsForExternalPlayback(t *testing.T) {
	svc := newTestVoiceService(t, &fakeTTS{})
	sink := &fakeSink{}
	sink.external.Store(true)
	require.NoError(t, svc.Start("k", sink))

	done := make(chan error, 1)
	go func() { done <- svc.Speak(context.Background(), "k", "hello") }()

	select {
	case <-done:
		t.Fatal("speak must wait while the sink is busy")
	case <-time.After(30 * time.Millisecond):
	}
	sink.external.Store(false)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("speak did not resume after the sink became idle")
	}
	played, _ := sink.snapshot()
	assert.Equal(t, []string{"hello"}, played)
}

func TestVoiceService_SpeakWithoutSink(t *testing.T) {
	svc := newTestVoiceService(t, &fakeTTS{})
	assert.ErrorIs(t, svc.Speak(context.Background(), "k", "x"), ErrNotActive)
	// Enqueue 没有通道时直接忽略
	svc.Enqueue("k", "x")
}

func TestVoiceService_TTSFailure(t *testing.T) {
	svc := newTestVoiceService(t, &fakeTTS{err: errors.New("quota exceeded")})
	sink := &fakeSink{}
	require.NoError(t, svc.Start("k", sink))

	err := svc.Speak(context.Background(), "k", "x")
	var berr *BackendError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, "tts", berr.Backend)

	played, _ := sink.snapshot()
	assert.Empty(t, played)
	// 失败不影响通道继续使用
	assert.True(t, svc.HasSink("k"))
}

func TestVoiceService_StopCancelsInFlight(t *testing.T) {
	svc := newTestVoiceService(t, &fakeTTS{})
	sink := &fakeSink{delay: time.Hour}
	require.NoError(t, svc.Start("k", sink))

	done := make(chan error, 1)
	go func() { done <- svc.Speak(context.Background(), "k", "long") }()

	require.Eventually(t, sink.IsPlaying, time.Second, time.Millisecond)
	require.NoError(t, svc.Stop("k"))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight playback was not cancelled")
	}
}

func TestVoiceService_SpeakAfterStopFailsFast(t *testing.T) {
	svc := newTestVoiceService(t, &fakeTTS{})

	for i := 0; i < 100; i++ {
		require.NoError(t, svc.Start("k", &fakeSink{}))
		sess, ok := svc.session("k")
		require.True(t, ok)
		require.NoError(t, svc.Stop("k"))
		<-sess.exited

		// 取出会话后才被停止的情况
		done := make(chan error, 1)
		go func() { done <- svc.speakOn(context.Background(), sess, "late") }()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrNotActive)
		case <-time.After(time.Second):
			t.Fatalf("speak on a stopped session blocked (iteration %d)", i)
		}
	}
}

func TestVoiceService_SpeakRacingStop(t *testing.T) {
	svc := newTestVoiceService(t, &fakeTTS{})

	for i := 0; i < 50; i++ {
		require.NoError(t, svc.Start("k", &fakeSink{delay: time.Millisecond}))
		sess, ok := svc.session("k")
		require.True(t, ok)

		done := make(chan error, 1)
		go func() { done <- svc.speakOn(context.Background(), sess, "text") }()
		require.NoError(t, svc.Stop("k"))

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("speak racing stop blocked (iteration %d)", i)
		}
	}
}
