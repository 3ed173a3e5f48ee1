// Package player wires a Decoder, an AudioTransfer and a graph.Root into a
// PortAudio callback stream: the decoder runs on a producer goroutine
// filling the transfer's ring, and the callback thread drives the graph
// (transfer -> panner -> limiter) and converts its float32 output to
// int16 PCM for the device.
package player

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drgolem/resonantmix/pkg/audiotransfer"
	"github.com/drgolem/resonantmix/pkg/decoders"
	"github.com/drgolem/resonantmix/pkg/graph"
	"github.com/drgolem/resonantmix/pkg/panner"
	"github.com/drgolem/resonantmix/pkg/timestamp"
	"github.com/drgolem/resonantmix/pkg/types"

	"github.com/drgolem/go-portaudio/portaudio"
)

const (
	ringCapacity = 32
	ringSlotLen  = 4096
)

// Player plays one audio file through a graph.Root driven by a PortAudio
// callback stream. It owns exactly one AudioTransfer, registered as the
// graph's sole source.
type Player struct {
	stream      *portaudio.PaStream
	decoder     types.AudioDecoder
	transfer    *audiotransfer.AudioTransfer
	root        *graph.Root
	deviceIndex int

	framesPerBuffer int
	sampleRate      int
	channels        int

	outFloat [][]float32 // graph.Root scratch output, one slice per channel
	outBytes []byte      // int16 PCM staging buffer for the callback

	samplesOut atomic.Uint64 // frames written to the device, for output-time tracking

	producerDone         atomic.Bool
	playbackComplete     atomic.Bool
	playbackCompleteChan chan struct{}
	stopChan             chan struct{}
	wg                   sync.WaitGroup
	mu                   sync.Mutex
	stopped              bool

	currentFileName string
	startTime       time.Time
}

// New creates a Player that will mix its single decoded source through p
// and write deviceChannels of audio to the given PortAudio output device.
func New(deviceIdx int, p *panner.Panner, deviceChannels, framesPerBuffer int, limiterThreshold float64, attackTime, releaseTime int) *Player {
	root := graph.New(p, deviceChannels, framesPerBuffer, limiterThreshold, attackTime, releaseTime)
	outFloat := make([][]float32, deviceChannels)
	for c := range outFloat {
		outFloat[c] = make([]float32, framesPerBuffer)
	}
	return &Player{
		root:            root,
		deviceIndex:     deviceIdx,
		framesPerBuffer: framesPerBuffer,
		channels:        deviceChannels,
		outFloat:        outFloat,
		outBytes:        make([]byte, framesPerBuffer*deviceChannels*2),
	}
}

// OpenFile opens an audio file, creates its decoder and registers a fresh
// AudioTransfer with the graph as the sole source.
func (p *Player) OpenFile(fileName string) error {
	if p.decoder != nil {
		p.decoder.Close()
		p.decoder = nil
	}

	decoder, err := decoders.NewDecoder(fileName)
	if err != nil {
		return err
	}

	rate, channels, bps := decoder.GetFormat()
	if bps != 16 {
		decoder.Close()
		return fmt.Errorf("player: unsupported bit depth %d (decoder output is converted to int16 before fill_interleaved)", bps)
	}

	slog.Info("audio file opened",
		"file", filepath.Base(fileName),
		"sample_rate", rate,
		"channels", channels,
		"bits_per_sample", bps)

	p.decoder = decoder
	p.sampleRate = rate
	p.currentFileName = filepath.Base(fileName)
	p.transfer = audiotransfer.New(ringCapacity, channels, ringSlotLen, float64(rate))
	p.root.AddSource(p.currentFileName, channels, p.transfer)

	return nil
}

// PlayFile starts the PortAudio stream and the decoder producer goroutine.
func (p *Player) PlayFile() error {
	if p.decoder == nil {
		return fmt.Errorf("no file opened")
	}

	p.producerDone.Store(false)
	p.playbackComplete.Store(false)
	p.playbackCompleteChan = make(chan struct{})
	p.stopChan = make(chan struct{})
	p.stopped = false
	p.samplesOut.Store(0)
	p.startTime = time.Now()

	if err := p.initializeStream(); err != nil {
		return err
	}

	p.transfer.SetDecodingFinished(false)
	p.wg.Add(1)
	go p.produce()

	slog.Debug("playback started")
	return nil
}

func (p *Player) initializeStream() error {
	p.stream = &portaudio.PaStream{
		OutputParameters: &portaudio.PaStreamParameters{
			DeviceIndex:  p.deviceIndex,
			ChannelCount: p.channels,
			SampleFormat: portaudio.SampleFmtInt16,
		},
		SampleRate: float64(p.sampleRate),
	}

	if err := p.stream.OpenCallback(p.framesPerBuffer, p.audioCallback); err != nil {
		return fmt.Errorf("failed to open stream with callback: %w", err)
	}
	if err := p.stream.StartStream(); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}
	return nil
}

// audioCallback drives the graph for frameCount frames and converts the
// float32 result to interleaved int16 PCM. Realtime thread: no allocation,
// no blocking, no locks beyond what graph.Root/AudioTransfer guarantee.
func (p *Player) audioCallback(
	input, output []byte,
	frameCount uint,
	timeInfo *portaudio.StreamCallbackTimeInfo,
	statusFlags portaudio.StreamCallbackFlags,
) portaudio.StreamCallbackResult {
	n := int(frameCount)
	if n > p.framesPerBuffer {
		n = p.framesPerBuffer
	}

	outputTime := float64(p.samplesOut.Load()) / float64(p.sampleRate)
	callbackTime := audiotransfer.CallbackTime{OutputTimeSeconds: outputTime}

	chans := p.outFloat
	for c := range chans {
		chans[c] = chans[c][:n]
	}
	p.root.Process(chans, n, callbackTime)

	bytesNeeded := n * p.channels * 2
	buf := p.outBytes[:bytesNeeded]
	for i := 0; i < n; i++ {
		for c := 0; c < p.channels; c++ {
			v := chans[c][i]
			s := int32(v * 32767)
			if s > 32767 {
				s = 32767
			} else if s < -32768 {
				s = -32768
			}
			off := (i*p.channels + c) * 2
			buf[off] = byte(s & 0xFF)
			buf[off+1] = byte((s >> 8) & 0xFF)
		}
	}
	copy(output, buf)

	p.samplesOut.Add(uint64(n))

	if p.producerDone.Load() && p.transfer.BufferStateSeconds() <= 0 {
		p.playbackComplete.Store(true)
		select {
		case <-p.playbackCompleteChan:
		default:
			close(p.playbackCompleteChan)
		}
		return portaudio.Complete
	}

	return portaudio.Continue
}

// produce reads from the decoder and fills the transfer's ring. Producer
// goroutine: the only thread allowed to block or sleep.
func (p *Player) produce() {
	defer p.wg.Done()
	defer p.producerDone.Store(true)
	defer p.transfer.SetDecodingFinished(true)

	const samplesPerChunk = 1024
	_, channels, _ := p.decoder.GetFormat()
	raw := make([]byte, samplesPerChunk*channels*2)
	var decodedSamples int64

	for {
		select {
		case <-p.stopChan:
			return
		default:
		}

		buf, ok := p.transfer.TakeFreeBuffer(ringSlotLen * 4)
		if !ok {
			time.Sleep(4 * time.Millisecond)
			continue
		}

		samplesRead, err := p.decoder.DecodeSamples(samplesPerChunk, raw)
		if err != nil || samplesRead == 0 {
			slog.Debug("decoder finished", "error", err, "samples_read", samplesRead)
			return
		}

		ts := timestamp.Timestamp{
			PTS:            float64(decodedSamples) / float64(p.sampleRate),
			SeekGeneration: p.transfer.CurrentSeekGeneration(),
		}
		interleaved := bytesToInt16(raw[:samplesRead*channels*2])
		if err := buf.FillInterleaved(ts, interleaved, channels); err != nil {
			slog.Error("fill_interleaved failed", "error", err)
			return
		}
		p.transfer.PutReadyBuffer(samplesRead)
		decodedSamples += int64(samplesRead)
	}
}

func bytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(b[2*i]) | int16(b[2*i+1])<<8
	}
	return out
}

// Wait blocks until the decoder has finished and all buffered audio has
// played out.
func (p *Player) Wait() {
	p.wg.Wait()
	<-p.playbackCompleteChan
}

// Stop halts playback: signals the producer, waits for it, then tears down
// the stream and decoder. Safe to call more than once.
func (p *Player) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()

	if p.stream != nil {
		if err := p.stream.StopStream(); err != nil {
			slog.Warn("failed to stop stream", "error", err)
		}
		if err := p.stream.CloseCallback(); err != nil {
			slog.Warn("failed to close stream", "error", err)
		}
		p.stream = nil
	}

	if p.decoder != nil {
		if err := p.decoder.Close(); err != nil {
			slog.Warn("failed to close decoder", "error", err)
		}
		p.decoder = nil
	}

	return nil
}

// Transfer exposes the underlying AudioTransfer for control-thread queries
// and setters (play/pause/seek/gain).
func (p *Player) Transfer() *audiotransfer.AudioTransfer {
	return p.transfer
}

// GetPlaybackStatus reports current playback status. Implements
// types.PlaybackMonitor.
func (p *Player) GetPlaybackStatus() types.PlaybackStatus {
	var gain float64
	if limiters := p.root.Limiters(); len(limiters) > 0 {
		gain = limiters[0].CurrentGain()
	}
	return types.PlaybackStatus{
		FileName:        p.currentFileName,
		SampleRate:      p.sampleRate,
		Channels:        p.channels,
		BitsPerSample:   16,
		FramesPerBuffer: p.framesPerBuffer,
		PlayedSamples:   p.samplesOut.Load(),
		BufferedSamples: uint64(p.transfer.BufferStateSeconds() * float32(p.sampleRate)),
		ElapsedTime:     time.Since(p.startTime),
		UnderrunCount:   p.transfer.BufferUnderrunCounter(),
		LimiterGain:     gain,
	}
}
