package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voxkit/voxbridge/domain/entities"
	"github.com/voxkit/voxbridge/domain/repositories"
	"github.com/voxkit/voxbridge/internal/audio"
	"github.com/voxkit/voxbridge/internal/codec"
)

// maxConcurrentSynthesis bounds how many sentences are synthesized at once.
// Two is enough to keep synthesis of sentence k overlapping generation of
// sentence k+1 without stacking up requests on a slow backend.
const maxConcurrentSynthesis = 2

// runPipeline drives one reassembled utterance through detection,
// transcription, generation and synthesis. Errors end the turn with a device
// error event; they never propagate past the actor.
func (a *Actor) runPipeline(pcm []byte) {
	audioCfg := repositories.AudioConfig{
		SampleRate: a.cfg.DeviceSampleRate,
		Channels:   a.cfg.Channels,
		Encoding:   "pcm16",
		Language:   a.cfg.Language,
	}

	// Stage 1: voice-activity gate.
	a.transition(entities.SessionDetecting)
	hasSpeech := a.detectSpeech(pcm, audioCfg)
	if a.ctx.Err() != nil {
		return
	}
	if !hasSpeech {
		a.logger.Debug("no speech detected, discarding utterance")
		a.emit(codec.EndResponse(a.session.ID))
		a.finishWith(entities.SessionEnded, entities.OutcomeNoSpeech)
		return
	}

	// Stage 2: transcription.
	a.transition(entities.SessionTranscribing)
	transcript, err := a.transcribe(pcm, audioCfg)
	if err != nil {
		a.failTurn("asr_failed", "could not transcribe the utterance", err)
		return
	}
	if strings.TrimSpace(transcript) == "" {
		a.emit(codec.ErrorEvent(a.session.ID, "no_input_understood", "no speech could be understood"))
		a.finishWith(entities.SessionFailed, entities.OutcomeNoTranscript)
		return
	}
	a.mu.Lock()
	a.session.Transcript = transcript
	a.mu.Unlock()
	a.emit(codec.FinalTranscript(a.session.ID, transcript))

	// Stage 3+4: generation and synthesis, pipelined at sentence boundaries.
	a.transition(entities.SessionReasoning)
	if err := a.respond(transcript); err != nil {
		if a.ctx.Err() != nil {
			return
		}
		a.failTurn("generation_failed", "could not produce a response", err)
		return
	}
	if a.ctx.Err() != nil {
		return
	}

	// Stage 5: playback.
	a.transition(entities.SessionPlaying)
	a.awaitPlayback()
}

// playGreeting synthesizes the configured greeting and streams it as the
// hello sequence. Best effort: a failed greeting is logged and the session
// moves on to listening.
func (a *Actor) playGreeting() {
	pcm, err := a.synthesizeSentence(a.cfg.Greeting)
	if err != nil {
		a.logger.Warn("greeting synthesis failed", zap.Error(err))
		return
	}

	a.emit(codec.HelloStart(a.session.ID, a.cfg.Greeting))
	index := 0
	chunker := audio.NewChunker(a.cfg.DeviceSampleRate, a.cfg.ChunkDuration)
	for _, chunk := range chunker.Write(pcm) {
		a.emit(codec.HelloChunk(a.session.ID, index, chunk))
		index++
	}
	if tail := chunker.Flush(); len(tail) > 0 {
		a.emit(codec.HelloChunk(a.session.ID, index, tail))
	}
	a.emit(codec.HelloEnd(a.session.ID))
}

// detectSpeech runs the VAD gate. Fails open: an unreachable detector counts
// as speech so user input is never silently dropped.
func (a *Actor) detectSpeech(pcm []byte, cfg repositories.AudioConfig) bool {
	var intervals []entities.SpeechInterval
	err := a.guards.vad.Do(a.ctx, a.cfg.Retry, func(ctx context.Context) error {
		var detectErr error
		intervals, detectErr = a.deps.Detector.DetectSpeech(ctx, pcm, cfg)
		return detectErr
	})
	if err != nil {
		if a.ctx.Err() != nil {
			return false
		}
		a.logger.Warn("vad unavailable, failing open", zap.Error(err))
		return true
	}
	return len(intervals) > 0
}

// submitStream opens an adapter stream with the submission bounded by the
// attempt deadline. The stream itself stays bound to the session context; the
// retry decorator cancels the attempt context as soon as the submission
// returns. A stream that arrives after the deadline is closed and discarded.
func submitStream[S interface{ Close() error }](attempt, session context.Context, open func(context.Context) (S, error)) (S, error) {
	type result struct {
		stream S
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		stream, err := open(session)
		ch <- result{stream, err}
	}()
	select {
	case r := <-ch:
		return r.stream, r.err
	case <-attempt.Done():
		go func() {
			if r := <-ch; r.err == nil {
				r.stream.Close()
			}
		}()
		var zero S
		return zero, attempt.Err()
	}
}

// transcribe submits the utterance and consumes the transcript stream.
// Retries and the per-attempt timeout wrap only the submission; a failure
// mid-stream aborts the turn so partial output is never duplicated.
func (a *Actor) transcribe(pcm []byte, cfg repositories.AudioConfig) (string, error) {
	var stream repositories.TranscriptStream
	err := a.guards.asr.Do(a.ctx, a.cfg.Retry, func(ctx context.Context) error {
		var subErr error
		stream, subErr = submitStream(ctx, a.ctx, func(ctx context.Context) (repositories.TranscriptStream, error) {
			return a.deps.Transcriber.Transcribe(ctx, pcm, cfg)
		})
		return subErr
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var final string
	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return final, nil
		}
		if err != nil {
			return "", err
		}
		if ev.IsFinal {
			final = ev.Text
			continue
		}
		// Advisory feedback only; never gates downstream processing.
		a.emit(codec.PartialTranscript(a.session.ID, ev.Text))
	}
}

// sentenceJob carries one sentence through synthesis. pcm delivers the
// complete device-rate audio for the sentence, or err the reason it could
// not be synthesized.
type sentenceJob struct {
	index int
	text  string
	pcm   chan []byte
	err   chan error
}

// respond streams the dialogue response, splits it into sentences, and
// synthesizes each sentence concurrently with generation of the next while
// emitting audio strictly in sentence order.
func (a *Actor) respond(transcript string) error {
	chat, err := a.deps.Dialogue.StartChat(a.ctx, nil)
	if err != nil {
		return err
	}

	var deltas repositories.DeltaStream
	err = a.guards.llm.Do(a.ctx, a.cfg.Retry, func(ctx context.Context) error {
		var subErr error
		deltas, subErr = submitStream(ctx, a.ctx, func(ctx context.Context) (repositories.DeltaStream, error) {
			return chat.SendStreaming(ctx, repositories.ChatMessage{
				Role:    repositories.UserRole,
				Content: transcript,
			})
		})
		return subErr
	})
	if err != nil {
		return err
	}
	defer deltas.Close()

	jobs := make(chan *sentenceJob, 8)
	genErr := make(chan error, 1)
	go a.generate(deltas, jobs, genErr)

	emitErr := a.emitSentences(jobs)
	if emitErr != nil {
		// Drain the generator so it can exit; its sends are buffered.
		for range jobs {
		}
	}
	if err := <-genErr; err != nil {
		return err
	}
	return emitErr
}

// generate pulls model deltas, cuts sentences, and launches synthesis for
// each. Runs concurrently with emitSentences; closes jobs when the stream
// ends or fails.
func (a *Actor) generate(deltas repositories.DeltaStream, jobs chan<- *sentenceJob, genErr chan<- error) {
	defer close(jobs)

	splitter := NewSplitter(a.cfg.MaxSentenceRunes)
	sem := make(chan struct{}, maxConcurrentSynthesis)
	index := 0
	var response strings.Builder

	launch := func(sentence string) {
		job := &sentenceJob{
			index: index,
			text:  sentence,
			pcm:   make(chan []byte, 1),
			err:   make(chan error, 1),
		}
		index++
		select {
		case sem <- struct{}{}:
		case <-a.ctx.Done():
			job.err <- a.ctx.Err()
			jobs <- job
			return
		}
		go func() {
			defer func() { <-sem }()
			pcm, err := a.synthesizeSentence(job.text)
			if err != nil {
				job.err <- err
				return
			}
			job.pcm <- pcm
		}()
		jobs <- job
	}

	for {
		delta, err := deltas.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			genErr <- err
			return
		}
		response.WriteString(delta)
		for _, sentence := range splitter.Push(delta) {
			launch(sentence)
		}
	}
	if tail, ok := splitter.Flush(); ok {
		launch(tail)
	}

	text := strings.TrimSpace(response.String())
	a.mu.Lock()
	a.session.ResponseText = text
	a.mu.Unlock()

	if text == "" {
		genErr <- errors.New("dialogue model returned an empty response")
		return
	}
	genErr <- nil
}

// emitSentences drains jobs in generation order, re-chunks each sentence's
// audio to the fixed playback duration, and streams it to the device.
func (a *Actor) emitSentences(jobs <-chan *sentenceJob) error {
	chunkIndex := 0
	started := false

	for job := range jobs {
		var pcm []byte
		select {
		case pcm = <-job.pcm:
		case err := <-job.err:
			return err
		case <-a.ctx.Done():
			return a.ctx.Err()
		}

		if !started {
			started = true
			a.transition(entities.SessionSynthesizing)
			a.emit(codec.StartAudio(a.session.ID, job.text))
		}

		chunker := audio.NewChunker(a.cfg.DeviceSampleRate, a.cfg.ChunkDuration)
		for _, chunk := range chunker.Write(pcm) {
			if err := a.sendChunk(chunk, chunkIndex); err != nil {
				return err
			}
			chunkIndex++
		}
		if tail := chunker.Flush(); len(tail) > 0 {
			if err := a.sendChunk(tail, chunkIndex); err != nil {
				return err
			}
			chunkIndex++
		}
	}

	if !started {
		return errors.New("response produced no synthesizable sentences")
	}
	a.emit(codec.EndAudio(a.session.ID))
	a.emit(codec.EndResponse(a.session.ID))
	a.logger.Debug("response audio delivered", zap.Int("chunks", chunkIndex))
	return nil
}

func (a *Actor) sendChunk(chunk []byte, index int) error {
	if err := a.ctx.Err(); err != nil {
		return err
	}
	return a.emit(codec.AudioChunk(a.session.ID, index, chunk, false))
}

// synthesizeSentence produces the complete device-rate PCM for one sentence.
// Retries and the per-attempt timeout wrap the submission; mid-stream
// failures abort the sentence.
func (a *Actor) synthesizeSentence(text string) ([]byte, error) {
	var stream repositories.AudioStream
	err := a.guards.tts.Do(a.ctx, a.cfg.Retry, func(ctx context.Context) error {
		var subErr error
		stream, subErr = submitStream(ctx, a.ctx, func(ctx context.Context) (repositories.AudioStream, error) {
			return a.deps.Synthesizer.Synthesize(ctx, text, a.cfg.Voice)
		})
		return subErr
	})
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var pcm []byte
	for {
		piece, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		pcm = append(pcm, piece...)
	}

	if stream.SampleRate() == a.cfg.DeviceSampleRate {
		return pcm, nil
	}
	return audio.Resample(pcm, stream.SampleRate(), a.cfg.DeviceSampleRate)
}

// failTurn surfaces one terminal error event and marks the session failed.
func (a *Actor) failTurn(code, message string, err error) {
	a.logger.Warn("turn failed", zap.String("code", code), zap.Error(err))
	a.emit(codec.ErrorEvent(a.session.ID, code, message))
	a.finishWith(entities.SessionFailed, entities.OutcomeAdapterError)
}

// awaitPlayback waits for the device's playback acknowledgement or the play
// timeout, then completes the turn.
func (a *Actor) awaitPlayback() {
	timer := time.NewTimer(a.cfg.PlayTimeout)
	defer timer.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case msg := <-a.mailbox:
			if msg.kind == msgPlaybackAck {
				a.finishWith(entities.SessionEnded, entities.OutcomeCompleted)
				return
			}
			// Frames and stray signals during playback are ignored.
		case <-timer.C:
			a.logger.Debug("playback acknowledgement timed out, completing turn")
			a.finishWith(entities.SessionEnded, entities.OutcomeCompleted)
			return
		}
	}
}
