package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/sjawhar/ghost-interviewer/internal/transcript"
)

// UtteranceSink receives speaker turns; *Controller implements it.
type UtteranceSink interface {
	Utterance(role transcript.Role, text string, partial bool) error
}

// DeepgramCallback feeds Deepgram live results for one speaker into a
// session. Interim results are forwarded as partial; is_final words are
// buffered until speech_final or UtteranceEnd commits them as one turn.
type DeepgramCallback struct {
	sink   UtteranceSink
	role   transcript.Role
	buffer *UtteranceBuffer
	logger *slog.Logger
}

func NewDeepgramCallback(sink UtteranceSink, role transcript.Role, logger *slog.Logger) *DeepgramCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeepgramCallback{
		sink:   sink,
		role:   role,
		buffer: NewUtteranceBuffer(),
		logger: logger,
	}
}

func (c *DeepgramCallback) Open(*api.OpenResponse) error {
	c.logger.Info("connected to Deepgram", "event", "deepgram_open")
	return nil
}

func (c *DeepgramCallback) Message(mr *api.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}

	alt := mr.Channel.Alternatives[0]
	sentence := strings.TrimSpace(alt.Transcript)
	if sentence == "" {
		return nil
	}

	if !mr.IsFinal {
		return c.forward(sentence, true)
	}

	words := make([]string, 0, len(alt.Words))
	for _, w := range alt.Words {
		if w.PunctuatedWord != "" {
			words = append(words, w.PunctuatedWord)
		} else {
			words = append(words, w.Word)
		}
	}
	if len(words) == 0 {
		words = strings.Fields(sentence)
	}
	c.buffer.AddWords(words)

	if mr.SpeechFinal {
		return c.flush()
	}
	return nil
}

func (c *DeepgramCallback) Metadata(*api.MetadataResponse) error { return nil }

func (c *DeepgramCallback) SpeechStarted(*api.SpeechStartedResponse) error { return nil }

func (c *DeepgramCallback) UtteranceEnd(*api.UtteranceEndResponse) error {
	return c.flush()
}

// Close commits whatever is still buffered so no final words are lost.
func (c *DeepgramCallback) Close(*api.CloseResponse) error {
	c.logger.Info("disconnected from Deepgram", "event", "deepgram_close")
	return c.flush()
}

func (c *DeepgramCallback) Error(er *api.ErrorResponse) error {
	c.logger.Error("deepgram error", "event", "deepgram_error", "code", er.ErrCode, "description", er.Description)
	return nil
}

func (c *DeepgramCallback) UnhandledEvent([]byte) error { return nil }

func (c *DeepgramCallback) flush() error {
	text := c.buffer.Flush()
	if text == "" {
		return nil
	}
	return c.forward(text, false)
}

func (c *DeepgramCallback) forward(text string, partial bool) error {
	err := c.sink.Utterance(c.role, text, partial)
	if errors.Is(err, ErrSessionClosed) {
		return nil
	}
	return err
}

// AudioStream is a live transcription connection fed raw audio frames.
type AudioStream interface {
	io.Writer
	Stop()
}

// DeepgramDialer opens one Deepgram live connection per speaker stream.
// client.Init must have been called once before Dial.
type DeepgramDialer struct {
	APIKey     string
	Model      string
	SampleRate int
	Logger     *slog.Logger
}

func (d DeepgramDialer) Dial(ctx context.Context, sink UtteranceSink, role transcript.Role) (AudioStream, error) {
	model := d.Model
	if model == "" {
		model = "nova-2"
	}
	rate := d.SampleRate
	if rate <= 0 {
		rate = 16000
	}

	cOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          model,
		Language:       "en-US",
		Punctuate:      true,
		SmartFormat:    true,
		InterimResults: true,
		Encoding:       "linear16",
		SampleRate:     rate,
		Channels:       1,
	}

	dg, err := client.NewWSUsingCallback(ctx, d.APIKey, cOptions, tOptions, NewDeepgramCallback(sink, role, d.Logger))
	if err != nil {
		return nil, fmt.Errorf("create deepgram client: %w", err)
	}
	if ok := dg.Connect(); !ok {
		return nil, errors.New("deepgram connect failed")
	}
	return dg, nil
}
