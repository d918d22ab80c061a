// Package google provides a Google Cloud Speech-to-Text streaming factory.
package google

import (
	"context"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"interview-speech-relay/internal/models"
	"interview-speech-relay/internal/service/stt"
)

// Factory implements stt.Factory using one shared Google Speech client.
// Each OpenStream call creates an independent gRPC stream; no stream state
// lives on the factory.
type Factory struct {
	client *speech.Client
}

// New creates the shared Google Speech client.
// Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
func New(ctx context.Context) (*Factory, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Factory{client: c}, nil
}

// Close releases the shared client.
func (f *Factory) Close() error {
	return f.client.Close()
}

// OpenStream starts a streaming recognition session, sends the config
// message and spawns the receive loop feeding cb.
func (f *Factory) OpenStream(ctx context.Context, cfg stt.StreamConfig, cb stt.Callback) (stt.Stream, error) {
	rpc, err := f.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, err
	}

	err = rpc.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz: cfg.SampleRateHz,
					LanguageCode:    cfg.LanguageCode,
					DiarizationConfig: &speechpb.SpeakerDiarizationConfig{
						EnableSpeakerDiarization: true,
						MinSpeakerCount:          cfg.SpeakerCount,
						MaxSpeakerCount:          cfg.SpeakerCount,
					},
				},
				InterimResults: cfg.InterimResults,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	s := &Stream{rpc: rpc}
	go s.listen(cb)
	return s, nil
}

// Stream is one live Google recognition stream.
type Stream struct {
	rpc       speechpb.Speech_StreamingRecognizeClient
	closeOnce sync.Once
	closeErr  error
}

// Send writes raw audio bytes to the stream.
func (s *Stream) Send(ctx context.Context, audio []byte) error {
	return s.rpc.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Close half-closes the stream; the receive loop drains and exits.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.rpc.CloseSend()
	})
	return s.closeErr
}

// listen receives responses and forwards them to the callback. A response
// with no results is the provider's stream duration cap.
func (s *Stream) listen(cb stt.Callback) {
	for {
		resp, err := s.rpc.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			cb.OnError(err)
			return
		}

		if len(resp.Results) == 0 {
			cb.OnTimeLimit()
			continue
		}

		for _, r := range resp.Results {
			cb.OnResult(stt.Result{
				Alternatives: mapAlternatives(r.Alternatives),
				IsFinal:      r.IsFinal,
			})
		}
	}
}

func mapAlternatives(alts []*speechpb.SpeechRecognitionAlternative) []stt.Alternative {
	out := make([]stt.Alternative, 0, len(alts))
	for _, alt := range alts {
		words := make([]models.SpeakerWord, 0, len(alt.Words))
		for _, w := range alt.Words {
			sw := models.SpeakerWord{
				Word:       w.Word,
				SpeakerTag: w.SpeakerTag,
			}
			if w.StartTime != nil {
				sw.StartMs = w.StartTime.AsDuration().Milliseconds()
			}
			if w.EndTime != nil {
				sw.EndMs = w.EndTime.AsDuration().Milliseconds()
			}
			words = append(words, sw)
		}
		out = append(out, stt.Alternative{
			Transcript: alt.Transcript,
			Confidence: float64(alt.Confidence),
			Words:      words,
		})
	}
	return out
}
