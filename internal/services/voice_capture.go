package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
)

// Transcriber turns a spoken passphrase into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, float64, error)
}

type SpeechConfig struct {
	Encoding     string
	SampleRate   int
	LanguageCode string
	Timeout      time.Duration
}

// SpeechTranscriber uses Google Cloud Speech-to-Text.
type SpeechTranscriber struct {
	client *speech.Client
	cfg    SpeechConfig
}

// NewSpeechTranscriber returns nil when no speech credentials are
// available, which disables voice capture.
func NewSpeechTranscriber(ctx context.Context, cfg SpeechConfig) *SpeechTranscriber {
	if cfg.Encoding == "" {
		cfg.Encoding = "LINEAR16"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	client, err := speech.NewClient(ctx)
	if err != nil {
		log.Printf("[VOICE] speech client unavailable, voice capture disabled: %v", err)
		return nil
	}
	return &SpeechTranscriber{client: client, cfg: cfg}
}

func (s *SpeechTranscriber) Transcribe(ctx context.Context, audio []byte) (string, float64, error) {
	if len(audio) == 0 {
		return "", 0, errors.New("audio data is empty")
	}

	encoding, err := parseEncoding(s.cfg.Encoding)
	if err != nil {
		return "", 0, err
	}

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        encoding,
			SampleRateHertz: int32(s.cfg.SampleRate),
			LanguageCode:    s.cfg.LanguageCode,
			Model:           "latest_short",
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := s.client.Recognize(timeoutCtx, req)
	if err != nil {
		return "", 0, fmt.Errorf("recognition failed: %w", err)
	}

	return joinResults(resp.Results)
}

func joinResults(results []*speechpb.SpeechRecognitionResult) (string, float64, error) {
	var (
		transcript      strings.Builder
		totalConfidence float32
		count           int
	)
	for _, result := range results {
		if len(result.Alternatives) == 0 {
			continue
		}
		alternative := result.Alternatives[0]
		transcript.WriteString(alternative.Transcript)
		transcript.WriteString(" ")
		totalConfidence += alternative.Confidence
		count++
	}

	if count == 0 {
		return "", 0, errors.New("no transcription results")
	}
	return strings.TrimSpace(transcript.String()), float64(totalConfidence / float32(count)), nil
}

func parseEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToUpper(encoding) {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

func (s *SpeechTranscriber) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
