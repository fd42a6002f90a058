package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ecolucci/parlo/internal/reliability"
)

// GoogleConfig configures the cloud provider. Credentials and endpoints are
// owned here; callers only see the Gateway contract.
type GoogleConfig struct {
	APIKey        string
	SpeechAPIBase string
	TTSAPIBase    string
	Limits        Limits
	Pitch         float64
	Timeout       time.Duration
}

// GoogleProvider talks to the Google Cloud speech and text-to-speech REST
// endpoints.
type GoogleProvider struct {
	cfg    GoogleConfig
	client *http.Client
}

func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("google api key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.SpeechAPIBase = strings.TrimRight(strings.TrimSpace(cfg.SpeechAPIBase), "/")
	cfg.TTSAPIBase = strings.TrimRight(strings.TrimSpace(cfg.TTSAPIBase), "/")
	return &GoogleProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type recognizeRequest struct {
	Config recognizeConfig `json:"config"`
	Audio  recognizeAudio  `json:"audio"`
}

type recognizeConfig struct {
	Encoding        string `json:"encoding"`
	SampleRateHertz int    `json:"sampleRateHertz"`
	LanguageCode    string `json:"languageCode"`
}

type recognizeAudio struct {
	Content string `json:"content"`
}

type recognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"results"`
}

func (p *GoogleProvider) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	if err := checkTranscribeInput(audio, p.cfg.Limits); err != nil {
		return "", err
	}

	reqBody := recognizeRequest{
		Config: recognizeConfig{
			Encoding:        "LINEAR16",
			SampleRateHertz: p.cfg.Limits.SampleRate,
			LanguageCode:    language,
		},
		Audio: recognizeAudio{Content: base64.StdEncoding.EncodeToString(audio)},
	}

	var resp recognizeResponse
	if err := p.post(ctx, "transcribe", p.cfg.SpeechAPIBase+"/speech:recognize", reqBody, &resp); err != nil {
		return "", err
	}

	var out strings.Builder
	for _, res := range resp.Results {
		if len(res.Alternatives) == 0 {
			continue
		}
		if out.Len() > 0 {
			out.WriteString(" ")
		}
		out.WriteString(strings.TrimSpace(res.Alternatives[0].Transcript))
	}
	return out.String(), nil
}

type synthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string  `json:"audioEncoding"`
		SpeakingRate  float64 `json:"speakingRate"`
		Pitch         float64 `json:"pitch"`
	} `json:"audioConfig"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

func (p *GoogleProvider) Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	if err := checkSynthesizeInput(text); err != nil {
		return nil, err
	}

	var reqBody synthesizeRequest
	reqBody.Input.Text = text
	reqBody.Voice.Name = voice
	reqBody.Voice.LanguageCode = voiceLanguage(voice)
	reqBody.AudioConfig.AudioEncoding = "LINEAR16"
	reqBody.AudioConfig.SpeakingRate = speed
	reqBody.AudioConfig.Pitch = p.cfg.Pitch

	var resp synthesizeResponse
	if err := p.post(ctx, "synthesize", p.cfg.TTSAPIBase+"/text:synthesize", reqBody, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.AudioContent) == "" {
		return nil, newErr("synthesize", KindUnavailable, fmt.Errorf("provider returned no audio"))
	}
	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, newErr("synthesize", KindUnavailable, fmt.Errorf("decode audio content: %w", err))
	}
	return audio, nil
}

func (p *GoogleProvider) post(ctx context.Context, op, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return newErr(op, KindUnavailable, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"?key="+p.cfg.APIKey, bytes.NewReader(payload))
	if err != nil {
		return newErr(op, KindUnavailable, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return classifyCtx(op, ctx, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		// A non-retryable status means the provider rejected this request;
		// re-sending it cannot help.
		kind := KindInvalidInput
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			kind = KindUnavailable
		}
		return newErr(op, kind, fmt.Errorf("status %d: %s", res.StatusCode, string(body)))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return newErr(op, KindUnavailable, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// voiceLanguage derives the languageCode from names like "en-US-Wavenet-D".
func voiceLanguage(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return "en-US"
}
