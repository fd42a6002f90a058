package speech

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ecolucci/parlo/internal/audio"
)

// LocalConfig configures the offline provider: whisper for recognition, piper
// for synthesis. Both are invoked as CLI workers per call.
type LocalConfig struct {
	WhisperCLI       string
	WhisperModelPath string
	PiperCLI         string
	PiperModelPath   string
	Limits           Limits
}

// LocalProvider runs recognition and synthesis fully on the local machine.
type LocalProvider struct {
	cfg LocalConfig
}

func NewLocalProvider(cfg LocalConfig) (*LocalProvider, error) {
	cfg.WhisperCLI = strings.TrimSpace(cfg.WhisperCLI)
	cfg.PiperCLI = strings.TrimSpace(cfg.PiperCLI)
	if cfg.WhisperCLI == "" {
		return nil, fmt.Errorf("whisper CLI path is required")
	}
	if _, err := exec.LookPath(cfg.WhisperCLI); err != nil {
		return nil, fmt.Errorf("whisper CLI not found: %w", err)
	}
	if _, err := os.Stat(cfg.WhisperModelPath); err != nil {
		return nil, fmt.Errorf("whisper model not found: %w", err)
	}
	if cfg.PiperCLI != "" {
		if _, err := exec.LookPath(cfg.PiperCLI); err != nil {
			return nil, fmt.Errorf("piper CLI not found: %w", err)
		}
	}
	return &LocalProvider{cfg: cfg}, nil
}

func (p *LocalProvider) Transcribe(ctx context.Context, pcm []byte, language string) (string, error) {
	if err := checkTranscribeInput(pcm, p.cfg.Limits); err != nil {
		return "", err
	}

	dir, err := os.MkdirTemp("", "parlo-stt-*")
	if err != nil {
		return "", newErr("transcribe", KindUnavailable, err)
	}
	defer os.RemoveAll(dir)

	wavPath := filepath.Join(dir, "input.wav")
	if err := audio.WriteWAVFile(wavPath, pcm, p.cfg.Limits.SampleRate); err != nil {
		return "", newErr("transcribe", KindUnavailable, fmt.Errorf("write input wav: %w", err))
	}

	args := []string{
		"-m", p.cfg.WhisperModelPath,
		"-l", whisperLanguage(language),
		"-f", wavPath,
		"-nt",         // no timestamps
		"--no-prints", // model banner goes to stderr only
	}
	cmd := exec.CommandContext(ctx, p.cfg.WhisperCLI, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			// exec.CommandContext surfaces "signal: killed" instead of the
			// context error.
			return "", classifyCtx("transcribe", ctx, ctx.Err())
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		return "", newErr("transcribe", KindUnavailable, fmt.Errorf("whisper: %w: %s", err, detail))
	}

	return cleanWhisperOutput(stdout.String()), nil
}

func (p *LocalProvider) Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error) {
	if err := checkSynthesizeInput(text); err != nil {
		return nil, err
	}
	if p.cfg.PiperCLI == "" {
		return nil, newErr("synthesize", KindUnavailable, fmt.Errorf("no local TTS engine configured"))
	}

	dir, err := os.MkdirTemp("", "parlo-tts-*")
	if err != nil {
		return nil, newErr("synthesize", KindUnavailable, err)
	}
	defer os.RemoveAll(dir)

	outPath := filepath.Join(dir, "output.wav")
	args := []string{
		"--model", p.cfg.PiperModelPath,
		"--output_file", outPath,
	}
	if speed > 0 && speed != 1.0 {
		// Piper expresses pace as length scale, the inverse of speed.
		args = append(args, "--length_scale", strconv.FormatFloat(1.0/speed, 'f', 3, 64))
	}
	cmd := exec.CommandContext(ctx, p.cfg.PiperCLI, args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, classifyCtx("synthesize", ctx, ctx.Err())
		}
		return nil, newErr("synthesize", KindUnavailable,
			fmt.Errorf("piper: %w: %s", err, strings.TrimSpace(stderr.String())))
	}

	wav, err := os.ReadFile(outPath)
	if err != nil {
		return nil, newErr("synthesize", KindUnavailable, fmt.Errorf("read piper output: %w", err))
	}
	pcm, _, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, newErr("synthesize", KindUnavailable, fmt.Errorf("piper output: %w", err))
	}
	return pcm, nil
}

// cleanWhisperOutput joins whisper's stdout lines into one transcript.
func cleanWhisperOutput(raw string) string {
	lines := strings.Split(raw, "\n")
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ")
}

// whisperLanguage maps BCP-47 tags like "en-US" to whisper's two-letter codes.
func whisperLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexByte(tag, '-'); i > 0 {
		tag = tag[:i]
	}
	if tag == "" {
		return "en"
	}
	return strings.ToLower(tag)
}
