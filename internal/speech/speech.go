// Package speech transcribes recorded voice commands through an
// OpenAI-compatible audio transcription endpoint.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/klytics/sheetsense/internal/fault"
)

// DefaultModel is the transcription model used when none is configured.
const DefaultModel = "distil-whisper-large-v3-en"

// DefaultBaseURL is the Groq OpenAI-compatible API root.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// Clip is a recorded audio command.
type Clip struct {
	Name string
	Data []byte
}

// ReadClip loads an audio file from disk.
func ReadClip(path string) (Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Clip{}, fmt.Errorf("file not found: %s — check that the path is correct", path)
		}
		return Clip{}, fmt.Errorf("could not read audio clip %s: %w", path, err)
	}
	return Clip{Name: filepath.Base(path), Data: data}, nil
}

// Transcriber turns audio into command text.
type Transcriber interface {
	Transcribe(ctx context.Context, clip Clip) (string, error)
}

// DefaultTimeout bounds one transcription request.
const DefaultTimeout = 60 * time.Second

// Client calls a /audio/transcriptions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	client  *http.Client
	logger  *zap.Logger
}

// NewClient creates a transcription client. Empty baseURL and model use the
// defaults; a nil logger discards output.
func NewClient(baseURL, apiKey, model string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		timeout: DefaultTimeout,
		client:  &http.Client{},
		logger:  logger,
	}
}

// SetTimeout bounds each request to d. Zero or negative keeps the current limit.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Transcribe uploads the clip and returns the recognized text. All failures
// are classified as transcription errors; HTTP failures carry the status and
// body as received.
func (c *Client) Transcribe(ctx context.Context, clip Clip) (string, error) {
	if len(clip.Data) == 0 {
		return "", fault.New(fault.KindTranscription, fmt.Errorf("audio clip is empty"))
	}
	name := clip.Name
	if name == "" {
		name = "command.wav"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fault.New(fault.KindTranscription, err)
	}
	if _, err := fw.Write(clip.Data); err != nil {
		return "", fault.New(fault.KindTranscription, err)
	}
	_ = mw.WriteField("model", c.model)
	_ = mw.WriteField("response_format", "json")
	if err := mw.Close(); err != nil {
		return "", fault.New(fault.KindTranscription, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fault.New(fault.KindTranscription, fmt.Errorf("could not create request: %w", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fault.New(fault.KindTranscription, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fault.New(fault.KindTranscription, fmt.Errorf("could not read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fault.Newf(fault.KindTranscription, "transcription failed: %d %s", resp.StatusCode, string(respBody))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fault.New(fault.KindTranscription, fmt.Errorf("could not parse response: %w", err))
	}
	c.logger.Info("clip transcribed",
		zap.String("clip", name),
		zap.Int("bytes", len(clip.Data)),
		zap.Int("chars", len(out.Text)),
		zap.Duration("duration", time.Since(start)))
	return out.Text, nil
}
