// Package fingerprint provides the HTTP client for the external voice
// fingerprinting service. The service accepts a multipart audio upload and
// answers either a single fingerprint vector (POST /gen, which requires a
// single speaker in the recording) or a per-speaker fingerprint map
// (POST /extract_speaker_fingerprints).
package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/vnftlabs/vnft-sdk-go/pkg/model"
	"go.uber.org/zap"
)

const (
	genPath      = "/gen"
	speakersPath = "/extract_speaker_fingerprints"

	// formFieldName is the multipart field the service reads the audio from.
	formFieldName = "file"
)

// ServiceError reports a transport failure or a non-success status from the
// fingerprint service. No money has been spent when this error is returned;
// the workflow must not proceed to payment.
type ServiceError struct {
	Status int
	Body   string
}

func (e *ServiceError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("fingerprint service unreachable: %s", e.Body)
	}
	return fmt.Sprintf("fingerprint service returned %d: %s", e.Status, e.Body)
}

// ParseError reports a well-formed HTTP success whose body could not be
// deserialized into a fingerprint.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "fingerprint response malformed: " + e.Reason
}

// Client calls the fingerprint service. Each call is independent: the client
// holds no fingerprint state and never caches results.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// NewClient creates a fingerprint client for the given base URL.
// A zero timeout disables the per-call deadline.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: timeout,
	}
}

// genReply mirrors the /gen response body.
type genReply struct {
	VoiceFingerprint json.RawMessage `json:"voice_fingerprint"`
}

// speakersReply mirrors the /extract_speaker_fingerprints response body.
type speakersReply struct {
	SpeakerFingerprints map[string][]float64 `json:"speaker_fingerprints"`
}

// Extract uploads the sample to /gen and returns its fingerprint. The sample
// must be non-empty; the MIME type is forwarded as-is and validated remotely.
func (c *Client) Extract(ctx context.Context, sample model.AudioSample) (model.Fingerprint, error) {
	body, err := c.post(ctx, genPath, sample)
	if err != nil {
		return model.Fingerprint{}, err
	}

	var reply genReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return model.Fingerprint{}, &ParseError{Reason: err.Error()}
	}
	if len(reply.VoiceFingerprint) == 0 {
		return model.Fingerprint{}, &ParseError{Reason: "missing voice_fingerprint field"}
	}

	// The service historically returned either a bare number or a vector.
	var vector []float64
	if err := json.Unmarshal(reply.VoiceFingerprint, &vector); err != nil {
		var scalar float64
		if err := json.Unmarshal(reply.VoiceFingerprint, &scalar); err != nil {
			return model.Fingerprint{}, &ParseError{Reason: "voice_fingerprint is neither a number nor a vector"}
		}
		vector = []float64{scalar}
	}

	fp := model.Fingerprint{Scalar: vector}
	if fp.IsEmpty() {
		return model.Fingerprint{}, &ParseError{Reason: "empty fingerprint"}
	}
	return fp, nil
}

// ExtractSpeakers uploads the sample to /extract_speaker_fingerprints and
// returns one fingerprint vector per diarized speaker.
func (c *Client) ExtractSpeakers(ctx context.Context, sample model.AudioSample) (model.Fingerprint, error) {
	body, err := c.post(ctx, speakersPath, sample)
	if err != nil {
		return model.Fingerprint{}, err
	}

	var reply speakersReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return model.Fingerprint{}, &ParseError{Reason: err.Error()}
	}
	if len(reply.SpeakerFingerprints) == 0 {
		return model.Fingerprint{}, &ParseError{Reason: "missing speaker_fingerprints field"}
	}

	return model.Fingerprint{Speakers: reply.SpeakerFingerprints}, nil
}

// post uploads the sample as a multipart form and returns the success body.
func (c *Client) post(ctx context.Context, path string, sample model.AudioSample) ([]byte, error) {
	if sample.IsEmpty() {
		return nil, errors.New("audio sample is empty")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := createFormFile(writer, sample)
	if err != nil {
		return nil, fmt.Errorf("build multipart form: %w", err)
	}
	if _, err := part.Write(sample.Data); err != nil {
		return nil, fmt.Errorf("write multipart form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart form: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	zap.L().Debug("uploading audio sample",
		zap.String("url", url),
		zap.String("filename", sample.Filename),
		zap.Int("bytes", len(sample.Data)))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ServiceError{Body: err.Error()}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Error("failed to close fingerprint response body", zap.Error(err))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{Status: resp.StatusCode, Body: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// createFormFile adds the audio part with the sample's declared MIME type.
// multipart.Writer.CreateFormFile always writes application/octet-stream,
// so the header is built manually when a type is declared.
func createFormFile(w *multipart.Writer, sample model.AudioSample) (io.Writer, error) {
	if sample.MimeType == "" {
		return w.CreateFormFile(formFieldName, sample.Filename)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, formFieldName, sample.Filename))
	h.Set("Content-Type", sample.MimeType)
	return w.CreatePart(h)
}
