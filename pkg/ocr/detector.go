// Package ocr extracts activity data from uploaded utility bills. Text comes
// from an external detection API; the field extraction on top is local
// pattern matching with a confidence score the user sees before verifying.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// TextDetector turns an image into raw text.
type TextDetector interface {
	DetectText(ctx context.Context, image []byte) (string, error)
}

// VisionDetector calls the Google Vision images:annotate endpoint with an
// API key.
type VisionDetector struct {
	apiKey string
	url    string
	client *http.Client
}

func NewVisionDetector(apiKey, url string) *VisionDetector {
	return &VisionDetector{
		apiKey: apiKey,
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether an API key is present.
func (d *VisionDetector) Configured() bool { return d.apiKey != "" }

type visionRequest struct {
	Requests []visionAnnotateRequest `json:"requests"`
}

type visionAnnotateRequest struct {
	Image    visionImage     `json:"image"`
	Features []visionFeature `json:"features"`
}

type visionImage struct {
	Content string `json:"content"`
}

type visionFeature struct {
	Type string `json:"type"`
}

type visionResponse struct {
	Responses []struct {
		FullTextAnnotation struct {
			Text string `json:"text"`
		} `json:"fullTextAnnotation"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

func (d *VisionDetector) DetectText(ctx context.Context, image []byte) (string, error) {
	body, err := json.Marshal(visionRequest{
		Requests: []visionAnnotateRequest{{
			Image:    visionImage{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []visionFeature{{Type: "DOCUMENT_TEXT_DETECTION"}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("ocr: marshal detection request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url+"?key="+d.apiKey, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ocr: build detection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr: detection request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ocr: detection returned status %d: %s", resp.StatusCode, snippet)
	}

	var out visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ocr: decode detection response: %w", err)
	}
	if len(out.Responses) == 0 {
		return "", fmt.Errorf("ocr: empty detection response")
	}
	if e := out.Responses[0].Error; e != nil {
		return "", fmt.Errorf("ocr: detection error: %s", e.Message)
	}
	return out.Responses[0].FullTextAnnotation.Text, nil
}

// Rasterizer renders the first page of a PDF to a PNG so the detector only
// ever sees images. Input is the raw document because uploads live in
// artifact storage, not on a local path.
type Rasterizer interface {
	FirstPagePNG(ctx context.Context, pdf []byte) ([]byte, error)
}

// PopplerRasterizer shells out to pdftoppm at 200 DPI.
type PopplerRasterizer struct{}

func (PopplerRasterizer) FirstPagePNG(ctx context.Context, pdf []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "ocr-raster-*")
	if err != nil {
		return nil, fmt.Errorf("ocr: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	pdfPath := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(pdfPath, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("ocr: write pdf for rasterizing: %w", err)
	}

	prefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, "pdftoppm", "-png", "-r", "200", "-f", "1", "-l", "1", pdfPath, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ocr: pdftoppm: %w: %s", err, out)
	}

	matches, err := filepath.Glob(prefix + "*.png")
	if err != nil || len(matches) == 0 {
		return nil, fmt.Errorf("ocr: pdftoppm produced no page image")
	}
	img, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, fmt.Errorf("ocr: read rasterized page: %w", err)
	}
	return img, nil
}
