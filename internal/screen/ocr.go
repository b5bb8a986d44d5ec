package screen

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// TesseractRecognizer reads text through a tesseract client. Marketplace
// pages mix Japanese and Latin text, so both language packs are loaded.
type TesseractRecognizer struct {
	mu        sync.Mutex
	languages []string
}

// NewTesseractRecognizer builds a recognizer for the given language packs,
// defaulting to jpn+eng.
func NewTesseractRecognizer(languages ...string) *TesseractRecognizer {
	if len(languages) == 0 {
		languages = []string{"jpn", "eng"}
	}
	return &TesseractRecognizer{languages: languages}
}

// RecognizeText implements Recognizer. A fresh client per call keeps the
// cgo handle lifecycle simple; throughput is dominated by recognition time
// anyway.
func (r *TesseractRecognizer) RecognizeText(img image.Image) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode image for recognition: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(r.languages...); err != nil {
		return "", fmt.Errorf("set recognition languages: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return "", fmt.Errorf("set page segmentation: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("load image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}
	return text, nil
}
