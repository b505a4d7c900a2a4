package media

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
)

// TesseractOCR runs the tesseract CLI as a subprocess, one invocation per
// file. It implements TextRecognizer.
type TesseractOCR struct {
	binary    string
	languages []string
}

// NewTesseractOCR locates the tesseract binary and prepares a recognizer
// for the given language list (e.g. ["eng", "deu"]).
func NewTesseractOCR(languages []string) (*TesseractOCR, error) {
	binary, err := exec.LookPath("tesseract")
	if err != nil {
		return nil, fmt.Errorf("ocr: tesseract binary not found in PATH: %w", err)
	}
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	log.Printf("ocr: using %s (languages: %s)", binary, strings.Join(languages, "+"))
	return &TesseractOCR{binary: binary, languages: languages}, nil
}

// Recognize runs tesseract in TSV mode and aggregates the recognized
// words. A file with no readable text returns (nil, nil) rather than an
// error; real errors are reserved for subprocess and I/O failures.
func (t *TesseractOCR) Recognize(ctx context.Context, path string) (*OCRText, error) {
	args := []string{
		path,
		"stdout",
		"-l", strings.Join(t.languages, "+"),
		"--psm", "3",
		"tsv",
	}

	cmd := exec.CommandContext(ctx, t.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ocr: tesseract timed out for %s: %w", path, ctx.Err())
		}
		return nil, fmt.Errorf("ocr: tesseract failed for %s: %v (%s)", path, err, strings.TrimSpace(stderr.String()))
	}

	text, confidence := parseTSV(stdout.String())
	if text == "" {
		return nil, nil
	}

	return &OCRText{
		Text:       text,
		Language:   strings.Join(t.languages, "+"),
		Confidence: confidence,
	}, nil
}

// parseTSV extracts the word column of tesseract's TSV output and the mean
// word confidence normalized to 0..1. Rows with conf -1 are structural
// (page/block/line) and carry no text.
func parseTSV(output string) (string, float64) {
	var words []string
	var confSum float64

	for _, line := range strings.Split(output, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 12 {
			continue
		}
		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		word := strings.TrimSpace(fields[11])
		if word == "" {
			continue
		}
		words = append(words, word)
		confSum += conf
	}

	if len(words) == 0 {
		return "", 0
	}
	return strings.Join(words, " "), confSum / float64(len(words)) / 100.0
}
