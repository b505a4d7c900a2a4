package media

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// FacePipeline chains detection and recognition into the FaceEngine
// contract: image file in, face boxes with vectors out.
//
// The underlying DNN nets are not safe for concurrent forward passes, so
// Detect serializes on an internal mutex.
type FacePipeline struct {
	mu         sync.Mutex
	detector   *FaceDetector
	recognizer *FaceRecognizer
}

// NewFacePipeline builds a face engine from the given models. Returns nil
// when detection is unavailable, which skips the faces phase entirely.
func NewFacePipeline(detectorModelPath, recognizerModelPath, recognizerModelName string, confThreshold float32) *FacePipeline {
	detector := NewFaceDetector(detectorModelPath, confThreshold)
	if !detector.Enabled {
		return nil
	}
	recognizer := NewFaceRecognizer(recognizerModelPath, recognizerModelName)
	return &FacePipeline{detector: detector, recognizer: recognizer}
}

// Detect loads the image, detects faces and computes a recognition vector
// per detected face. An image without faces returns (nil, nil).
func (p *FacePipeline) Detect(ctx context.Context, path string) ([]FaceResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("faces: failed to read image %s", path)
	}
	defer img.Close()

	p.mu.Lock()
	defer p.mu.Unlock()

	results := p.detector.DetectFaces(img)
	if len(results) == 0 {
		return nil, nil
	}

	if p.recognizer != nil && p.recognizer.Enabled {
		for i := range results {
			rect := image.Rect(results[i].X1, results[i].Y1, results[i].X2, results[i].Y2)
			region := img.Region(rect)
			results[i].Vector = p.recognizer.ExtractVector(region)
			region.Close()
		}
	}

	return results, nil
}

// Close releases the underlying networks.
func (p *FacePipeline) Close() {
	if p == nil {
		return
	}
	p.detector.Close()
	if p.recognizer != nil {
		p.recognizer.Close()
	}
}
