package media

import (
	"image"
	"log"
	"math"
	"sort"

	"gocv.io/x/gocv"
)

// RetinaFace prior box generation and box decoding utilities

// priorBox defines an anchor box (center_x, center_y, width, height)
type priorBox struct {
	cx, cy, w, h float32
}

// generatePriors generates anchors for the fixed RetinaFace input size
func generatePriors(imgW, imgH int) []priorBox {
	// these settings match the standard RetinaFace/ONNX config
	minSizes := [][]int{{16, 32}, {64, 128}, {256, 512}}
	steps := []int{8, 16, 32}
	featureMapSizes := [][]int{
		{imgH / 8, imgW / 8},
		{imgH / 16, imgW / 16},
		{imgH / 32, imgW / 32},
	}
	var priors []priorBox
	for k, fms := range featureMapSizes {
		fmH, fmW := fms[0], fms[1]
		for i := 0; i < fmH; i++ {
			for j := 0; j < fmW; j++ {
				for _, minSize := range minSizes[k] {
					priors = append(priors, priorBox{
						cx: (float32(j) + 0.5) * float32(steps[k]) / float32(imgW),
						cy: (float32(i) + 0.5) * float32(steps[k]) / float32(imgH),
						w:  float32(minSize) / float32(imgW),
						h:  float32(minSize) / float32(imgH),
					})
				}
			}
		}
	}
	return priors
}

// decodeBox decodes a raw box prediction using its prior and the variances
func decodeBox(raw [4]float32, prior priorBox, variances [2]float32) [4]float32 {
	cx := prior.cx + raw[0]*variances[0]*prior.w
	cy := prior.cy + raw[1]*variances[0]*prior.h
	w := prior.w * float32(math.Exp(float64(raw[2]*variances[1])))
	h := prior.h * float32(math.Exp(float64(raw[3]*variances[1])))
	return [4]float32{cx - w/2, cy - h/2, cx + w/2, cy + h/2}
}

// rawDetection is a decoded box in pixel coordinates before NMS
type rawDetection struct {
	x1, y1, x2, y2 float32
	score          float32
}

// FaceDetector provides face detection using a RetinaFace network loaded
// through the gocv DNN module.
type FaceDetector struct {
	Net     gocv.Net
	Enabled bool

	InputSizeW    int
	InputSizeH    int
	ConfThreshold float32
	IoUThreshold  float32
}

// NewFaceDetector loads the RetinaFace model. A missing or unreadable
// model disables the detector instead of failing startup.
func NewFaceDetector(modelPath string, confThreshold float32) *FaceDetector {
	if modelPath == "" {
		log.Println("detection: model path is empty, disabling face detector")
		return &FaceDetector{Enabled: false}
	}

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		log.Printf("detection: ERROR - ReadNet returned an empty network for %s. Check file path and integrity.", modelPath)
		return &FaceDetector{Enabled: false}
	}

	// try CUDA first, fall back to CPU
	cudaBackendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
	cudaTargetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)
	if cudaBackendErr != nil || cudaTargetErr != nil {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
		log.Println("detection: CUDA not available, using CPU backend")
	} else {
		log.Println("detection: using CUDA backend")
	}

	if confThreshold <= 0 {
		confThreshold = 0.7
	}

	return &FaceDetector{
		Net:           net,
		Enabled:       true,
		InputSizeW:    640,
		InputSizeH:    640,
		ConfThreshold: confThreshold,
		IoUThreshold:  0.4,
	}
}

func (d *FaceDetector) Close() {
	if d != nil && d.Enabled {
		d.Net.Close()
		d.Enabled = false
	}
}

// DetectFaces runs detection on an already-loaded image and returns face
// boxes in original pixel coordinates with their confidence.
func (d *FaceDetector) DetectFaces(img gocv.Mat) []FaceResult {
	if d == nil || !d.Enabled || img.Empty() {
		return nil
	}

	imgW := float32(img.Cols())
	imgH := float32(img.Rows())

	blob := gocv.BlobFromImage(img, 1.0, image.Pt(d.InputSizeW, d.InputSizeH),
		gocv.NewScalar(104.0, 117.0, 123.0, 0), false, false)
	defer blob.Close()

	d.Net.SetInput(blob, "input")
	outputs := d.Net.ForwardLayers([]string{"bbox", "confidence"})
	if len(outputs) < 2 {
		log.Printf("detection: expected 2 outputs (boxes, scores), got %d", len(outputs))
		return nil
	}
	defer func() {
		for _, mat := range outputs {
			mat.Close()
		}
	}()

	boxes := outputs[0]
	scores := outputs[1]
	numDetections := boxes.Size()[1]

	priors := generatePriors(d.InputSizeW, d.InputSizeH)
	if len(priors) != numDetections {
		log.Printf("detection: priors count (%d) != detections (%d), model/input mismatch", len(priors), numDetections)
		return nil
	}
	variances := [2]float32{0.1, 0.2}

	var candidates []rawDetection
	for i := 0; i < numDetections; i++ {
		score := scores.GetFloatAt(0, i*2+1)
		if score < d.ConfThreshold {
			continue
		}
		var raw [4]float32
		for j := 0; j < 4; j++ {
			raw[j] = boxes.GetFloatAt(0, i*4+j)
		}
		decoded := decodeBox(raw, priors[i], variances)
		det := rawDetection{
			x1:    clampF(decoded[0]*imgW, 0, imgW),
			y1:    clampF(decoded[1]*imgH, 0, imgH),
			x2:    clampF(decoded[2]*imgW, 0, imgW),
			y2:    clampF(decoded[3]*imgH, 0, imgH),
			score: score,
		}
		if det.x2 <= det.x1 || det.y2 <= det.y1 {
			continue
		}
		candidates = append(candidates, det)
	}

	kept := nonMaxSuppression(candidates, d.IoUThreshold)

	results := make([]FaceResult, 0, len(kept))
	for _, det := range kept {
		results = append(results, FaceResult{
			X1:         int(det.x1),
			Y1:         int(det.y1),
			X2:         int(det.x2),
			Y2:         int(det.y2),
			Confidence: det.score,
		})
	}
	return results
}

// nonMaxSuppression drops boxes overlapping a higher-scored box above the
// IoU threshold.
func nonMaxSuppression(dets []rawDetection, iouThreshold float32) []rawDetection {
	sort.Slice(dets, func(i, j int) bool { return dets[i].score > dets[j].score })

	var kept []rawDetection
	for _, det := range dets {
		overlaps := false
		for _, k := range kept {
			if iou(det, k) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, det)
		}
	}
	return kept
}

func iou(a, b rawDetection) float32 {
	ix1 := maxF(a.x1, b.x1)
	iy1 := maxF(a.y1, b.y1)
	ix2 := minF(a.x2, b.x2)
	iy2 := minF(a.y2, b.y2)
	if ix2 <= ix1 || iy2 <= iy1 {
		return 0
	}
	inter := (ix2 - ix1) * (iy2 - iy1)
	areaA := (a.x2 - a.x1) * (a.y2 - a.y1)
	areaB := (b.x2 - b.x1) * (b.y2 - b.y1)
	return inter / (areaA + areaB - inter)
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxF(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
