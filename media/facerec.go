package media

import (
	"image"
	"log"
	"os"

	"gocv.io/x/gocv"
)

// FaceRecognizer computes recognition vectors for face crops using an
// ArcFace/FaceNet style network loaded through the gocv DNN module.
type FaceRecognizer struct {
	Net       gocv.Net
	Enabled   bool
	ModelName string

	InputSizeW int
	InputSizeH int
}

// NewFaceRecognizer loads a face recognition model. A missing model
// disables the recognizer instead of failing startup; detections are then
// stored without vectors and stay outside clustering.
func NewFaceRecognizer(modelPath, modelName string) *FaceRecognizer {
	if modelPath == "" {
		log.Println("recognition: model path is empty, disabling face recognition")
		return &FaceRecognizer{Enabled: false}
	}

	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		log.Printf("recognition: ERROR - model file does not exist: %s", modelPath)
		return &FaceRecognizer{Enabled: false}
	}

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		log.Printf("recognition: ERROR - ReadNet returned an empty network for %s", modelName)
		return &FaceRecognizer{Enabled: false}
	}

	cudaBackendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
	cudaTargetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)
	if cudaBackendErr != nil || cudaTargetErr != nil {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
	}

	inputW, inputH := 112, 112
	if modelName == "facenet" {
		inputW, inputH = 160, 160
	}

	log.Printf("recognition: loaded %s model (%dx%d input)", modelName, inputW, inputH)

	return &FaceRecognizer{
		Net:        net,
		Enabled:    true,
		ModelName:  modelName,
		InputSizeW: inputW,
		InputSizeH: inputH,
	}
}

func (f *FaceRecognizer) Close() {
	if f != nil && f.Enabled {
		f.Net.Close()
		f.Enabled = false
	}
}

// ExtractVector computes the L2-normalized recognition vector for a face
// crop. Returns nil when the recognizer is disabled or the crop is empty.
func (f *FaceRecognizer) ExtractVector(faceRegion gocv.Mat) []float32 {
	if f == nil || !f.Enabled || faceRegion.Empty() {
		return nil
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(faceRegion, &resized, image.Pt(f.InputSizeW, f.InputSizeH), 0, 0, gocv.InterpolationLinear)

	// ArcFace/FaceNet expect inputs scaled to [0,1]
	blob := gocv.BlobFromImage(resized, 1.0/255.0, image.Pt(f.InputSizeW, f.InputSizeH),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	f.Net.SetInput(blob, "")
	output := f.Net.Forward("")
	defer output.Close()

	flat := output.Reshape(1, 1)
	defer flat.Close()

	vector := make([]float32, flat.Cols())
	for i := 0; i < flat.Cols(); i++ {
		vector[i] = flat.GetFloatAt(0, i)
	}
	L2Normalize(vector)
	return vector
}
