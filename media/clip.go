package media

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkoukk/tiktoken-go"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	clipInputSize  = 224
	clipTextLength = 77
	clipEmbDim     = 512
)

// CLIP image normalization constants (per channel mean/std)
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

var ortInitOnce sync.Once
var ortInitErr error

func initORT() error {
	ortInitOnce.Do(func() {
		if libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// ClipEmbedder runs a CLIP-style dual encoder (image tower + text tower)
// through ONNX Runtime, so text queries and stored image vectors live in
// the same space. It implements Embedder.
//
// The sessions reuse their input/output tensors, so runs are serialized
// on an internal mutex.
type ClipEmbedder struct {
	modelID string

	mu sync.Mutex

	imageSession *ort.AdvancedSession
	imageInput   *ort.Tensor[float32]
	imageOutput  *ort.Tensor[float32]

	textSession *ort.AdvancedSession
	textInput   *ort.Tensor[int64]
	textOutput  *ort.Tensor[float32]

	tokenizer *tiktoken.Tiktoken
}

// NewClipEmbedder loads the image and text encoder ONNX models.
func NewClipEmbedder(imageModelPath, textModelPath, modelID string) (*ClipEmbedder, error) {
	if err := initORT(); err != nil {
		return nil, fmt.Errorf("clip: initialize onnxruntime: %w", err)
	}

	imageInput, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, clipInputSize, clipInputSize))
	if err != nil {
		return nil, fmt.Errorf("clip: create image input tensor: %w", err)
	}
	imageOutput, err := ort.NewEmptyTensor[float32](ort.NewShape(1, clipEmbDim))
	if err != nil {
		return nil, fmt.Errorf("clip: create image output tensor: %w", err)
	}
	imageSession, err := ort.NewAdvancedSession(imageModelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		[]ort.Value{imageInput},
		[]ort.Value{imageOutput},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("clip: create image session: %w", err)
	}

	textInput, err := ort.NewEmptyTensor[int64](ort.NewShape(1, clipTextLength))
	if err != nil {
		return nil, fmt.Errorf("clip: create text input tensor: %w", err)
	}
	textOutput, err := ort.NewEmptyTensor[float32](ort.NewShape(1, clipEmbDim))
	if err != nil {
		return nil, fmt.Errorf("clip: create text output tensor: %w", err)
	}
	textSession, err := ort.NewAdvancedSession(textModelPath,
		[]string{"input_ids"},
		[]string{"text_embeds"},
		[]ort.Value{textInput},
		[]ort.Value{textOutput},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("clip: create text session: %w", err)
	}

	tokenizer, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("clip: load tokenizer: %w", err)
	}

	log.Printf("clip: loaded %s (image: %s, text: %s)", modelID, imageModelPath, textModelPath)

	return &ClipEmbedder{
		modelID:      modelID,
		imageSession: imageSession,
		imageInput:   imageInput,
		imageOutput:  imageOutput,
		textSession:  textSession,
		textInput:    textInput,
		textOutput:   textOutput,
		tokenizer:    tokenizer,
	}, nil
}

// ModelID identifies the embedding model; vectors from different model ids
// are never compared against each other.
func (c *ClipEmbedder) ModelID() string { return c.modelID }

// EmbedImage loads, center-crops and normalizes the image, then runs the
// image tower. The result is L2-normalized.
func (c *ClipEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("clip: failed to open image %s: %w", path, err)
	}
	// resize the short side then center-crop to the square model input
	cropped := imaging.Fill(img, clipInputSize, clipInputSize, imaging.Center, imaging.Lanczos)

	c.mu.Lock()
	defer c.mu.Unlock()

	input := c.imageInput.GetData()
	plane := clipInputSize * clipInputSize
	for y := 0; y < clipInputSize; y++ {
		for x := 0; x < clipInputSize; x++ {
			r, g, b, _ := cropped.At(x, y).RGBA()
			idx := y*clipInputSize + x
			input[0*plane+idx] = (float32(r>>8)/255.0 - clipMean[0]) / clipStd[0]
			input[1*plane+idx] = (float32(g>>8)/255.0 - clipMean[1]) / clipStd[1]
			input[2*plane+idx] = (float32(b>>8)/255.0 - clipMean[2]) / clipStd[2]
		}
	}

	if err := c.imageSession.Run(); err != nil {
		return nil, fmt.Errorf("clip: image encoder failed for %s: %w", path, err)
	}

	embedding := make([]float32, clipEmbDim)
	copy(embedding, c.imageOutput.GetData())
	L2Normalize(embedding)
	return embedding, nil
}

// EmbedText tokenizes the query and runs the text tower. The result is
// L2-normalized and comparable to EmbedImage output by cosine similarity.
func (c *ClipEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := c.tokenizer.Encode(text, nil, nil)
	if len(tokens) > clipTextLength {
		tokens = tokens[:clipTextLength]
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	input := c.textInput.GetData()
	for i := range input {
		input[i] = 0
	}
	for i, tok := range tokens {
		input[i] = int64(tok)
	}

	if err := c.textSession.Run(); err != nil {
		return nil, fmt.Errorf("clip: text encoder failed: %w", err)
	}

	embedding := make([]float32, clipEmbDim)
	copy(embedding, c.textOutput.GetData())
	L2Normalize(embedding)
	return embedding, nil
}

// Close releases the ONNX sessions and tensors.
func (c *ClipEmbedder) Close() {
	if c.imageSession != nil {
		c.imageSession.Destroy()
	}
	if c.textSession != nil {
		c.textSession.Destroy()
	}
	for _, t := range []interface{ Destroy() error }{c.imageInput, c.imageOutput, c.textInput, c.textOutput} {
		if t != nil {
			t.Destroy()
		}
	}
}
