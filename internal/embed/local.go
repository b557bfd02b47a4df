package embed

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

// localEmbedder runs a sentence-transformer ONNX model in-process. No
// network, no API key. The model directory must contain model.onnx and
// tokenizer.json (the Hugging Face export layout, e.g. all-MiniLM-L6-v2).
type localEmbedder struct {
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizer.Tokenizer
	dims      int
}

// maxSeqLen bounds tokenized input length; MiniLM-class models accept 512.
const maxSeqLen = 512

var ortInitOnce sync.Once
var ortInitErr error

func initORT() error {
	ortInitOnce.Do(func() {
		if lib := os.Getenv("RECALL_ONNX_LIB"); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// newLocalEmbedder loads the tokenizer and ONNX session from cfg.Endpoint
// (the model directory).
func newLocalEmbedder(cfg Config) (*localEmbedder, error) {
	modelDir := cfg.Endpoint
	if modelDir == "" {
		return nil, fmt.Errorf("local provider requires a model directory (set RECALL_MODEL_DIR)")
	}

	if err := initORT(); err != nil {
		return nil, fmt.Errorf("initializing onnxruntime: %w", err)
	}

	tk, err := pretrained.FromFile(filepath.Join(modelDir, "tokenizer.json"))
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		filepath.Join(modelDir, "model.onnx"),
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("loading onnx model: %w", err)
	}

	return &localEmbedder{session: session, tokenizer: tk}, nil
}

func (l *localEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}
	vecs, err := l.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts one at a time; the session holds a single set of
// bound tensors, so there is no transport-level batching to exploit.
func (l *localEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if text == "" {
			continue
		}
		vec, err := l.embedOne(text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		result[i] = vec
	}
	return result, nil
}

func (l *localEmbedder) Dimensions() int {
	return l.dims
}

func (l *localEmbedder) embedOne(text string) ([]float32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	encoding, err := l.tokenizer.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenizing: %w", err)
	}

	seqLen := len(encoding.Ids)
	if seqLen == 0 {
		return nil, fmt.Errorf("tokenizer produced no tokens")
	}
	if seqLen > maxSeqLen {
		seqLen = maxSeqLen
	}

	ids := make([]int64, seqLen)
	mask := make([]int64, seqLen)
	typeIDs := make([]int64, seqLen)
	for i := 0; i < seqLen; i++ {
		ids[i] = int64(encoding.Ids[i])
		mask[i] = int64(encoding.AttentionMask[i])
		typeIDs[i] = int64(encoding.TypeIds[i])
	}

	shape := ort.NewShape(1, int64(seqLen))
	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("creating input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("creating attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	typeTensor, err := ort.NewTensor(shape, typeIDs)
	if err != nil {
		return nil, fmt.Errorf("creating token_type_ids tensor: %w", err)
	}
	defer typeTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := l.session.Run([]ort.Value{idsTensor, maskTensor, typeTensor}, outputs); err != nil {
		return nil, fmt.Errorf("running model: %w", err)
	}
	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	defer hidden.Destroy()

	outShape := hidden.GetShape()
	if len(outShape) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", outShape)
	}
	hiddenSize := int(outShape[2])

	vec := meanPool(hidden.GetData(), mask, seqLen, hiddenSize)
	normalize(vec)

	if l.dims == 0 {
		l.dims = hiddenSize
	}
	return vec, nil
}

// meanPool averages token vectors under the attention mask.
func meanPool(data []float32, mask []int64, seqLen, hiddenSize int) []float32 {
	vec := make([]float32, hiddenSize)
	var count float32
	for t := 0; t < seqLen; t++ {
		if mask[t] == 0 {
			continue
		}
		row := data[t*hiddenSize : (t+1)*hiddenSize]
		for i, v := range row {
			vec[i] += v
		}
		count++
	}
	if count > 0 {
		for i := range vec {
			vec[i] /= count
		}
	}
	return vec
}

// normalize scales vec to unit length in place.
func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
}

// Close releases the ONNX session.
func (l *localEmbedder) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session != nil {
		err := l.session.Destroy()
		l.session = nil
		return err
	}
	return nil
}
