package engine

import (
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Runner is the contract the pipeline has with an inference engine: it
// consumes one normalized input tensor and returns the raw prediction
// tensor. No retries happen at this level.
type Runner interface {
	Run(input []float32) ([]float32, error)
	Destroy()
}

// Session is a loaded onnxruntime model with preallocated input and
// output tensors.
type Session struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// InitEnvironment loads the onnxruntime shared library and initializes
// the process-wide environment. Must run before any NewSession call.
func InitEnvironment(libPath string) error {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime environment: %w", err)
	}
	return nil
}

// DestroyEnvironment tears the onnxruntime environment down. All
// sessions must be destroyed first.
func DestroyEnvironment() {
	_ = ort.DestroyEnvironment()
}

// NewSession loads the model at modelPath and binds a (1,3,h,w) input
// tensor and a (1,5,candidates) output tensor to it.
func NewSession(modelPath string, inputWidth, inputHeight, candidates int) (*Session, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("set intra op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("set inter op threads: %w", err)
	}

	inputShape := ort.NewShape(1, 3, int64(inputHeight), int64(inputWidth))
	outputShape := ort.NewShape(1, 5, int64(candidates))

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &Session{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
	}, nil
}

// Run copies input into the bound input tensor, executes the model and
// returns a copy of the raw output tensor. The bound tensors are shared
// state, so concurrent callers are serialized.
func (s *Session) Run(input []float32) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.input.GetData()
	if len(input) != len(data) {
		return nil, fmt.Errorf("input length %d does not match tensor length %d", len(input), len(data))
	}
	copy(data, input)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	out := s.output.GetData()
	raw := make([]float32, len(out))
	copy(raw, out)
	return raw, nil
}

// Destroy releases the session and its tensors.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
}
