//go:build onnx

package runner

/*
#cgo LDFLAGS: -lonnxruntime
#include <onnxruntime_c_api.h>
#include <stdlib.h>

static const OrtApi* g_ort = NULL;
static OrtEnv* g_env = NULL;
static OrtSession* g_session = NULL;
static OrtSessionOptions* g_session_opts = NULL;
static OrtMemoryInfo* g_memory_info = NULL;
static OrtAllocator* g_allocator = NULL;

static int ort_init(const char* model_path, int use_gpu) {
    g_ort = OrtGetApiBase()->GetApi(ORT_API_VERSION);
    if (!g_ort) return -1;

    OrtStatus* status = NULL;

    status = g_ort->CreateEnv(ORT_LOGGING_LEVEL_WARNING, "infer-scheduler", &g_env);
    if (status) { g_ort->ReleaseStatus(status); return -2; }

    status = g_ort->CreateSessionOptions(&g_session_opts);
    if (status) { g_ort->ReleaseStatus(status); return -3; }

    if (use_gpu) {
        status = OrtSessionOptionsAppendExecutionProvider_CUDA(g_session_opts, 0);
        if (status) {
            g_ort->ReleaseStatus(status);
        }
    }

    g_ort->SetIntraOpNumThreads(g_session_opts, 4);
    g_ort->SetSessionGraphOptimizationLevel(g_session_opts, ORT_ENABLE_ALL);

    status = g_ort->CreateSession(g_env, model_path, g_session_opts, &g_session);
    if (status) { g_ort->ReleaseStatus(status); return -4; }

    status = g_ort->CreateCpuMemoryInfo(OrtArenaAllocator, OrtMemTypeDefault, &g_memory_info);
    if (status) { g_ort->ReleaseStatus(status); return -5; }

    status = g_ort->GetAllocatorWithDefaultOptions(&g_allocator);
    if (status) { g_ort->ReleaseStatus(status); return -6; }

    return 0;
}

static int ort_run_batch(float* input_data, int batch_size, float* output_data) {
    if (!g_session || !g_ort) return -1;

    OrtStatus* status = NULL;
    const int64_t input_shape[] = {batch_size, 3, 224, 224};
    const size_t input_len = batch_size * 3 * 224 * 224 * sizeof(float);

    OrtValue* input_tensor = NULL;
    status = g_ort->CreateTensorWithDataAsOrtValue(
        g_memory_info, input_data, input_len,
        input_shape, 4, ONNX_TENSOR_ELEMENT_DATA_TYPE_FLOAT,
        &input_tensor
    );
    if (status) { g_ort->ReleaseStatus(status); return -2; }

    char* input_name = NULL;
    char* output_name = NULL;
    g_ort->SessionGetInputName(g_session, 0, g_allocator, &input_name);
    g_ort->SessionGetOutputName(g_session, 0, g_allocator, &output_name);

    const char* input_names[] = { input_name };
    const char* output_names[] = { output_name };
    OrtValue* output_tensor = NULL;

    status = g_ort->Run(
        g_session, NULL,
        input_names, (const OrtValue* const*)&input_tensor, 1,
        output_names, 1,
        &output_tensor
    );

    g_ort->AllocatorFree(g_allocator, input_name);
    g_ort->AllocatorFree(g_allocator, output_name);
    g_ort->ReleaseValue(input_tensor);

    if (status) {
        g_ort->ReleaseStatus(status);
        return -3;
    }

    float* out_ptr = NULL;
    g_ort->GetTensorMutableData(output_tensor, (void**)&out_ptr);
    for (int i = 0; i < batch_size * 1000; i++) {
        output_data[i] = out_ptr[i];
    }

    g_ort->ReleaseValue(output_tensor);
    return 0;
}

static void ort_cleanup() {
    if (g_session) g_ort->ReleaseSession(g_session);
    if (g_session_opts) g_ort->ReleaseSessionOptions(g_session_opts);
    if (g_memory_info) g_ort->ReleaseMemoryInfo(g_memory_info);
    if (g_env) g_ort->ReleaseEnv(g_env);
}
*/
import "C"

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"unsafe"

	"github.com/kunal/infer-scheduler/internal/scheduler"
)

var imagenetLabels = []string{
	"tench", "goldfish", "great_white_shark", "tiger_shark", "hammerhead",
	"electric_ray", "stingray", "cock", "hen", "ostrich",
}

// ONNX runs real inference via ONNX Runtime's C API, CPU or CUDA,
// operating on scheduler.BatchHandoff and completing each payload's sink
// independently.
type ONNX struct {
	mu        sync.Mutex
	modelPath string
	useGPU    bool
	ready     bool
}

// NewONNX creates an ONNX runner and loads the model at modelPath.
func NewONNX(modelPath string, useGPU bool) (*ONNX, error) {
	e := &ONNX{modelPath: modelPath, useGPU: useGPU}

	cModelPath := C.CString(modelPath)
	defer C.free(unsafe.Pointer(cModelPath))

	gpuFlag := C.int(0)
	if useGPU {
		gpuFlag = 1
	}

	if rc := C.ort_init(cModelPath, gpuFlag); rc != 0 {
		return nil, fmt.Errorf("onnx runtime init failed (code %d)", rc)
	}
	e.ready = true
	return e, nil
}

func (e *ONNX) Name() string {
	if e.useGPU {
		return "onnx-gpu"
	}
	return "onnx-cpu"
}

// Execute runs ImageNet-shaped inference over the batch and completes each
// payload's sink with its own top-5 prediction.
func (e *ONNX) Execute(batch scheduler.BatchHandoff) {
	if !e.ready {
		for _, p := range batch.Payloads {
			p.Sink.Complete(nil, fmt.Errorf("onnx runner not initialized"))
		}
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(batch.Payloads)
	if n == 0 {
		return
	}

	inputSize := n * 3 * 224 * 224
	inputData := make([]float32, inputSize)
	for i, payload := range batch.Payloads {
		raw := firstInputBytes(payload)
		offset := i * 3 * 224 * 224
		for j := 0; j < 3*224*224; j++ {
			if j < len(raw) {
				inputData[offset+j] = float32(raw[j]) / 255.0
			} else {
				inputData[offset+j] = 0.5
			}
		}
	}

	outputSize := n * 1000
	outputData := make([]float32, outputSize)

	rc := C.ort_run_batch(
		(*C.float)(unsafe.Pointer(&inputData[0])),
		C.int(n),
		(*C.float)(unsafe.Pointer(&outputData[0])),
	)
	if rc != 0 {
		err := fmt.Errorf("onnx inference failed (code %d)", rc)
		for _, p := range batch.Payloads {
			p.Sink.Complete(nil, err)
		}
		return
	}

	for i, payload := range batch.Payloads {
		offset := i * 1000
		probs := outputData[offset : offset+1000]

		maxVal := float32(-math.MaxFloat32)
		for _, v := range probs {
			if v > maxVal {
				maxVal = v
			}
		}
		sum := float32(0)
		softmax := make([]float32, 1000)
		for j, v := range probs {
			softmax[j] = float32(math.Exp(float64(v - maxVal)))
			sum += softmax[j]
		}
		for j := range softmax {
			softmax[j] /= sum
		}

		type pred struct {
			Class string  `json:"class"`
			Index int     `json:"index"`
			Prob  float64 `json:"probability"`
		}
		preds := make([]pred, 1000)
		for j := range preds {
			label := fmt.Sprintf("class_%d", j)
			if j < len(imagenetLabels) {
				label = imagenetLabels[j]
			}
			preds[j] = pred{Class: label, Index: j, Prob: float64(softmax[j])}
		}
		sort.Slice(preds, func(a, b int) bool { return preds[a].Prob > preds[b].Prob })

		result := map[string]any{
			"top5":      preds[:5],
			"simulated": false,
			"batch_pos": i,
			"runner":    "onnx",
		}
		data, err := json.Marshal(result)
		payload.Sink.Complete(data, err)
	}
}

// Peek decodes the named input's raw bytes as a little-endian []int64.
func (e *ONNX) Peek(runnerID int64, input string, payload *scheduler.Payload) ([]int64, error) {
	for _, in := range payload.Request.Inputs() {
		if in.Name != input {
			continue
		}
		if len(in.Data)%8 != 0 {
			return nil, fmt.Errorf("runner: shape tensor %q has %d bytes, not a multiple of 8", input, len(in.Data))
		}
		vals := make([]int64, len(in.Data)/8)
		for i := range vals {
			vals[i] = int64(binary.LittleEndian.Uint64(in.Data[i*8 : i*8+8]))
		}
		return vals, nil
	}
	return nil, fmt.Errorf("runner: input %q not found", input)
}

// Cleanup releases ONNX Runtime resources.
func (e *ONNX) Cleanup() {
	C.ort_cleanup()
	e.ready = false
}

func firstInputBytes(payload *scheduler.Payload) []byte {
	inputs := payload.Request.Inputs()
	if len(inputs) == 0 {
		return nil
	}
	return inputs[0].Data
}
