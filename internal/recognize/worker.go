package recognize

import (
	"encoding/json"
	"fmt"

	"github.com/ayusman/yavanika/internal/frame"
	"github.com/ayusman/yavanika/internal/ipc"
	"github.com/ayusman/yavanika/internal/worker"
)

// WorkerRecognizer runs OCR in an isolated child process. Crashes in
// the model (GPU drivers, native OCR libraries) take down the child,
// not the pipeline; the supervisor restarts it within its budget.
type WorkerRecognizer struct {
	sup *worker.Supervisor
}

// NewWorkerRecognizer wraps a started supervisor.
func NewWorkerRecognizer(sup *worker.Supervisor) *WorkerRecognizer {
	return &WorkerRecognizer{sup: sup}
}

// Recognize ships the frame to the worker and returns its regions.
func (w *WorkerRecognizer) Recognize(f *frame.Frame) ([]frame.Region, error) {
	payload, err := json.Marshal(ipc.ProcessPayload{
		Seq:   f.Seq,
		Image: ipc.EncodeImage(f),
	})
	if err != nil {
		return nil, fmt.Errorf("recognize: encode frame: %w", err)
	}

	data, err := w.sup.Send(payload)
	if err != nil {
		return nil, err
	}

	var out ipc.ProcessPayload
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("recognize: decode result: %w", err)
	}
	return out.Regions, nil
}

// Close shuts the worker down.
func (w *WorkerRecognizer) Close() error {
	w.sup.Shutdown()
	return nil
}
