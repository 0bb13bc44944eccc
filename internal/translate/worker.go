package translate

import (
	"encoding/json"
	"fmt"

	"github.com/ayusman/yavanika/internal/frame"
	"github.com/ayusman/yavanika/internal/ipc"
	"github.com/ayusman/yavanika/internal/worker"
)

// WorkerTranslator runs the translation model in an isolated child
// process behind a supervisor.
type WorkerTranslator struct {
	sup *worker.Supervisor
}

// NewWorkerTranslator wraps a started supervisor.
func NewWorkerTranslator(sup *worker.Supervisor) *WorkerTranslator {
	return &WorkerTranslator{sup: sup}
}

// Translate round-trips one text through the worker.
func (w *WorkerTranslator) Translate(text, sourceLang, targetLang string) (Result, error) {
	payload, err := json.Marshal(ipc.ProcessPayload{
		Regions:    []frame.Region{{Text: text}},
		SourceLang: sourceLang,
		TargetLang: targetLang,
	})
	if err != nil {
		return Result{}, fmt.Errorf("translate: encode request: %w", err)
	}

	data, err := w.sup.Send(payload)
	if err != nil {
		return Result{}, err
	}

	var out ipc.ProcessPayload
	if err := json.Unmarshal(data, &out); err != nil {
		return Result{}, fmt.Errorf("translate: decode result: %w", err)
	}
	if len(out.Translations) == 0 {
		return Result{}, fmt.Errorf("translate: worker returned no translation")
	}
	tr := out.Translations[0]
	return Result{Text: tr.Text, Confidence: tr.Confidence}, nil
}

// Close shuts the worker down.
func (w *WorkerTranslator) Close() error {
	w.sup.Shutdown()
	return nil
}
