// Package ipc implements the wire protocol between the pipeline host
// and isolated worker processes: newline-delimited JSON records with a
// type discriminator, exchanged over the worker's stdin/stdout.
package ipc

import (
	"encoding/json"

	"github.com/ayusman/yavanika/internal/frame"
)

// MessageType discriminates protocol records.
type MessageType string

// Outbound (host to worker) message types.
const (
	TypeInit     MessageType = "init"
	TypeProcess  MessageType = "process"
	TypeShutdown MessageType = "shutdown"
)

// Inbound (worker to host) message types.
const (
	TypeReady  MessageType = "ready"
	TypeResult MessageType = "result"
	TypeError  MessageType = "error"
)

// Message is one protocol record. ID correlates a process request with
// its result; responses carrying an unknown ID are stale (sent by a
// worker incarnation that has since been restarted) and are discarded.
type Message struct {
	Type   MessageType     `json:"type"`
	ID     string          `json:"id,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ImagePayload carries a frame across the process boundary. Pixels is
// base64-encoded on the wire by encoding/json; no memory is shared with
// the child.
type ImagePayload struct {
	Seq      int64  `json:"seq"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Channels int    `json:"channels"`
	Pixels   []byte `json:"pixels"`
}

// ProcessPayload is the stage-specific data attached to a process
// request or result. Workers read the fields relevant to their stage
// and return the fields they produce; absent fields are left unchanged
// by the host.
type ProcessPayload struct {
	Seq          int64               `json:"seq"`
	Image        *ImagePayload       `json:"image,omitempty"`
	Regions      []frame.Region      `json:"regions,omitempty"`
	Translations []frame.Translation `json:"translations,omitempty"`
	SourceLang   string              `json:"sourceLang,omitempty"`
	TargetLang   string              `json:"targetLang,omitempty"`
	Skip         *bool               `json:"skip,omitempty"`
}

// EncodeImage converts a frame to its wire representation.
func EncodeImage(f *frame.Frame) *ImagePayload {
	if f == nil {
		return nil
	}
	return &ImagePayload{
		Seq:      f.Seq,
		Width:    f.Width,
		Height:   f.Height,
		Channels: f.Channels,
		Pixels:   f.Pixels,
	}
}
