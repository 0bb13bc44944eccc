// Package main provides a stub recognizer worker. It speaks the stdio
// worker protocol and reports one synthetic text region per frame, so
// the full out-of-process path can be exercised without an OCR model.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ayusman/yavanika/internal/frame"
	"github.com/ayusman/yavanika/internal/ipc"
)

func main() {
	log.SetPrefix("ocr-stub: ")
	log.SetOutput(os.Stderr)

	ch := ipc.NewChannel(os.Stdin, os.Stdout)
	for {
		msg, err := ch.Read()
		if err != nil {
			// Host closed the pipe.
			return
		}

		switch msg.Type {
		case ipc.TypeInit:
			if err := ch.Write(&ipc.Message{Type: ipc.TypeReady}); err != nil {
				log.Fatalf("write ready: %v", err)
			}
		case ipc.TypeProcess:
			handleProcess(ch, msg)
		case ipc.TypeShutdown:
			return
		default:
			log.Printf("unknown message type %q", msg.Type)
		}
	}
}

// handleProcess answers one process request with a synthetic region.
func handleProcess(ch *ipc.Channel, msg *ipc.Message) {
	var payload ipc.ProcessPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		reply(ch, &ipc.Message{Type: ipc.TypeError, ID: msg.ID, Error: fmt.Sprintf("decode payload: %v", err)})
		return
	}
	if payload.Image == nil {
		reply(ch, &ipc.Message{Type: ipc.TypeError, ID: msg.ID, Error: "no image in request"})
		return
	}

	img := payload.Image
	result := ipc.ProcessPayload{
		Seq: payload.Seq,
		Regions: []frame.Region{{
			X: img.Width / 4, Y: img.Height / 4,
			Width: img.Width / 2, Height: img.Height / 8,
			Text:       fmt.Sprintf("stub text %d", img.Seq),
			Confidence: 0.97,
		}},
	}
	data, err := json.Marshal(result)
	if err != nil {
		reply(ch, &ipc.Message{Type: ipc.TypeError, ID: msg.ID, Error: fmt.Sprintf("encode result: %v", err)})
		return
	}
	reply(ch, &ipc.Message{Type: ipc.TypeResult, ID: msg.ID, Data: data})
}

func reply(ch *ipc.Channel, msg *ipc.Message) {
	if err := ch.Write(msg); err != nil {
		log.Fatalf("write response: %v", err)
	}
}
