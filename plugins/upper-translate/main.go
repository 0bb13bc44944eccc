// Package main provides a stub translator worker. It speaks the stdio
// worker protocol and answers each region with an uppercased
// pseudo-translation, so the out-of-process translate path can run
// without a model.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ayusman/yavanika/internal/frame"
	"github.com/ayusman/yavanika/internal/ipc"
)

func main() {
	log.SetPrefix("upper-translate: ")
	log.SetOutput(os.Stderr)

	ch := ipc.NewChannel(os.Stdin, os.Stdout)
	for {
		msg, err := ch.Read()
		if err != nil {
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

// handleProcess translates every region in the request.
func handleProcess(ch *ipc.Channel, msg *ipc.Message) {
	var payload ipc.ProcessPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		reply(ch, &ipc.Message{Type: ipc.TypeError, ID: msg.ID, Error: fmt.Sprintf("decode payload: %v", err)})
		return
	}

	translations := make([]frame.Translation, 0, len(payload.Regions))
	for _, r := range payload.Regions {
		translations = append(translations, frame.Translation{
			Region:     r,
			Text:       strings.ToUpper(r.Text),
			SourceLang: payload.SourceLang,
			TargetLang: payload.TargetLang,
			Confidence: 0.9,
		})
	}

	data, err := json.Marshal(ipc.ProcessPayload{Seq: payload.Seq, Translations: translations})
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
