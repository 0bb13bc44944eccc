package ipc

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/yavanika/internal/frame"
)

func TestChannel_WriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	out := NewChannel(strings.NewReader(""), &buf)

	payload, err := json.Marshal(ProcessPayload{Seq: 42, SourceLang: "en", TargetLang: "de"})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	msg := &Message{Type: TypeProcess, ID: "req-1", Data: payload}
	if err := out.Write(msg); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	in := NewChannel(&buf, io.Discard)
	got, err := in.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Type != TypeProcess {
		t.Errorf("Type = %q, want %q", got.Type, TypeProcess)
	}
	if got.ID != "req-1" {
		t.Errorf("ID = %q, want req-1", got.ID)
	}

	var pp ProcessPayload
	if err := json.Unmarshal(got.Data, &pp); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if pp.Seq != 42 || pp.SourceLang != "en" || pp.TargetLang != "de" {
		t.Errorf("payload = %+v", pp)
	}
}

func TestChannel_ReadSkipsBlankLines(t *testing.T) {
	input := "\n\n{\"type\":\"ready\"}\n"
	ch := NewChannel(strings.NewReader(input), io.Discard)

	msg, err := ch.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if msg.Type != TypeReady {
		t.Errorf("Type = %q, want ready", msg.Type)
	}
}

// fragmentReader returns the underlying data one byte at a time,
// simulating partial reads across record boundaries.
type fragmentReader struct {
	data []byte
	pos  int
}

func (f *fragmentReader) Read(p []byte) (int, error) {
	if f.pos >= len(f.data) {
		return 0, io.EOF
	}
	p[0] = f.data[f.pos]
	f.pos++
	return 1, nil
}

func TestChannel_ReadToleratesFragmentedStream(t *testing.T) {
	records := "{\"type\":\"ready\"}\n{\"type\":\"result\",\"id\":\"a\"}\n"
	ch := NewChannel(&fragmentReader{data: []byte(records)}, io.Discard)

	first, err := ch.Read()
	if err != nil {
		t.Fatalf("Read() first error = %v", err)
	}
	if first.Type != TypeReady {
		t.Errorf("first.Type = %q, want ready", first.Type)
	}

	second, err := ch.Read()
	if err != nil {
		t.Fatalf("Read() second error = %v", err)
	}
	if second.Type != TypeResult || second.ID != "a" {
		t.Errorf("second = %+v", second)
	}

	if _, err := ch.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("Read() after end = %v, want io.EOF", err)
	}
}

func TestChannel_ReadMalformedRecord(t *testing.T) {
	ch := NewChannel(strings.NewReader("{not json}\n"), io.Discard)
	if _, err := ch.Read(); err == nil {
		t.Error("Read() succeeded on malformed record")
	}
}

func TestChannel_ClosedChannel(t *testing.T) {
	ch := NewChannel(strings.NewReader("{\"type\":\"ready\"}\n"), io.Discard)
	ch.Close()

	if _, err := ch.Read(); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Read() after Close = %v, want ErrChannelClosed", err)
	}
	if err := ch.Write(&Message{Type: TypeShutdown}); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("Write() after Close = %v, want ErrChannelClosed", err)
	}
}

func TestEncodeImage(t *testing.T) {
	f := &frame.Frame{
		Seq:        9,
		CapturedAt: time.Now(),
		Width:      2,
		Height:     2,
		Channels:   3,
		Pixels:     []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
	}

	img := EncodeImage(f)
	if img == nil {
		t.Fatal("EncodeImage() = nil")
	}
	if img.Seq != 9 || img.Width != 2 || img.Height != 2 || img.Channels != 3 {
		t.Errorf("image metadata = %+v", img)
	}
	if !bytes.Equal(img.Pixels, f.Pixels) {
		t.Error("pixel data differs")
	}

	// Pixels must survive a JSON round trip (base64 on the wire).
	data, err := json.Marshal(img)
	if err != nil {
		t.Fatalf("marshal image: %v", err)
	}
	var back ImagePayload
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal image: %v", err)
	}
	if !bytes.Equal(back.Pixels, f.Pixels) {
		t.Error("pixel data corrupted by wire encoding")
	}

	if EncodeImage(nil) != nil {
		t.Error("EncodeImage(nil) != nil")
	}
}
