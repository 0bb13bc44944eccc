package ipc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// MaxRecordSize is the largest single protocol record accepted.
// A 1080p BGRA frame base64-encodes to roughly 11 MB; 64 MB leaves
// headroom for 4K captures.
const MaxRecordSize = 64 << 20

// ErrRecordTooLarge is returned when an inbound record exceeds MaxRecordSize.
var ErrRecordTooLarge = errors.New("ipc: record exceeds maximum size")

// ErrChannelClosed is returned when reading from or writing to a closed channel.
var ErrChannelClosed = errors.New("ipc: channel closed")

// Channel frames Messages over a duplex byte stream. Records are
// newline-delimited JSON, so a reader can resynchronize on record
// boundaries regardless of how the underlying stream fragments reads
// and writes. Write is safe for concurrent use; Read is not and is
// intended for a single reader goroutine.
type Channel struct {
	r      *bufio.Reader
	w      io.Writer
	wmu    sync.Mutex
	closed bool
	cmu    sync.Mutex
}

// NewChannel wraps a read and a write stream in a Channel.
func NewChannel(r io.Reader, w io.Writer) *Channel {
	return &Channel{
		r: bufio.NewReaderSize(r, 64<<10),
		w: w,
	}
}

// Write marshals msg and appends the record delimiter. The record is
// written with a single Write call on the underlying stream so that
// concurrent writers never interleave records.
func (c *Channel) Write(msg *Message) error {
	if c.isClosed() {
		return ErrChannelClosed
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ipc: marshal %s record: %w", msg.Type, err)
	}
	if len(data) > MaxRecordSize {
		return ErrRecordTooLarge
	}
	data = append(data, '\n')

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("ipc: write %s record: %w", msg.Type, err)
	}
	return nil
}

// Read blocks until one complete record arrives and returns it.
// Blank lines are skipped. Reaching end of stream returns io.EOF.
func (c *Channel) Read() (*Message, error) {
	if c.isClosed() {
		return nil, ErrChannelClosed
	}
	for {
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("ipc: decode record: %w", err)
		}
		return &msg, nil
	}
}

// readLine accumulates a full line even when the bufio reader returns
// it in fragments, enforcing MaxRecordSize.
func (c *Channel) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := c.r.ReadLine()
		if err != nil {
			return nil, err
		}
		if buf == nil && !isPrefix {
			return chunk, nil
		}
		buf = append(buf, chunk...)
		if len(buf) > MaxRecordSize {
			return nil, ErrRecordTooLarge
		}
		if !isPrefix {
			return buf, nil
		}
	}
}

// Close marks the channel closed. It does not close the underlying
// streams; their lifetime belongs to the process owner.
func (c *Channel) Close() {
	c.cmu.Lock()
	c.closed = true
	c.cmu.Unlock()
}

func (c *Channel) isClosed() bool {
	c.cmu.Lock()
	defer c.cmu.Unlock()
	return c.closed
}
