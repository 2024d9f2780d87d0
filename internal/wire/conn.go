// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package wire implements the lockstep float channel between the simulator
// and the flight core.
//
// Every message is a fixed number of little-endian IEEE-754 float32 values
// whose count both ends agree on. Strings are sent as one float carrying the
// byte count followed by the raw bytes.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"time"
)

// FloatSize is the encoded size of one value.
const FloatSize = 4

// MaxStringLength bounds strings accepted by ReceiveString.
const MaxStringLength = 4096

// DefaultTimeout is the receive bound used when none is given.
const DefaultTimeout = time.Second

var (
	// ErrTimeout means the peer did not deliver a full message in time.
	ErrTimeout = errors.New("wire: receive timeout")
	// ErrShortFrame means the peer closed the connection mid-message.
	ErrShortFrame = errors.New("wire: short frame")
	// ErrClosed means the peer closed the connection between messages.
	ErrClosed = errors.New("wire: connection closed")
	// ErrMalformed means a string header carried an unusable length.
	ErrMalformed = errors.New("wire: malformed message")
)

// Conn is one end of the channel. It is not safe for concurrent receives.
type Conn struct {
	conn    net.Conn
	timeout time.Duration
}

// NewConn wraps conn. A non-positive timeout selects DefaultTimeout.
func NewConn(conn net.Conn, timeout time.Duration) *Conn {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Conn{conn: conn, timeout: timeout}
}

// Timeout returns the receive bound.
func (c *Conn) Timeout() time.Duration { return c.timeout }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.conn.Close() }

// receive reads exactly n bytes within one timeout window.
func (c *Conn) receive(n int) ([]byte, error) {
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("wire: set deadline: %w", err)
	}

	read, err := io.ReadFull(c.conn, buf)
	if err == nil {
		return buf, nil
	}

	var netErr net.Error
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return nil, fmt.Errorf("%w after %d of %d bytes", ErrTimeout, read, n)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("%w: %d of %d bytes", ErrShortFrame, read, n)
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		return nil, ErrClosed
	default:
		return nil, fmt.Errorf("wire: receive: %w", err)
	}
}

// ReceiveFloats reads exactly n values.
func (c *Conn) ReceiveFloats(n int) ([]float32, error) {
	if n < 0 {
		return nil, fmt.Errorf("wire: negative arity %d", n)
	}
	buf, err := c.receive(n * FloatSize)
	if err != nil {
		return nil, err
	}
	return DecodeFloats(buf), nil
}

// SendFloats writes the values as one message.
func (c *Conn) SendFloats(values []float32) error {
	if _, err := c.conn.Write(EncodeFloats(values)); err != nil {
		return fmt.Errorf("wire: send: %w", err)
	}
	return nil
}

// ReceiveBytes reads exactly n raw bytes, e.g. a camera frame.
func (c *Conn) ReceiveBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("wire: negative length %d", n)
	}
	return c.receive(n)
}

// SendBytes writes raw bytes, e.g. a camera frame.
func (c *Conn) SendBytes(b []byte) error {
	if _, err := c.conn.Write(b); err != nil {
		return fmt.Errorf("wire: send: %w", err)
	}
	return nil
}

// ReceiveString reads a length header and the string it announces.
func (c *Conn) ReceiveString() (string, error) {
	header, err := c.ReceiveFloats(1)
	if err != nil {
		return "", err
	}

	length := float64(header[0])
	if math.IsNaN(length) || length < 0 || length > MaxStringLength || length != math.Trunc(length) {
		return "", fmt.Errorf("%w: string length %v", ErrMalformed, header[0])
	}

	buf, err := c.receive(int(length))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// SendString writes s with its length header.
func (c *Conn) SendString(s string) error {
	if len(s) > MaxStringLength {
		return fmt.Errorf("%w: string of %d bytes", ErrMalformed, len(s))
	}
	msg := append(EncodeFloats([]float32{float32(len(s))}), s...)
	if _, err := c.conn.Write(msg); err != nil {
		return fmt.Errorf("wire: send: %w", err)
	}
	return nil
}

// EncodeFloats returns the wire form of values.
func EncodeFloats(values []float32) []byte {
	buf := make([]byte, len(values)*FloatSize)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*FloatSize:], math.Float32bits(v))
	}
	return buf
}

// DecodeFloats parses buf, whose length must be a multiple of FloatSize.
// Trailing bytes are ignored.
func DecodeFloats(buf []byte) []float32 {
	values := make([]float32, len(buf)/FloatSize)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*FloatSize:]))
	}
	return values
}
