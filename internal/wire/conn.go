package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// MaxMessageBytes bounds a single JSON message per spec.md §6: "Buffer size
// for reads is fixed (8 KiB); messages exceeding this are not supported."
const MaxMessageBytes = 8 * 1024

// WriteJSON marshals v and writes it to conn followed by a newline, honoring
// a write deadline. Used for both the request/response style (one object,
// then close or keep reading) and the newline-delimited streaming style.
func WriteJSON(conn net.Conn, v interface{}, timeout time.Duration) error {
	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if len(data) > MaxMessageBytes {
		return fmt.Errorf("message of %d bytes exceeds %d byte limit", len(data), MaxMessageBytes)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// ReadJSON reads a single newline-terminated JSON object from conn into v,
// honoring a read deadline.
func ReadJSON(conn net.Conn, v interface{}, timeout time.Duration) error {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, MaxMessageBytes), MaxMessageBytes)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		return fmt.Errorf("read message: connection closed")
	}
	if err := json.Unmarshal(scanner.Bytes(), v); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}
	return nil
}

// RawEnvelope is used to peek at a message's "cmd" field before decoding the
// full tagged-union shape, so unknown commands can be rejected uniformly
// (design note §9: "Implicit dynamic request shapes").
type RawEnvelope struct {
	Cmd string `json:"cmd"`
}

// PeekCmd reads one newline-terminated JSON object and returns both its raw
// bytes and its "cmd" field, so the caller can dispatch to the right typed
// decode without reading the connection twice.
func PeekCmd(conn net.Conn, timeout time.Duration) (cmd string, raw []byte, err error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return "", nil, fmt.Errorf("set read deadline: %w", err)
		}
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, MaxMessageBytes), MaxMessageBytes)
	if !scanner.Scan() {
		if serr := scanner.Err(); serr != nil {
			return "", nil, fmt.Errorf("read message: %w", serr)
		}
		return "", nil, fmt.Errorf("read message: connection closed")
	}
	raw = append([]byte(nil), scanner.Bytes()...)
	var env RawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", raw, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env.Cmd, raw, nil
}

// UnmarshalInto decodes raw (as returned by PeekCmd) into v, for use after
// the caller has already dispatched on the envelope's cmd field.
func UnmarshalInto(raw []byte, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}
	return nil
}

// Dial opens a TCP connection with a connect timeout, used for the
// short-lived agent->master and master->agent RPC connections described in
// spec.md §2.
func Dial(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}
