package master

import (
	"net"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/mgpu-project/mgpu/internal/wire"
)

// attachment is the master's retained client socket for an interactive job
// (spec.md §3 Glossary). It owns the socket; the socket never references
// the master back, avoiding the cyclic reference the original design used.
type attachment struct {
	conn net.Conn
}

// attachInteractive records conn as jobID's interactive output sink.
func (m *Master) attachInteractive(jobID string, conn net.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactive[jobID] = &attachment{conn: conn}
}

// emitOutput appends line to jobID's output buffer and, if an interactive
// client is attached, forwards it as a newline-terminated output event. A
// write failure drops the attachment; the job itself continues
// (spec.md §4.3).
func (m *Master) emitOutput(jobID, line string) {
	m.mu.Lock()
	m.output[jobID] = append(m.output[jobID], line)
	att := m.interactive[jobID]
	m.mu.Unlock()

	if att == nil {
		return
	}
	event := wire.StreamOutputEvent{Type: "output", Data: line}
	if err := wire.WriteJSON(att.conn, event, 5*time.Second); err != nil {
		m.dropAttachment(jobID, att)
	}
}

// streamOutput forwards line to jobID's interactive attachment without
// appending it to the output buffer, for callers that already appended the
// line themselves (e.g. finalizeLocked's msg parameter).
func (m *Master) streamOutput(jobID, line string) {
	m.mu.Lock()
	att := m.interactive[jobID]
	m.mu.Unlock()

	if att == nil {
		return
	}
	event := wire.StreamOutputEvent{Type: "output", Data: line}
	if err := wire.WriteJSON(att.conn, event, 5*time.Second); err != nil {
		m.dropAttachment(jobID, att)
	}
}

// emitCompletion sends a completion event to jobID's interactive attachment,
// if any, and closes and drops it.
func (m *Master) emitCompletion(jobID string, exitCode int) {
	m.mu.Lock()
	att := m.interactive[jobID]
	delete(m.interactive, jobID)
	m.mu.Unlock()

	if att == nil {
		return
	}
	event := wire.StreamCompletionEvent{Type: "completion", ExitCode: exitCode}
	if err := wire.WriteJSON(att.conn, event, 5*time.Second); err != nil {
		logging.Log.WithField("job_id", jobID).WithError(err).
			Debug("failed to deliver completion event, client likely gone")
	}
	att.conn.Close()
}

// dropAttachment removes att as jobID's attachment iff it is still current,
// and closes its socket. The job continues regardless (spec.md §7:
// "Interactive client disconnect: attachment removed; job continues").
func (m *Master) dropAttachment(jobID string, att *attachment) {
	m.mu.Lock()
	if m.interactive[jobID] == att {
		delete(m.interactive, jobID)
	}
	m.mu.Unlock()
	att.conn.Close()
}
