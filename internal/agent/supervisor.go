package agent

import (
	"bufio"
	"fmt"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/mgpu-project/mgpu/internal/wire"
)

// Supervisor streams a job process's output to the master and reports its
// completion. Each job is driven through its own goroutine (spec.md §4.6:
// "a single-producer goroutine per job"), so interactive output is
// delivered to the master in the order it was produced without extra
// synchronization.
type Supervisor struct {
	masterAddr string
	nodeID     string
	dialTO     time.Duration
	writeTO    time.Duration
}

// NewSupervisor builds a Supervisor that reports streamed output and
// completion to masterAddr, identifying itself as nodeID on every report.
func NewSupervisor(masterAddr, nodeID string) *Supervisor {
	return &Supervisor{
		masterAddr: masterAddr,
		nodeID:     nodeID,
		dialTO:     5 * time.Second,
		writeTO:    5 * time.Second,
	}
}

// runProcess streams proc's output line-by-line to the master (master
// buffers it regardless of interactivity; the Interactive flag tells the
// master whether to also fan it out to an attached client socket, per
// spec.md §4.6), waits for the process to exit, and reports job_complete.
// It blocks until the completion report has been (best-effort) delivered;
// callers run it in its own goroutine per job.
func (s *Supervisor) runProcess(jobID string, interactive bool, proc Process) {
	logger := logging.Log.WithField("job_id", jobID)

	scanner := bufio.NewScanner(proc.Output())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if err := s.reportOutput(jobID, line, interactive); err != nil {
			logger.WithError(err).Warn("failed to ship job output line")
		}
	}
	if err := scanner.Err(); err != nil {
		logger.WithError(err).Warn("error reading job output")
	}

	exitCode, waitErr := proc.Wait()
	if waitErr != nil {
		logger.WithError(waitErr).Warn("job process wait returned an error")
	}

	logger.WithField("exit_code", exitCode).Info("job process exited")
	s.reportCompletion(jobID, exitCode)
}

func (s *Supervisor) reportOutput(jobID, line string, interactive bool) error {
	conn, err := wire.Dial(s.masterAddr, s.dialTO)
	if err != nil {
		return fmt.Errorf("dial master: %w", err)
	}
	defer conn.Close()

	req := wire.JobOutputRequest{
		Cmd:         wire.CmdJobOutput,
		JobID:       jobID,
		Data:        line,
		Interactive: interactive,
		NodeID:      s.nodeID,
	}
	return wire.WriteJSON(conn, req, s.writeTO)
}

func (s *Supervisor) reportCompletion(jobID string, exitCode int) {
	conn, err := wire.Dial(s.masterAddr, s.dialTO)
	if err != nil {
		logging.Log.WithField("job_id", jobID).WithError(err).
			Error("failed to dial master to report job completion")
		return
	}
	defer conn.Close()

	req := wire.JobCompleteRequest{
		Cmd:      wire.CmdJobComplete,
		JobID:    jobID,
		ExitCode: exitCode,
		NodeID:   s.nodeID,
	}
	if err := wire.WriteJSON(conn, req, s.writeTO); err != nil {
		logging.Log.WithField("job_id", jobID).WithError(err).
			Error("failed to report job completion to master")
	}
}
