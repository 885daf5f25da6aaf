package master

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/mgpu-project/mgpu/internal/wire"
)

// Serve opens a TCP listener on addr and runs the accept loop until ctx is
// cancelled. Each connection is handled by its own ephemeral goroutine
// (spec.md §5); long-lived concerns (scheduler, node monitor) are started
// separately by the caller.
func (m *Master) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	logging.Log.WithField("addr", addr).Info("master listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.Log.WithError(err).Warn("accept error")
			continue
		}
		go m.handleConn(ctx, conn)
	}
}

// handleConn reads one command off conn and dispatches it. Interactive
// submit connections are retained by handleSubmit and are not closed here;
// every other command's connection is closed once the response is written.
func (m *Master) handleConn(ctx context.Context, conn net.Conn) {
	cmd, raw, err := wire.PeekCmd(conn, 10*time.Second)
	if err != nil {
		conn.Close()
		return
	}

	switch cmd {
	case wire.CmdSubmit:
		var req wire.SubmitRequest
		if err := wire.UnmarshalInto(raw, &req); err != nil {
			writeErr(conn, err.Error())
			conn.Close()
			return
		}
		m.handleSubmit(conn, req)
		if !req.Interactive {
			conn.Close()
		}
		return

	case wire.CmdQueue:
		defer conn.Close()
		m.handleQueue(conn)

	case wire.CmdCancel:
		defer conn.Close()
		var req wire.CancelRequest
		if err := wire.UnmarshalInto(raw, &req); err != nil {
			writeErr(conn, err.Error())
			return
		}
		m.handleCancel(ctx, conn, req)

	case wire.CmdFlush:
		defer conn.Close()
		m.handleFlush(ctx, conn)

	case wire.CmdGetJobOutput:
		defer conn.Close()
		var req wire.GetJobOutputRequest
		if err := wire.UnmarshalInto(raw, &req); err != nil {
			writeErr(conn, err.Error())
			return
		}
		m.handleGetJobOutput(conn, req)

	case wire.CmdNodeRegister:
		defer conn.Close()
		var req wire.NodeRegisterRequest
		if err := wire.UnmarshalInto(raw, &req); err != nil {
			writeErr(conn, err.Error())
			return
		}
		m.handleNodeRegister(conn, req)

	case wire.CmdNodeHeartbeat, wire.CmdNodeStatus:
		defer conn.Close()
		var req wire.NodeHeartbeatRequest
		if err := wire.UnmarshalInto(raw, &req); err != nil {
			writeErr(conn, err.Error())
			return
		}
		m.handleNodeHeartbeat(conn, req)

	case wire.CmdJobOutput:
		defer conn.Close()
		var req wire.JobOutputRequest
		if err := wire.UnmarshalInto(raw, &req); err != nil {
			writeErr(conn, err.Error())
			return
		}
		m.handleJobOutput(conn, req)

	case wire.CmdJobComplete:
		defer conn.Close()
		var req wire.JobCompleteRequest
		if err := wire.UnmarshalInto(raw, &req); err != nil {
			writeErr(conn, err.Error())
			return
		}
		m.handleJobComplete(conn, req)

	default:
		defer conn.Close()
		writeErr(conn, "unknown command: "+cmd)
	}
}
