//go:build linux

package kvserver

import (
	"bytes"
	"fmt"

	"go.uber.org/zap"

	"kvring/internal/resp"
	"kvring/internal/ring"
)

var (
	replyPong          = []byte("+PONG\r\n")
	replyOK            = []byte("+OK\r\n")
	replyNil           = []byte("$-1\r\n")
	replyProtocolError = []byte("-ERR protocol error\r\n")
)

// dispatch is the engine's single registered callback. It recovers the
// concrete listener or connection from result's IoContext.User and
// branches on kind, exactly mirroring spec.md's dispatch table. A
// returned error is engine-fatal (propagates out of Enter); it is
// reserved for submission-queue failures, not per-connection I/O
// failures, which are handled inline per op below.
func (s *Server) dispatch(kind ring.IoKind, user any, result ring.IoResult) error {
	switch kind {
	case ring.KindAccept:
		return s.onAccept(result)
	case ring.KindRecv:
		return s.onRecv(user.(*Connection), result)
	case ring.KindClose:
		s.onClose(user.(*Connection))
	case ring.KindWrite:
		return s.onWrite(user.(*Connection), result)
	}
	return nil
}

func (s *Server) onAccept(result ring.IoResult) error {
	if errno, failed := result.Err(); failed {
		s.log.Warn("accept failed", zap.Int32("errno", errno))
	} else {
		conn := newConnection(s, ring.Handle(result.Res))
		conn.link()
		conn.Recv.Callback = s.dispatch
		if err := s.engine.Recv(&conn.Recv, conn.Handle); err != nil {
			return err
		}
	}
	// Exactly one accept is outstanding at all times while the server
	// runs; re-arm regardless of the outcome above.
	return s.engine.Accept(&s.accept, s.listenFD)
}

func (s *Server) onRecv(conn *Connection, result ring.IoResult) error {
	if _, failed := result.Err(); failed {
		return nil
	}
	if result.Res == 0 {
		conn.Write.Callback = s.dispatch
		return s.engine.CloseFD(&conn.Write, conn.Handle)
	}

	reply, ok := s.process(conn, result.Buf)
	if !ok {
		// process reported a parse failure: reply with a protocol
		// error and close this connection only. The close must not be
		// submitted until the write's own completion is observed —
		// per-handle ordering of unlinked SQEs is the caller's
		// responsibility — so this write is submitted with
		// suppressOnSuccess false: a completion always arrives, and
		// onWrite submits the close from it.
		conn.closeAfterWrite = true
		conn.Write.Callback = s.dispatch
		return s.engine.Write(&conn.Write, conn.Handle, replyProtocolError, 0, false)
	}

	if reply != nil {
		conn.Write.Callback = s.dispatch
		if err := s.engine.Write(&conn.Write, conn.Handle, reply, 0, true); err != nil {
			return err
		}
	}
	return s.engine.Recv(&conn.Recv, conn.Handle)
}

// onWrite handles the completion of a write submitted with
// suppressOnSuccess false — currently only the protocol-error reply.
// Whether that write succeeded or failed, the connection is being torn
// down either way, so the close is submitted unconditionally from
// here rather than from onRecv.
func (s *Server) onWrite(conn *Connection, result ring.IoResult) error {
	if !conn.closeAfterWrite {
		return nil
	}
	conn.closeAfterWrite = false
	if _, failed := result.Err(); failed {
		s.log.Debug("protocol error reply write failed", zap.Int32("res", result.Res))
	}
	conn.Write.Callback = s.dispatch
	return s.engine.CloseFD(&conn.Write, conn.Handle)
}

func (s *Server) onClose(conn *Connection) {
	conn.unlink()
}

// process parses one RESP frame out of buf and returns the reply to
// write, if any. ok is false only when the frame failed to parse;
// reply is nil both when parsing succeeded but the parsed shape has no
// reply (spec.md's "Any other parsed shape" row) and when there is
// nothing to send back.
func (s *Server) process(conn *Connection, buf []byte) (reply []byte, ok bool) {
	item, err := resp.NewParser(buf).Parse()
	if err != nil {
		return nil, false
	}

	switch item.Kind {
	case resp.KindString:
		if bytes.HasPrefix(bytes.ToUpper(item.Str), []byte("PING")) {
			return replyPong, true
		}
		return nil, true

	case resp.KindList:
		return s.processCommand(item.List), true

	default:
		return nil, true
	}
}

func (s *Server) processCommand(args []resp.Item) []byte {
	if len(args) == 0 || args[0].Kind != resp.KindString {
		return replyOK
	}
	cmd := string(bytes.ToUpper(args[0].Str))

	switch cmd {
	case "PING":
		return replyPong
	case "CLIENT":
		return replyOK
	case "SET":
		if len(args) == 3 && args[1].Kind == resp.KindString && args[2].Kind == resp.KindString {
			s.store.Set(args[1].Str, args[2].Str)
		}
		return replyOK
	case "GET":
		if len(args) == 2 && args[1].Kind == resp.KindString {
			if v, found := s.store.Get(args[1].Str); found {
				return encodeBulkString(v)
			}
			return replyNil
		}
		return replyOK
	default:
		return replyOK
	}
}

func encodeBulkString(v []byte) []byte {
	out := make([]byte, 0, len(v)+16)
	out = append(out, fmt.Sprintf("$%d\r\n", len(v))...)
	out = append(out, v...)
	out = append(out, '\r', '\n')
	return out
}
