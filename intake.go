package rrdispatch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// frameReader decodes the length-prefixed JSON frames described in §6:
// a header "Content-Length: N\r\n\r\n" followed by exactly N bytes of
// UTF-8 JSON. It is the intake reader thread's only blocking point
// (§5: "Intake reader blocks on socket read").
type frameReader struct {
	r *bufio.Reader
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReader(r)}
}

// ReadRequest blocks until one full frame has arrived, decodes its JSON
// body into a Request, and returns it. A malformed header or body is
// reported as a *TaskError with ErrorKindMalformedFraming/ParseError so the
// caller can "recover locally; drop the frame; log" per §7, rather than
// tearing down the connection.
func (fr *frameReader) ReadRequest() (*Request, error) {
	length, err := fr.readHeader()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(fr.r, buf); err != nil {
		return nil, NewTaskError(ErrorKindMalformedFraming, "", "", fmt.Errorf("short frame body: %w", err))
	}

	var req Request
	if err := json.Unmarshal(buf, &req); err != nil {
		return nil, NewTaskError(ErrorKindParseError, "", "", err)
	}
	return &req, nil
}

func (fr *frameReader) readHeader() (int, error) {
	var length = -1
	for {
		line, err := fr.r.ReadString('\n')
		if err != nil {
			return 0, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if length < 0 {
				return 0, NewTaskError(ErrorKindMalformedFraming, "", "", fmt.Errorf("missing Content-Length header"))
			}
			return length, nil
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return 0, NewTaskError(ErrorKindMalformedFraming, "", "", fmt.Errorf("malformed header line %q", line))
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return 0, NewTaskError(ErrorKindMalformedFraming, "", "", fmt.Errorf("bad Content-Length: %w", err))
			}
			length = n
		}
	}
}

// frameWriter encodes OutboundFrame values (Response or Event) into the
// same length-prefixed wire format, and is the outbound writer thread's
// only blocking point (§5: "Outbound writer blocks on socket write").
type frameWriter struct {
	w io.Writer
}

func newFrameWriter(w io.Writer) *frameWriter {
	return &frameWriter{w: w}
}

func (fw *frameWriter) Write(f OutboundFrame) error {
	var payload interface{}
	switch {
	case f.Response != nil:
		payload = f.Response
	case f.Event != nil:
		payload = f.Event
	default:
		return fmt.Errorf("empty outbound frame")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	if _, err := io.WriteString(fw.w, header); err != nil {
		return err
	}
	_, err = fw.w.Write(body)
	return err
}

// requestToTask classifies a Request into a Task, validating the command
// name against the closed Kind vocabulary (§3). Sequence numbers carry
// straight through so responses can be correlated by request_seq.
func requestToTask(req *Request) (*Task, error) {
	kind := Kind(req.Command)
	if _, ok := CategoryOf(kind); !ok {
		return nil, NewTaskError(ErrorKindUnknownCommand, "", kind, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command))
	}

	var args struct {
		TaskID    string    `json:"task_id"`
		Target    *Location `json:"target"`
		Direction Direction `json:"direction"`
	}
	if len(req.Arguments) > 0 {
		if err := json.Unmarshal(req.Arguments, &args); err != nil {
			return nil, NewTaskError(ErrorKindParseError, "", kind, err)
		}
	}
	if args.TaskID == "" {
		args.TaskID = fmt.Sprintf("seq-%d", req.Seq)
	}

	return NewTask(args.TaskID, req.Seq, kind, req.Arguments, args.Target, args.Direction), nil
}
