package rrdispatch

import "encoding/json"

// Request is one client-to-dispatcher frame (§6): seq is monotone per
// client connection, command names a Kind, arguments is kind-specific.
type Request struct {
	Seq       int64           `json:"seq"`
	Command   string          `json:"command"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Response is one dispatcher-to-client terminal frame answering exactly one
// Request (§6, §8: "exactly one terminal response is emitted").
type Response struct {
	RequestSeq int64           `json:"request_seq"`
	Success    bool            `json:"success"`
	Message    string          `json:"message,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Event is an unsolicited dispatcher-to-client frame carrying worker
// progress (§6: "Events carry event and body").
type Event struct {
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// OutboundFrame is whatever C1's writer thread sends next: exactly one of
// Response or Event is non-nil, mirroring the union the wire protocol
// multiplexes over a single stream.
type OutboundFrame struct {
	Response *Response
	Event    *Event
}

func successResponse(seq int64, body json.RawMessage) OutboundFrame {
	return OutboundFrame{Response: &Response{RequestSeq: seq, Success: true, Body: body}}
}

func failureResponse(seq int64, message string) OutboundFrame {
	return OutboundFrame{Response: &Response{RequestSeq: seq, Success: false, Message: message}}
}

func workerEventFrame(kind WorkerEventKind, body []byte) OutboundFrame {
	return OutboundFrame{Event: &Event{Event: string(kind), Body: json.RawMessage(body)}}
}
