package rrdispatch

import (
	"encoding/json"
	"fmt"
	"strings"
)

// workerCommand is the JSON body following the command keyword on the line
// sent to a worker's stdin (§6: "one command per line in").
type workerCommand struct {
	TaskID    string   `json:"task_id"`
	Target    *Location `json:"target,omitempty"`
	Direction Direction `json:"direction"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// encodeCommand renders a Task as the single line a worker expects on its
// stdin: the task kind, then a JSON body carrying everything the worker
// needs to execute it. Malformed payloads are never produced here because
// Task.Payload is already validated JSON by the time it reaches this layer
// (see the intake frame decoder).
func encodeCommand(t *Task) string {
	body, err := json.Marshal(workerCommand{
		TaskID:    t.ID,
		Target:    t.Target,
		Direction: t.Direction,
		Payload:   json.RawMessage(t.Payload),
	})
	if err != nil {
		// A Task's own fields are always marshalable; only a caller-supplied
		// Payload that isn't valid JSON could reach here, and intake already
		// rejects those as ParseError before a Task is ever constructed.
		return fmt.Sprintf("%s {}", t.Kind)
	}
	return fmt.Sprintf("%s %s", t.Kind, body)
}

// parseWorkerEventLine decodes one `EVT <kind> <json>` line into a
// WorkerEvent (§6). The kind token selects WorkerEventLocation/Value/
// Progress; the remainder of the line is kept as raw JSON and not decoded
// here. The dispatcher forwards event bodies to clients as they are, and
// decodes only location bodies, to track the worker's current tick.
func parseWorkerEventLine(line string) (WorkerEvent, error) {
	rest := strings.TrimPrefix(line, "EVT ")
	kind, body, found := strings.Cut(rest, " ")
	if !found {
		return WorkerEvent{}, fmt.Errorf("missing payload in event line: %q", line)
	}

	var k WorkerEventKind
	switch kind {
	case string(WorkerEventLocation):
		k = WorkerEventLocation
	case string(WorkerEventValue):
		k = WorkerEventValue
	case string(WorkerEventProgress):
		k = WorkerEventProgress
	default:
		return WorkerEvent{}, fmt.Errorf("unknown event kind %q", kind)
	}

	return WorkerEvent{Kind: k, Body: []byte(body)}, nil
}
