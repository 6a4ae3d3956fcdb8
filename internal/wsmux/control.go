package wsmux

import "encoding/json"

// controlEnvelope carries just enough to dispatch on Type; each case then
// re-unmarshals data into its specific shape, mirroring the teacher's
// ws.Envelope dispatch idiom.
type controlEnvelope struct {
	Type string `json:"type"`
}

type subscribeMsg struct {
	SessionID string   `json:"sessionId"`
	Streams   []string `json:"streams"`
}

type inputMsg struct {
	SessionID string `json:"sessionId"`
	Data      string `json:"data"` // base64
}

type resizeMsg struct {
	SessionID string `json:"sessionId"`
	Cols      int    `json:"cols"`
	Rows      int    `json:"rows"`
}

type resetSizeMsg struct {
	SessionID string `json:"sessionId"`
}

type killMsg struct {
	SessionID string `json:"sessionId"`
	Signal    *int   `json:"signal,omitempty"`
}

type renameMsg struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
}

// Stream identifies one of the three subscribable data streams.
type Stream string

const (
	StreamOutput   Stream = "output"
	StreamSnapshot Stream = "snapshot"
	StreamEvents   Stream = "events"
)

func parseStreams(raw []string) map[Stream]bool {
	out := make(map[Stream]bool, len(raw))
	for _, s := range raw {
		out[Stream(s)] = true
	}
	return out
}

// eventPayload is the JSON body of an EVENT data frame.
type eventPayload struct {
	Kind      string `json:"kind"`
	SessionID string `json:"sessionId,omitempty"`
	ExitCode  *int   `json:"exitCode,omitempty"`
	Name      string `json:"name,omitempty"`
}

func marshalEvent(e eventPayload) []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return []byte(`{"kind":"` + e.Kind + `"}`)
	}
	return data
}
