package recommend

import "encoding/json"

// EventType is the wire tag carried by every event.
type EventType string

const (
	TypeUpdate          EventType = "update"
	TypeScreenshot      EventType = "screenshot"
	TypeScreenshotError EventType = "screenshot_error"
	TypeDone            EventType = "done"
)

// Event is one item of a recommendation stream. The concrete types are
// Update, Screenshot, ScreenshotError and Done.
type Event interface {
	Type() EventType
	isEvent()
}

// Update carries the recommendation narrative.
type Update struct {
	Narrative string
}

// Screenshot carries a competitor's captured image.
type Screenshot struct {
	URL   string
	Image []byte
}

// ScreenshotError reports a competitor that could not be captured.
type ScreenshotError struct {
	URL    string
	Reason string
}

// Done is the final event of a successful stream.
type Done struct{}

func (Update) Type() EventType          { return TypeUpdate }
func (Screenshot) Type() EventType      { return TypeScreenshot }
func (ScreenshotError) Type() EventType { return TypeScreenshotError }
func (Done) Type() EventType            { return TypeDone }

func (Update) isEvent()          {}
func (Screenshot) isEvent()      {}
func (ScreenshotError) isEvent() {}
func (Done) isEvent()            {}

func (e Update) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      EventType `json:"type"`
		Narrative string    `json:"narrative"`
	}{e.Type(), e.Narrative})
}

func (e Screenshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  EventType `json:"type"`
		URL   string    `json:"url"`
		Image []byte    `json:"image"`
	}{e.Type(), e.URL, e.Image})
}

func (e ScreenshotError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   EventType `json:"type"`
		URL    string    `json:"url"`
		Reason string    `json:"reason"`
	}{e.Type(), e.URL, e.Reason})
}

func (e Done) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type EventType `json:"type"`
	}{e.Type()})
}
