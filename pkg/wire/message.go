package wire

import (
	"encoding/json"
	"fmt"
)

// Handshake results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Request is a message carrying an action.
type Request struct {
	Action  Action `json:"action"`
	DevID   string `json:"devid,omitempty"`
	DevType string `json:"devtype,omitempty"`
	User    string `json:"user,omitempty"`
	Pass    string `json:"pass,omitempty"`
	Value   *int   `json:"value,omitempty"`
}

// NewConnectRequest builds the handshake request for a device.
func NewConnectRequest(devID, devType string, creds Credentials) Request {
	return Request{
		Action:  ActionConnect,
		DevID:   devID,
		DevType: devType,
		User:    creds.User,
		Pass:    creds.Pass,
	}
}

// NewCommand builds a command request without a value.
func NewCommand(action Action) Request {
	return Request{Action: action}
}

// NewThresholdCommand builds a set_thres request.
func NewThresholdCommand(value int) Request {
	return Request{Action: ActionSetThreshold, Value: &value}
}

// Credentials returns the credentials carried by a handshake request.
func (r Request) Credentials() Credentials {
	return Credentials{User: r.User, Pass: r.Pass}
}

// Response is a message carrying a result. Result is kept raw so that an
// absent key can be told apart from any value.
type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
}

// NewResponse builds a response with the given result value.
// Values that cannot be marshaled produce an empty (invalid) response.
func NewResponse(result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return Response{}
	}
	return Response{Result: data}
}

// HasResult reports whether the response carried a result key.
func (r Response) HasResult() bool {
	return len(r.Result) > 0
}

// String returns the result if it is a string.
func (r Response) String() (string, bool) {
	var s string
	if err := json.Unmarshal(r.Result, &s); err != nil {
		return "", false
	}
	return s, true
}

// Readings returns the result if it is an object.
func (r Response) Readings() (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal(r.Result, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

// IsSuccess reports whether the result is the string "success".
func (r Response) IsSuccess() bool {
	s, ok := r.String()
	return ok && s == ResultSuccess
}

// Format renders the result as compact JSON for display.
func (r Response) Format() string {
	if !r.HasResult() {
		return "<no result>"
	}
	return string(r.Result)
}

// Credentials is the single username/password pair shared by the hub and
// all devices.
type Credentials struct {
	User string `json:"user" yaml:"user"`
	Pass string `json:"pass" yaml:"pass"`
}

// Match reports whether c and other are exactly equal.
func (c Credentials) Match(other Credentials) bool {
	return c.User == other.User && c.Pass == other.Pass
}

// IsZero reports whether no credentials are set.
func (c Credentials) IsZero() bool {
	return c.User == "" && c.Pass == ""
}

// String hides the password.
func (c Credentials) String() string {
	return fmt.Sprintf("%s:****", c.User)
}
