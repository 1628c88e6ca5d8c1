package log

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// An .hlog file is a CBOR sequence: one FileHeader, then Events.
const (
	FileMagic     = "homehub-log"
	FormatVersion = 1
)

var (
	ErrNotHubLog         = errors.New("not a homehub protocol log")
	ErrUnsupportedFormat = errors.New("unsupported protocol log format")
)

// FileHeader is the first item of every log file.
type FileHeader struct {
	Magic   string    `cbor:"magic"`
	Version uint8     `cbor:"version"`
	Created time.Time `cbor:"created"`
}

func newFileHeader() FileHeader {
	return FileHeader{Magic: FileMagic, Version: FormatVersion, Created: time.Now().UTC()}
}

func (h FileHeader) check() error {
	if h.Magic != FileMagic {
		return ErrNotHubLog
	}
	if h.Version != FormatVersion {
		return fmt.Errorf("%w: version %d", ErrUnsupportedFormat, h.Version)
	}
	return nil
}

// ReadHeader decodes and checks the header at the head of dec. An empty
// stream yields io.EOF.
func ReadHeader(dec *cbor.Decoder) (FileHeader, error) {
	var h FileHeader
	if err := dec.Decode(&h); err != nil {
		if errors.Is(err, io.EOF) {
			return FileHeader{}, io.EOF
		}
		return FileHeader{}, fmt.Errorf("%w: %w", ErrNotHubLog, err)
	}
	return h, h.check()
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: cbor encode mode: %v", err))
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: cbor decode mode: %v", err))
	}
}

// EncodeEvent encodes one event.
func EncodeEvent(event Event) ([]byte, error) {
	return encMode.Marshal(event)
}

// DecodeEvent decodes one event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := decMode.Unmarshal(data, &event)
	return event, err
}

// NewEncoder returns a stream encoder using the log's encoding options.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder using the log's decoding options.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
