package wire

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/bobg/syncr"
)

// Conn wraps a duplex byte stream (typically a transport.Stream) with the
// line-based framing described in §4.7. Writes are serialized by a mutex
// and are safe for concurrent use, and one reader may run alongside
// writers; ReadFrame itself is not safe for concurrent use, since the
// protocol is single-threaded per direction.
type Conn struct {
	r *bufio.Scanner

	wmu sync.Mutex
	w   io.Writer
}

// NewConn wraps rw as a framed Conn.
func NewConn(rw io.ReadWriter) *Conn {
	scanner := bufio.NewScanner(rw)
	scanner.Buffer(make([]byte, 4096), MaxFrameBytes)
	scanner.Split(bufio.ScanLines)
	return &Conn{r: scanner, w: rw}
}

// ReadFrame reads and decodes the next line.
func (c *Conn) ReadFrame() (Frame, error) {
	if !c.r.Scan() {
		if err := c.r.Err(); err != nil {
			return Frame{}, errors.Wrap(err, "reading frame")
		}
		return Frame{}, io.EOF
	}
	return parseLine(c.r.Bytes())
}

func parseLine(line []byte) (Frame, error) {
	s := string(line)
	if strings.HasPrefix(s, "DATA ") {
		return parseDataLine(s)
	}
	return parseCommandLine(s)
}

func parseDataLine(s string) (Frame, error) {
	fields := strings.SplitN(s, " ", 3)
	if len(fields) != 3 {
		return Frame{}, errors.New("wire: malformed DATA line")
	}
	ref, err := syncr.RefFromHex(fields[1])
	if err != nil {
		return Frame{}, errors.Wrap(err, "decoding DATA digest")
	}
	data, err := base64.StdEncoding.DecodeString(fields[2])
	if err != nil {
		return Frame{}, errors.Wrap(err, "decoding DATA payload")
	}
	return Frame{isData: true, Ref: ref, Data: data}, nil
}

func parseCommandLine(s string) (Frame, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Frame{}, errors.New("wire: empty line")
	}
	verb := fields[0]

	rest := strings.TrimSpace(strings.TrimPrefix(s, verb))
	args, err := splitJSONArgs(rest)
	if err != nil {
		return Frame{}, errors.Wrapf(err, "decoding args for %s", verb)
	}
	return Frame{Verb: verb, Args: args}, nil
}

// splitJSONArgs decodes a space-separated sequence of JSON values (the
// line's remaining bytes, which is how arguments are packed) using a
// streaming decoder, so that e.g. a JSON object argument containing
// spaces doesn't get mis-split by strings.Fields.
func splitJSONArgs(s string) ([]json.RawMessage, error) {
	if s == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(s))
	var args []json.RawMessage
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		args = append(args, raw)
	}
	return args, nil
}

// WriteCommand encodes verb and args (each marshaled to JSON) as one
// command line.
func (c *Conn) WriteCommand(verb string, args ...interface{}) error {
	var buf bytes.Buffer
	buf.WriteString(verb)
	for _, a := range args {
		encoded, err := json.Marshal(a)
		if err != nil {
			return errors.Wrapf(err, "encoding argument for %s", verb)
		}
		buf.WriteByte(' ')
		buf.Write(encoded)
	}
	return c.writeLine(buf.Bytes())
}

// WriteData encodes one chunk as a DATA line.
func (c *Conn) WriteData(ref syncr.Ref, data []byte) error {
	line := fmt.Sprintf("DATA %s %s", ref, base64.StdEncoding.EncodeToString(data))
	return c.writeLine([]byte(line))
}

// WriteErr encodes a structured ERR frame.
func (c *Conn) WriteErr(body ErrBody) error {
	return c.WriteCommand("ERR", body)
}

func (c *Conn) writeLine(line []byte) error {
	if len(line) > MaxFrameBytes {
		return errors.Errorf("wire: frame of %d bytes exceeds MaxFrameBytes (%d)", len(line), MaxFrameBytes)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(line); err != nil {
		return errors.Wrap(err, "writing frame")
	}
	if _, err := c.w.Write([]byte("\n")); err != nil {
		return errors.Wrap(err, "writing frame terminator")
	}
	return nil
}
