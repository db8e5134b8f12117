package wire

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DataPreludeSize is the number of flag bytes a device prepends to the
// XML body of incoming data frames. Their meaning is not documented;
// the client skips them.
const DataPreludeSize = 4

// Codec errors.
var (
	// ErrEncode indicates a request could not be encoded. The request
	// was never sent.
	ErrEncode = errors.New("message encoding failed")

	// ErrDecode indicates an incoming message could not be decoded.
	// Fatal to that single message only; the session continues.
	ErrDecode = errors.New("message decoding failed")
)

// EncodeRequest encodes a request into a data-frame body.
// The request is validated against the path registry: unknown paths,
// method mismatches, and arguments outside the path's domain fail.
func EncodeRequest(r *Request) ([]byte, error) {
	info, ok := pathRegistry[r.Path]
	if !ok {
		return nil, fmt.Errorf("%w: unknown path %q", ErrEncode, r.Path)
	}
	if r.Method != info.method {
		return nil, fmt.Errorf("%w: path %q requires %s", ErrEncode, r.Path, info.method)
	}

	switch info.arg {
	case ArgNone:
		if r.Arg != "" {
			return nil, fmt.Errorf("%w: path %q takes no argument", ErrEncode, r.Path)
		}
	case ArgBool:
		if r.Arg != "true" && r.Arg != "false" {
			return nil, fmt.Errorf("%w: path %q requires a boolean argument, got %q", ErrEncode, r.Path, r.Arg)
		}
	case ArgInt:
		n, err := strconv.Atoi(r.Arg)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: path %q requires a non-negative integer argument, got %q", ErrEncode, r.Path, r.Arg)
		}
	}

	var buf bytes.Buffer
	buf.WriteString(string(r.Method))
	buf.WriteByte(' ')
	buf.WriteString(r.Path)
	if r.Arg != "" {
		buf.WriteString("?arg=")
		buf.WriteString(r.Arg)
	}
	return buf.Bytes(), nil
}

// ParseRequest decodes a request line back into a Request.
// The inverse of EncodeRequest; device-side implementations and tests
// use it to interpret incoming request bodies.
func ParseRequest(body []byte) (*Request, error) {
	line := string(body)
	method, rest, ok := strings.Cut(line, " ")
	if !ok {
		return nil, fmt.Errorf("%w: no method separator in %q", ErrDecode, line)
	}
	if method != string(MethodGet) && method != string(MethodSet) {
		return nil, fmt.Errorf("%w: unknown method %q", ErrDecode, method)
	}
	path, arg, _ := strings.Cut(rest, "?arg=")
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in %q", ErrDecode, line)
	}
	return &Request{Method: Method(method), Path: path, Arg: arg}, nil
}

// DecodeMessage decodes the body of an incoming data frame into a
// Message. The body starts with the DataPreludeSize flag bytes,
// followed by an answer or notify XML document.
//
// Unknown elements and attributes inside a known document are ignored.
// A missing path attribute, an unknown root element, or broken XML is
// an error for this message only.
func DecodeMessage(body []byte) (*Message, error) {
	if len(body) <= DataPreludeSize {
		return nil, fmt.Errorf("%w: body too short (%d bytes)", ErrDecode, len(body))
	}
	doc := body[DataPreludeSize:]

	root, err := rootElement(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	switch root {
	case "answer":
		var a Answer
		if err := xml.Unmarshal(doc, &a); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if a.Path == "" {
			return nil, fmt.Errorf("%w: answer without path attribute", ErrDecode)
		}
		return &Message{Kind: KindAnswer, Path: a.Path, Answer: &a}, nil

	case "notify":
		var n Notify
		if err := xml.Unmarshal(doc, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if n.Path == "" {
			return nil, fmt.Errorf("%w: notify without path attribute", ErrDecode)
		}
		return &Message{Kind: KindNotify, Path: n.Path}, nil

	default:
		return nil, fmt.Errorf("%w: unknown document root %q", ErrDecode, root)
	}
}

// rootElement returns the name of the first XML element in doc.
func rootElement(doc []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

// EncodeAnswer renders an answer document prefixed with the data
// prelude, producing a data-frame body as a device would send it.
// Device-side implementations and tests use this; the client itself
// only decodes answers.
func EncodeAnswer(a *Answer) ([]byte, error) {
	if a.Path == "" {
		return nil, fmt.Errorf("%w: answer without path", ErrEncode)
	}
	doc, err := xml.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	body := make([]byte, DataPreludeSize, DataPreludeSize+len(doc))
	return append(body, doc...), nil
}

// EncodeNotify renders a notify document prefixed with the data
// prelude, producing a data-frame body as a device would send it.
func EncodeNotify(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: notify without path", ErrEncode)
	}
	doc, err := xml.Marshal(&Notify{Path: path})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	body := make([]byte, DataPreludeSize, DataPreludeSize+len(doc))
	return append(body, doc...), nil
}
