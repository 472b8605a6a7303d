// internal/protocol/codec.go
// JSON framing shared by every protocol version. Each version supplies its own
// tables translating parameters, results and events to the canonical types.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// FrameKind discriminates server to client frames.
type FrameKind string

const (
	FrameResult FrameKind = "result"
	FrameEvent  FrameKind = "event"
)

// Frame is one decoded server to client frame: either a result or an event.
type Frame struct {
	Kind   FrameKind
	Result RequestResult
	Event  Event
}

// Codec translates between canonical values and one version's wire schema.
// Implementations are stateless and safe for concurrent use.
type Codec interface {
	Version() Version
	// Correlated reports whether requests and results carry a request id.
	Correlated() bool
	// Supports reports whether the method is part of this version's catalog.
	Supports(MethodName) bool

	EncodeRequest(Request) ([]byte, error)
	// DecodeRequest returns a *RequestError in the protocol category when the
	// frame cannot be interpreted. The returned Request carries whatever
	// correlation id could be recovered.
	DecodeRequest([]byte) (Request, error)

	EncodeResult(RequestResult) ([]byte, error)
	EncodeEvent(Event) ([]byte, error)
	DecodeFrame([]byte) (Frame, error)
}

// ErrNotExpressible is returned when a value has no representation in a version.
var ErrNotExpressible = errors.New("protocol: value not expressible in this version")

type requestWire struct {
	Version      *Version        `json:"version,omitempty"`
	RequestID    *uint32         `json:"request_id,omitempty"`
	SessionToken string          `json:"session_token,omitempty"`
	Method       MethodName      `json:"method"`
	Params       json.RawMessage `json:"params,omitempty"`
}

type errorWire struct {
	Category Category `json:"category"`
	Reason   string   `json:"reason"`
	Message  string   `json:"message"`
}

type frameWire struct {
	Kind      FrameKind       `json:"kind"`
	RequestID *uint32         `json:"request_id,omitempty"`
	Method    MethodName      `json:"method,omitempty"`
	OK        json.RawMessage `json:"ok,omitempty"`
	Error     *errorWire      `json:"error,omitempty"`
	Event     EventKind       `json:"event,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type methodSpec struct {
	decodeParams func(json.RawMessage) (Method, error)
	encodeParams func(Method) (any, error)
	decodeOK     func(json.RawMessage) (MethodResult, error)
	encodeOK     func(MethodResult) (any, error)
}

type eventSpec struct {
	decode func(json.RawMessage) (Event, error)
	encode func(Event) (any, error)
}

// entry binds a method variant M with wire params P to its result variant R
// with wire payload O.
func entry[M Method, P any, R MethodResult, O any](
	decP func(P) (M, error), encP func(M) (P, error),
	decO func(O) (R, error), encO func(R) (O, error),
) methodSpec {
	return methodSpec{
		decodeParams: func(raw json.RawMessage) (Method, error) {
			var p P
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &p); err != nil {
					return nil, NewRequestError(MalformedRequest)
				}
			}
			return decP(p)
		},
		encodeParams: func(m Method) (any, error) {
			v, ok := m.(M)
			if !ok {
				return nil, fmt.Errorf("protocol: unexpected method type %T", m)
			}
			return encP(v)
		},
		decodeOK: func(raw json.RawMessage) (MethodResult, error) {
			var o O
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &o); err != nil {
					return nil, fmt.Errorf("protocol: decode result payload: %w", err)
				}
			}
			return decO(o)
		},
		encodeOK: func(res MethodResult) (any, error) {
			v, ok := res.(R)
			if !ok {
				return nil, fmt.Errorf("protocol: unexpected result type %T", res)
			}
			return encO(v)
		},
	}
}

func event[E Event, W any](dec func(W) (E, error), enc func(E) (W, error)) eventSpec {
	return eventSpec{
		decode: func(raw json.RawMessage) (Event, error) {
			var w W
			if err := json.Unmarshal(raw, &w); err != nil {
				return nil, fmt.Errorf("protocol: decode event payload: %w", err)
			}
			return dec(w)
		},
		encode: func(ev Event) (any, error) {
			v, ok := ev.(E)
			if !ok {
				return nil, fmt.Errorf("protocol: unexpected event type %T", ev)
			}
			return enc(v)
		},
	}
}

// malformed is the decodeParams failure for missing or out of range fields.
func malformed[M Method]() (M, error) {
	var zero M
	return zero, NewRequestError(MalformedRequest)
}

type codec struct {
	version    Version
	correlated bool
	methods    map[MethodName]methodSpec
	events     map[EventKind]eventSpec
}

func (c *codec) Version() Version  { return c.version }
func (c *codec) Correlated() bool  { return c.correlated }
func (c *codec) Supports(name MethodName) bool {
	_, ok := c.methods[name]
	return ok
}

func (c *codec) EncodeRequest(req Request) ([]byte, error) {
	if req.Method == nil {
		return nil, errors.New("protocol: request without method")
	}
	spec, ok := c.methods[req.Method.Name()]
	if !ok {
		return nil, fmt.Errorf("%w: method %s in v%d", ErrNotExpressible, req.Method.Name(), c.version)
	}
	params, err := spec.encodeParams(req.Method)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode params: %w", err)
	}
	version := c.version
	w := requestWire{
		Version:      &version,
		SessionToken: req.SessionToken,
		Method:       req.Method.Name(),
		Params:       raw,
	}
	if c.correlated {
		id := req.ID
		w.RequestID = &id
	}
	return json.Marshal(w)
}

func (c *codec) DecodeRequest(data []byte) (Request, error) {
	req := Request{Version: c.version}
	var w requestWire
	if err := json.Unmarshal(data, &w); err != nil {
		return req, NewRequestError(MalformedRequest)
	}
	if c.correlated && w.RequestID != nil {
		req.ID = *w.RequestID
	}
	if w.Version != nil && *w.Version != c.version {
		return req, NewRequestError(UnsupportedVersion)
	}
	if c.correlated && w.RequestID == nil {
		return req, NewRequestError(MalformedRequest)
	}
	spec, ok := c.methods[w.Method]
	if !ok {
		return req, NewRequestError(UnknownMethod)
	}
	m, err := spec.decodeParams(w.Params)
	if err != nil {
		return req, err
	}
	req.Method = m
	req.SessionToken = w.SessionToken
	return req, nil
}

func (c *codec) EncodeResult(res RequestResult) ([]byte, error) {
	w := frameWire{Kind: FrameResult, Method: res.Method}
	if c.correlated {
		id := res.ID
		w.RequestID = &id
	}
	switch {
	case res.Err != nil:
		w.Error = &errorWire{
			Category: res.Err.Category(),
			Reason:   res.Err.Reason.Code(),
			Message:  res.Err.Reason.Error(),
		}
	case res.Result != nil:
		spec, ok := c.methods[res.Result.Method()]
		if !ok {
			return nil, fmt.Errorf("%w: result %s in v%d", ErrNotExpressible, res.Result.Method(), c.version)
		}
		payload, err := spec.encodeOK(res.Result)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode result payload: %w", err)
		}
		w.Method = res.Result.Method()
		w.OK = raw
	default:
		return nil, errors.New("protocol: result without outcome")
	}
	return json.Marshal(w)
}

func (c *codec) EncodeEvent(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, errors.New("protocol: nil event")
	}
	spec, ok := c.events[ev.Kind()]
	if !ok {
		return nil, fmt.Errorf("%w: event %s in v%d", ErrNotExpressible, ev.Kind(), c.version)
	}
	payload, err := spec.encode(ev)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode event payload: %w", err)
	}
	return json.Marshal(frameWire{Kind: FrameEvent, Event: ev.Kind(), Data: raw})
}

func (c *codec) DecodeFrame(data []byte) (Frame, error) {
	var w frameWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Frame{}, fmt.Errorf("protocol: decode frame: %w", err)
	}
	switch w.Kind {
	case FrameResult:
		res := RequestResult{Method: w.Method}
		if w.RequestID != nil {
			res.ID = *w.RequestID
		}
		if w.Error != nil {
			reason, err := LookupReason(w.Error.Category, w.Error.Reason)
			if err != nil {
				return Frame{}, err
			}
			res.Err = NewRequestError(reason)
			return Frame{Kind: FrameResult, Result: res}, nil
		}
		spec, ok := c.methods[w.Method]
		if !ok {
			return Frame{}, fmt.Errorf("%w: result %s in v%d", ErrNotExpressible, w.Method, c.version)
		}
		out, err := spec.decodeOK(w.OK)
		if err != nil {
			return Frame{}, err
		}
		res.Result = out
		return Frame{Kind: FrameResult, Result: res}, nil
	case FrameEvent:
		spec, ok := c.events[w.Event]
		if !ok {
			return Frame{}, fmt.Errorf("%w: event %s in v%d", ErrNotExpressible, w.Event, c.version)
		}
		ev, err := spec.decode(w.Data)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Kind: FrameEvent, Event: ev}, nil
	default:
		return Frame{}, fmt.Errorf("protocol: unknown frame kind %q", w.Kind)
	}
}

var codecs = map[Version]Codec{
	V1: v1Codec,
	V2: v2Codec,
}

// CodecFor returns the codec for a version.
func CodecFor(v Version) (Codec, error) {
	if c, ok := codecs[v]; ok {
		return c, nil
	}
	return nil, NewRequestError(UnsupportedVersion)
}

// Sniff reads the version tag of a client frame. Frames without a tag predate
// versioning and are treated as V1.
// Numeric tags outside the Version range are unsupported, not malformed.
func Sniff(data []byte) (Version, error) {
	var tag struct {
		Version *json.Number `json:"version"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return 0, NewRequestError(MalformedRequest)
	}
	if tag.Version == nil {
		return V1, nil
	}
	n, err := tag.Version.Int64()
	if err != nil || n < 0 || n > math.MaxUint8 {
		return 0, NewRequestError(UnsupportedVersion)
	}
	return Version(n), nil
}

// DecodeAny sniffs the version of a client frame and decodes it with the
// matching codec. The returned codec is nil only when the version is unknown
// or the frame is not JSON.
func DecodeAny(data []byte) (Request, Codec, error) {
	v, err := Sniff(data)
	if err != nil {
		return Request{}, nil, err
	}
	c, err := CodecFor(v)
	if err != nil {
		return Request{Version: v}, nil, err
	}
	req, err := c.DecodeRequest(data)
	return req, c, err
}
