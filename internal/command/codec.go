// ABOUTME: CBOR body encoding for commands using fxamacker/cbor core deterministic mode.
// ABOUTME: Strict decoding: unknown keys, duplicate keys, trailing bytes, and bad variants all fail.

package command

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrDecode indicates bytes that are not a well-formed encoding of a command.
var ErrDecode = errors.New("malformed command")

// ErrEncode indicates a command that cannot be encoded. Only an invalid
// (zero-value) Command triggers it.
var ErrEncode = errors.New("cannot encode command")

// wireCommand is the CBOR shape of a command body. Pointers distinguish an
// absent field from an empty string so Identify{""} still round-trips.
type wireCommand struct {
	Kind     string  `cbor:"1,keyasint"`
	Hostname *string `cbor:"2,keyasint,omitempty"`
	Data     *string `cbor:"3,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("command: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxNestedLevels:   4,
	}.DecMode()
	if err != nil {
		panic("command: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode serializes c into a CBOR body (without the frame header).
func Encode(c Command) ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrEncode, c.kind)
	}

	w := wireCommand{Kind: c.kind.String()}
	switch c.kind {
	case KindIdentify:
		h := c.hostname
		w.Hostname = &h
	case KindCustom:
		d := c.data
		w.Data = &d
	}

	b, err := encMode.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return b, nil
}

// Decode parses a CBOR body produced by Encode.
func Decode(b []byte) (Command, error) {
	if len(b) == 0 {
		return Command{}, fmt.Errorf("%w: empty body", ErrDecode)
	}

	var w wireCommand
	if err := decMode.Unmarshal(b, &w); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	kind, ok := parseKind(w.Kind)
	if !ok {
		return Command{}, fmt.Errorf("%w: unknown kind %q", ErrDecode, w.Kind)
	}

	switch kind {
	case KindUpdate, KindPing:
		if w.Hostname != nil || w.Data != nil {
			return Command{}, fmt.Errorf("%w: %s carries no payload", ErrDecode, kind)
		}
		return Command{kind: kind}, nil
	case KindIdentify:
		if w.Hostname == nil || w.Data != nil {
			return Command{}, fmt.Errorf("%w: identify requires hostname only", ErrDecode)
		}
		return Identify(*w.Hostname), nil
	default:
		if w.Data == nil || w.Hostname != nil {
			return Command{}, fmt.Errorf("%w: custom requires data only", ErrDecode)
		}
		return Custom(*w.Data), nil
	}
}
