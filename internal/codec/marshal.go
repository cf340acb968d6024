package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Format selects the wire encoding of documents at the boundary.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// ParseFormat validates a configured encoding name. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCBOR:
		return FormatCBOR, nil
	default:
		return "", fmt.Errorf("unknown encoding %q", s)
	}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Text keys so commands decode into a Document.
	decOpts := cbor.DecOptions{
		DupMapKey:      cbor.DupMapKeyQuiet,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal serializes an envelope or document in the given format.
func Marshal(v any, f Format) ([]byte, error) {
	switch f {
	case FormatCBOR:
		return encMode.Marshal(v)
	case FormatJSON, "":
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("unknown encoding %q", f)
	}
}

// UnmarshalDocument parses an input document. Numbers in JSON input are kept
// as json.Number so integer fields survive intact.
func UnmarshalDocument(data []byte, f Format) (Document, error) {
	doc := Document{}
	switch f {
	case FormatCBOR:
		if err := decMode.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	case FormatJSON, "":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	default:
		return nil, fmt.Errorf("unknown encoding %q", f)
	}
	return doc, nil
}

// ToDocument flattens an envelope into its generic key-value form, as seen by
// consumers that do not know the concrete record types.
func ToDocument(env Envelope) (Document, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", env.Type(), err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", env.Type(), err)
	}
	return doc, nil
}
