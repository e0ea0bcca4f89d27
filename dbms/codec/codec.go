// Package codec converts keys and values to and from the single-token text
// form used by the value log and the snapshot file.
//
// Every encoding is one non-empty token containing no whitespace, no '|'
// and no ','. That keeps a token intact under whitespace tokenization, lets
// the snapshot use '|' as its field separator and lets Slice compose element
// tokens with ','.
package codec

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	_ Codec[int64]    = Int64{}
	_ Codec[float64]  = Float64{}
	_ Codec[string]   = String{}
	_ Codec[[]string] = Tuple
)

// Codec encodes a T to a token and decodes it back.
type Codec[T any] interface {
	Encode(v T) string
	Decode(token string) (T, error)
}

type Int64 struct{}

func (Int64) Encode(v int64) string {
	return strconv.FormatInt(v, 10)
}

func (Int64) Decode(token string) (int64, error) {
	v, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "codec: decode int64 %q", token)
	}
	return v, nil
}

type Float64 struct{}

func (Float64) Encode(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (Float64) Decode(token string) (float64, error) {
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "codec: decode float64 %q", token)
	}
	return v, nil
}

// String percent-escapes every byte that would break a token.
type String struct{}

const emptyString = `""`

func (String) Encode(v string) string {
	if v == "" {
		return emptyString
	}
	return escape(v)
}

func (String) Decode(token string) (string, error) {
	if token == emptyString {
		return "", nil
	}
	return unescape(token)
}

// Slice encodes a sequence by joining its element tokens with ','.
type Slice[E any] struct {
	Elem Codec[E]
}

const emptySlice = "[]"

func (s Slice[E]) Encode(v []E) string {
	if len(v) == 0 {
		return emptySlice
	}
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = s.Elem.Encode(e)
	}
	return strings.Join(parts, ",")
}

func (s Slice[E]) Decode(token string) ([]E, error) {
	if token == emptySlice {
		return []E{}, nil
	}
	parts := strings.Split(token, ",")
	out := make([]E, len(parts))
	for i, p := range parts {
		e, err := s.Elem.Decode(p)
		if err != nil {
			return nil, errors.Wrapf(err, "codec: element %d", i)
		}
		out[i] = e
	}
	return out, nil
}

// Tuple is the codec for composite keys made of string columns.
var Tuple = Slice[string]{Elem: String{}}
