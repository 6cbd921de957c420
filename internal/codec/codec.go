/*
 * MIT License
 *
 * Copyright (c) 2022-2025  Arsene Tochemey Gandote
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package codec

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrEncodeFailed is returned when a value cannot be encoded
	ErrEncodeFailed = errors.New("codec: encode failed")
	// ErrDecodeFailed is returned when a payload cannot be decoded
	ErrDecodeFailed = errors.New("codec: decode failed")
)

var (
	encOptions = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}
	decOptions = cbor.DecOptions{
		MaxNestedLevels: 64,
		IndefLength:     cbor.IndefLengthForbidden,
		UTF8:            cbor.UTF8DecodeInvalid,
	}
)

// Codec turns values into compact binary payloads using CBOR and zstd.
// A Codec is safe for concurrent use.
type Codec struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// New creates a Codec
func New() (*Codec, error) {
	encMode, err := encOptions.EncMode()
	if err != nil {
		return nil, err
	}

	decMode, err := decOptions.DecMode()
	if err != nil {
		return nil, err
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}

	decoder, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(64<<20))
	if err != nil {
		return nil, err
	}

	return &Codec{
		encMode: encMode,
		decMode: decMode,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// Marshal encodes v as CBOR
func (c *Codec) Marshal(v any) ([]byte, error) {
	bytea, err := c.encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	return bytea, nil
}

// Unmarshal decodes CBOR data into v
func (c *Codec) Unmarshal(data []byte, v any) error {
	if err := c.decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	return nil
}

// Encode marshals v and compresses the result
func (c *Codec) Encode(v any) ([]byte, error) {
	bytea, err := c.Marshal(v)
	if err != nil {
		return nil, err
	}
	return c.encoder.EncodeAll(bytea, make([]byte, 0, len(bytea))), nil
}

// Decode decompresses data and unmarshals the result into v
func (c *Codec) Decode(data []byte, v any) error {
	bytea, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	return c.Unmarshal(bytea, v)
}

var defaultCodec = mustNew()

func mustNew() *Codec {
	c, err := New()
	if err != nil {
		panic(err)
	}
	return c
}

// Default returns the process-wide Codec
func Default() *Codec {
	return defaultCodec
}
