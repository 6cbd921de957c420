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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID        int32
	Name      string
	Hashes    map[string]string
	CreatedAt time.Time
	Offset    time.Duration
	Secret    []byte `cbor:"-"`
}

func TestCodec(t *testing.T) {
	c := Default()
	createdAt := time.Date(2024, 3, 1, 10, 30, 15, 123456789, time.UTC)
	in := &sample{
		ID:        7,
		Name:      "welcome",
		Hashes:    map[string]string{"en": "abc", "fr": "def"},
		CreatedAt: createdAt,
		Offset:    90 * time.Minute,
		Secret:    []byte("never on the wire"),
	}

	t.Run("Encode and Decode", func(t *testing.T) {
		payload, err := c.Encode(in)
		require.NoError(t, err)

		out := new(sample)
		require.NoError(t, c.Decode(payload, out))
		assert.Equal(t, in.ID, out.ID)
		assert.Equal(t, in.Hashes, out.Hashes)
		assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
		assert.Equal(t, in.Offset, out.Offset)
		assert.Nil(t, out.Secret)
	})
	t.Run("Decode rejects garbage", func(t *testing.T) {
		err := c.Decode([]byte("not a zstd frame"), new(sample))
		require.ErrorIs(t, err, ErrDecodeFailed)
	})
	t.Run("Unmarshal rejects garbage", func(t *testing.T) {
		err := c.Unmarshal([]byte{0xff, 0x00}, new(sample))
		require.ErrorIs(t, err, ErrDecodeFailed)
	})
	t.Run("Marshal rejects unsupported values", func(t *testing.T) {
		_, err := c.Marshal(make(chan int))
		require.ErrorIs(t, err, ErrEncodeFailed)
	})
}
