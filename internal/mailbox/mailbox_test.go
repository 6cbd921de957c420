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

package mailbox

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnbounded(t *testing.T) {
	t.Run("preserves FIFO order", func(t *testing.T) {
		m := NewUnbounded[int]()
		require.True(t, m.IsEmpty())
		for i := range 10 {
			require.True(t, m.Enqueue(i))
		}
		assert.EqualValues(t, 10, m.Len())

		for i := range 10 {
			v, ok := m.Dequeue()
			require.True(t, ok)
			assert.Equal(t, i, v)
		}
		_, ok := m.Dequeue()
		assert.False(t, ok)
		assert.True(t, m.IsEmpty())
	})
	t.Run("with concurrent producers", func(t *testing.T) {
		m := NewUnbounded[int]()
		const producers, perProducer = 8, 1000
		var wg sync.WaitGroup
		for p := range producers {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				for i := range perProducer {
					m.Enqueue(p*perProducer + i)
				}
			}(p)
		}
		wg.Wait()

		seen := make(map[int]struct{}, producers*perProducer)
		for {
			v, ok := m.Dequeue()
			if !ok {
				break
			}
			seen[v] = struct{}{}
		}
		assert.Len(t, seen, producers*perProducer)
	})
	t.Run("rejects messages once disposed", func(t *testing.T) {
		m := NewUnbounded[string]()
		require.True(t, m.Enqueue("a"))
		m.Dispose()
		assert.False(t, m.Enqueue("b"))

		v, ok := m.Dequeue()
		require.True(t, ok)
		assert.Equal(t, "a", v)
	})
}
