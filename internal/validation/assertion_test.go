/*
 * MIT License
 *
 * Copyright (c) 2022-2024  Arsene Tochemey Gandote
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

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssertionValidator(t *testing.T) {
	t.Run("With a holding condition", func(t *testing.T) {
		assert.NoError(t, NewAssertionValidator("Replicas", true, "must be odd").Validate())
	})
	t.Run("With a failing condition", func(t *testing.T) {
		err := NewAssertionValidator("Replicas", false, "must be odd").Validate()
		assert.EqualError(t, err, "the [Replicas] must be odd")
	})
	t.Run("With a requirement naming another field", func(t *testing.T) {
		err := NewAssertionValidator("Min", false, "must not exceed the [Max]").Validate()
		assert.EqualError(t, err, "the [Min] must not exceed the [Max]")
	})
}
