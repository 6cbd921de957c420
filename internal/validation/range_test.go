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

package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRangeValidator(t *testing.T) {
	t.Run("With value inside the range", func(t *testing.T) {
		assert.NoError(t, NewRangeValidator("ratio", 500, 0, 1000).Validate())
		assert.NoError(t, NewRangeValidator("ratio", 0, 0, 1000).Validate())
		assert.NoError(t, NewRangeValidator("ratio", 1000, 0, 1000).Validate())
	})
	t.Run("With value outside the range", func(t *testing.T) {
		err := NewRangeValidator("ratio", 1001, 0, 1000).Validate()
		assert.EqualError(t, err, "the [ratio] must be within [0, 1000], got 1001")
		assert.Error(t, NewRangeValidator("ratio", -1, 0, 1000).Validate())
	})
}

func TestPositiveDurationValidator(t *testing.T) {
	assert.NoError(t, NewPositiveDurationValidator("interval", time.Second).Validate())
	assert.EqualError(t, NewPositiveDurationValidator("interval", 0).Validate(), "the [interval] must be positive")
	assert.Error(t, NewPositiveDurationValidator("interval", -time.Second).Validate())
}
