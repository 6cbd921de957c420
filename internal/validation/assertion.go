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

import "fmt"

// assertionValidator fails with "the [field] requirement" when holds is false
type assertionValidator struct {
	field       string
	holds       bool
	requirement string
}

// NewAssertionValidator creates a Validator for a condition computed by the caller.
// requirement completes the sentence started by the field name, e.g. "must not be negative".
func NewAssertionValidator(field string, holds bool, requirement string) Validator {
	return &assertionValidator{field: field, holds: holds, requirement: requirement}
}

// Validate implements Validator
func (v assertionValidator) Validate() error {
	if v.holds {
		return nil
	}
	return fmt.Errorf("the [%s] %s", v.field, v.requirement)
}
