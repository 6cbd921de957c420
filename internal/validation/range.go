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
	"fmt"
	"time"
)

type rangeValidator struct {
	field      string
	value      int
	lowerBound int
	upperBound int
}

var _ Validator = (*rangeValidator)(nil)

// NewRangeValidator checks that value lies within [lowerBound, upperBound]
func NewRangeValidator(field string, value, lowerBound, upperBound int) Validator {
	return &rangeValidator{
		field:      field,
		value:      value,
		lowerBound: lowerBound,
		upperBound: upperBound,
	}
}

// Validate returns an error when the value is out of range
func (x *rangeValidator) Validate() error {
	if x.value < x.lowerBound || x.value > x.upperBound {
		return fmt.Errorf("the [%s] must be within [%d, %d], got %d", x.field, x.lowerBound, x.upperBound, x.value)
	}
	return nil
}

type positiveDurationValidator struct {
	field string
	value time.Duration
}

var _ Validator = (*positiveDurationValidator)(nil)

// NewPositiveDurationValidator checks that a duration is strictly positive
func NewPositiveDurationValidator(field string, value time.Duration) Validator {
	return &positiveDurationValidator{field: field, value: value}
}

// Validate returns an error when the duration is zero or negative
func (x *positiveDurationValidator) Validate() error {
	if x.value <= 0 {
		return fmt.Errorf("the [%s] must be positive", x.field)
	}
	return nil
}

type emptyStringValidator struct {
	field string
	value string
}

var _ Validator = (*emptyStringValidator)(nil)

// NewEmptyStringValidator checks that a string value is set
func NewEmptyStringValidator(field, value string) Validator {
	return &emptyStringValidator{field: field, value: value}
}

// Validate returns an error when the string is empty
func (x *emptyStringValidator) Validate() error {
	if x.value == "" {
		return fmt.Errorf("the [%s] is required", x.field)
	}
	return nil
}
