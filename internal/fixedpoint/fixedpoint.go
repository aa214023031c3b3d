/*
 * kernelcore - 17.14 fixed-point arithmetic for scheduler priority math.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package fixedpoint implements the 17.14 signed fixed-point format used by
// the MLFQ scheduler for load average and recent-cpu bookkeeping.
package fixedpoint

// Fixed is a 17.14 signed fixed-point value: 17 integer bits, 14 fraction
// bits, stored in the low 31 bits of an int32. P+Q == 31.
type Fixed int32

const fraction = 1 << 14 // FP_Q = 14

// FromInt converts an integer to fixed-point, exactly.
func FromInt(n int) Fixed {
	return Fixed(n * fraction)
}

// ToIntZero truncates toward zero.
func (f Fixed) ToIntZero() int {
	return int(f) / fraction
}

// ToIntNearest rounds to the nearest integer, ties away from zero.
func (f Fixed) ToIntNearest() int {
	if f >= 0 {
		return int(f+fraction/2) / fraction
	}
	return int(f-fraction/2) / fraction
}

// Add adds two fixed-point values.
func (f Fixed) Add(g Fixed) Fixed {
	return f + g
}

// Sub subtracts g from f.
func (f Fixed) Sub(g Fixed) Fixed {
	return f - g
}

// AddInt adds an integer to a fixed-point value, exactly.
func (f Fixed) AddInt(n int) Fixed {
	return f + Fixed(n*fraction)
}

// SubInt subtracts an integer from a fixed-point value, exactly.
func (f Fixed) SubInt(n int) Fixed {
	return f - Fixed(n*fraction)
}

// Mul multiplies two fixed-point values, promoting to a 64-bit
// intermediate so the product does not overflow before rescaling.
func (f Fixed) Mul(g Fixed) Fixed {
	return Fixed((int64(f) * int64(g)) / fraction)
}

// Div divides f by g, promoting to a 64-bit intermediate.
func (f Fixed) Div(g Fixed) Fixed {
	return Fixed((int64(f) * fraction) / int64(g))
}

// MulInt multiplies a fixed-point value by an integer.
func (f Fixed) MulInt(n int) Fixed {
	return f * Fixed(n)
}

// DivInt divides a fixed-point value by an integer.
func (f Fixed) DivInt(n int) Fixed {
	return f / Fixed(n)
}
