// Package design builds regression design matrices for segment models.
//
// A formula is a sum of terms:
//
//	1            intercept
//	x            linear trend in the time unit (ordinal days)
//	harm(x, k)   cosine and sine columns with k cycles per year
//
// For example "1 + x + harm(x, 1) + harm(x, 2)" yields six columns in the
// order 1, x, cos(1), sin(1), cos(2), sin(2). Formulas are parsed once and
// cached by their text; Build is a pure function of (dates, formula).
package design
