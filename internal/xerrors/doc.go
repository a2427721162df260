// Package xerrors attaches call-site information to errors so the logger can
// report where a failure was raised and where it was wrapped.
//
// New, Newf and Errorf capture a full stack. Wrap and Wrapf record a single
// program counter per layer. Both forms unwrap normally, so errors.Is and
// errors.As work through them.
package xerrors
