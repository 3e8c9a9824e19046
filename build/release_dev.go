//go:build dev
// +build dev

package build

// Release is a string that helps the program determine the compilation mode.
const Release = "dev"

// DEBUG is a compile-time flag for enabling debug-only behavior, such as
// panicking on a Critical call.
const DEBUG = true
