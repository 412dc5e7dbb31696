// Package main provides the tara operator CLI.
//
// Usage:
//
//	tara digitize <path>...
//	tara scan <path>...
//	tara spellcheck <path>...
//	tara enqueue <path>...
//	tara dict merge -o <out> <file>...
package main

func main() {
	Execute()
}
