// Package main provides the entry point for the framelens CLI.
//
// framelens analyzes videos by sampling frames, running an object
// detection model over each frame, and aggregating per-class counts.
//
// Usage:
//
//	framelens serve
//	framelens analyze --url https://youtu.be/MNn9qKG2UFI --target car
//
// See --help for all available options.
package main

// main is the entry point for framelens.
func main() {
	Execute()
}
