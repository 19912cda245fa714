//go:build !portaudio

// Package hostaudio is the no-op fallback built without the portaudio
// tag, so callers can invoke Register unconditionally regardless of how
// the binary was built.
package hostaudio

import afcore "github.com/afcore/dsp-audio-framework"

// Register does nothing in builds without the portaudio tag.
func Register(device *afcore.Device) {}
