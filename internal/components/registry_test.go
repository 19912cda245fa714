package components

import (
	"testing"

	"github.com/afcore/dsp-audio-framework/internal/dispatch"
	"github.com/afcore/dsp-audio-framework/internal/registry"
	"github.com/afcore/dsp-audio-framework/internal/wire"
)

type stubComponent struct {
	id       registry.ClientID
	priority int
}

func (s *stubComponent) ID() registry.ClientID          { return s.id }
func (s *stubComponent) SetID(id registry.ClientID)     { s.id = id }
func (s *stubComponent) Priority() int                  { return s.priority }
func (s *stubComponent) SetPriority(p int)              { s.priority = p }
func (s *stubComponent) Exit() error                    { return nil }
func (s *stubComponent) Process() int                   { return 0 }
func (s *stubComponent) ProcessMessage(*wire.Descriptor) int { return 0 }

func TestBuildUnknownTypeIsExplicitError(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build("does_not_exist")
	if err == nil {
		t.Fatal("expected an error for an unregistered component type")
	}
}

func TestRegisterAndBuildRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.Register("pcm_gain", func() (dispatch.Component, error) { return &stubComponent{}, nil })

	c, err := r.Build("pcm_gain")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c == nil {
		t.Fatal("expected a built component")
	}
}

func TestTypesSorted(t *testing.T) {
	r := NewRegistry()
	r.Register("mixer", func() (dispatch.Component, error) { return &stubComponent{}, nil })
	r.Register("decoder", func() (dispatch.Component, error) { return &stubComponent{}, nil })

	types := r.Types()
	if len(types) != 2 || types[0] != "decoder" || types[1] != "mixer" {
		t.Errorf("expected sorted [decoder mixer], got %v", types)
	}
}
