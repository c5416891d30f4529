package template

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/koios/snapshot-processor/internal/states"
	"go.uber.org/zap"
)

func newTestRenderer() *Renderer {
	r := NewRenderer(states.NewStaticStore(map[string]string{
		"sensor.temperature": "21.5",
		"light.porch":        "on",
	}), zap.NewNop())
	r.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC) }
	return r
}

func TestRender(t *testing.T) {
	r := newTestRenderer()

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"plain text", "no templates here", "no templates here"},
		{"state lookup", "{{ states('sensor.temperature') }}°C", "21.5°C"},
		{"multiple segments", "{{ states('light.porch') }} / {{ states('sensor.temperature') }}", "on / 21.5"},
		{"unknown entity", "{{ states('sensor.missing') }}", "unknown"},
		{"is_state", "{{ is_state('light.porch', 'on') }}", "True"},
		{"conditional", "{{ 'Lit' if is_state('light.porch', 'on') else 'Dark' }}", "Lit"},
		{"arithmetic", "{{ float(states('sensor.temperature')) * 2 }}", "43.0"},
		{"none renders empty", "[{{ None }}]", "[]"},
		{"empty expression", "a{{ }}b", "ab"},
		{"now", "{{ now.year }}", "2024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Render(context.Background(), tt.tmpl)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestRender_Errors(t *testing.T) {
	r := newTestRenderer()

	for name, tmpl := range map[string]string{
		"unterminated":    "{{ states('light.porch')",
		"syntax error":    "{{ states( }}",
		"undefined name":  "{{ nope }}",
		"wrong arg count": "{{ is_state('light.porch') }}",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := r.Render(context.Background(), tmpl); !errors.Is(err, ErrTemplate) {
				t.Errorf("err = %v, want ErrTemplate", err)
			}
		})
	}
}

func TestRender_StepLimit(t *testing.T) {
	r := newTestRenderer()
	r.maxSteps = 1000

	_, err := r.Render(context.Background(), "{{ len([x for x in range(100000)]) }}")
	if !errors.Is(err, ErrTemplate) {
		t.Errorf("err = %v, want ErrTemplate for runaway expression", err)
	}
}

func TestRender_NoStateSource(t *testing.T) {
	r := NewRenderer(nil, zap.NewNop())

	got, err := r.Render(context.Background(), "{{ states('light.porch') }}")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got != "unknown" {
		t.Errorf("got %q, want unknown", got)
	}
}
