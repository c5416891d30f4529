package overlay

import (
	"fmt"
	"sync"
	"time"

	"github.com/lestrrat-go/strftime"
)

// compiled datetime layouts, keyed by layout string
var layouts sync.Map

// microseconds is %f, zero-padded to six digits
var microseconds = strftime.AppendFunc(func(b []byte, t time.Time) []byte {
	return append(b, fmt.Sprintf("%06d", t.Nanosecond()/1000)...)
})

// Strftime formats t using C-style % directives, plus %f for microseconds
func Strftime(t time.Time, layout string) (string, error) {
	if layout == "" {
		return "", nil
	}

	p, err := compileLayout(layout)
	if err != nil {
		return "", err
	}
	return p.FormatString(t), nil
}

func compileLayout(layout string) (*strftime.Strftime, error) {
	if p, ok := layouts.Load(layout); ok {
		return p.(*strftime.Strftime), nil
	}

	p, err := strftime.New(layout, strftime.WithSpecification('f', microseconds))
	if err != nil {
		return nil, fmt.Errorf("invalid datetime format %q: %w", layout, err)
	}
	layouts.Store(layout, p)
	return p, nil
}
