package registry

import (
	"embed"
	"fmt"
	"sync"
)

//go:embed std/*.bp
var stdFS embed.FS

var (
	stdOnce sync.Once
	stdReg  *Registry
)

// Standard returns the built-in node library. It is loaded once and shared;
// a broken embedded library is a build defect and panics.
func Standard() *Registry {
	stdOnce.Do(func() {
		b := MustLoadStandard()
		reg, err := b.Build()
		if err != nil {
			panic(fmt.Sprintf("registry: build standard library: %v", err))
		}
		stdReg = reg
	})
	return stdReg
}

// NewStandardBuilder returns a builder preloaded with the built-in library,
// for hosts that add their own node files on top.
func NewStandardBuilder() (*Builder, error) {
	b := NewBuilder()
	if err := b.LoadFS(stdFS, "std/*.bp"); err != nil {
		return nil, err
	}
	return b, nil
}

// MustLoadStandard is like NewStandardBuilder but panics on error.
func MustLoadStandard() *Builder {
	b, err := NewStandardBuilder()
	if err != nil {
		panic(fmt.Sprintf("registry: load standard library: %v", err))
	}
	return b
}
