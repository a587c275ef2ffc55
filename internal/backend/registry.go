package backend

import (
	"fmt"
	"sort"
)

// Factory constructs a backend adapter for one kind.
type Factory func() Backend

// Registry holds registered backend kinds and their factories.
var Registry = map[Kind]Factory{}

// Register registers a backend kind with its factory.
func Register(kind Kind, factory Factory) {
	Registry[kind] = factory
}

// init registers the built-in backend kinds.
func init() {
	Register(KindClaudeCode, NewClaudeCode)
	Register(KindCodex, NewCodex)
	Register(KindAmp, func() Backend { return newLineBackend(ampSpec()) })
	Register(KindGemini, func() Backend { return newLineBackend(geminiSpec()) })
	Register(KindOpencode, func() Backend { return newLineBackend(opencodeSpec()) })
	Register(KindCursorAgent, NewCursorAgent)
	Register(KindQwenCode, func() Backend { return newLineBackend(qwenSpec()) })
	Register(KindCopilot, NewCopilot)
	Register(KindDroid, func() Backend { return newLineBackend(droidSpec()) })
	Register(KindClaudeHub, NewClaudeHub)
}

// Option adjusts a constructed backend. Options only apply to locally
// spawned kinds.
type Option func(b Backend)

// WithBinary replaces the default executable name, including the one
// the availability probe looks up.
func WithBinary(binary string) Option {
	return func(b Backend) {
		cb, ok := b.(*cliBackend)
		if !ok || binary == "" {
			return
		}
		cb.spec.binary = binary
		if cb.avail != nil {
			cb.avail.binary = binary
		}
	}
}

// New creates a backend adapter for the given kind.
func New(kind Kind, opts ...Option) (Backend, error) {
	factory, ok := Registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown backend kind %q", kind)
	}
	b := factory()
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// IsRegistered reports whether the kind has a registered factory.
func IsRegistered(kind Kind) bool {
	_, ok := Registry[kind]
	return ok
}

// RegisteredKinds returns all registered kinds in sorted order.
func RegisteredKinds() []Kind {
	kinds := make([]Kind, 0, len(Registry))
	for k := range Registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
