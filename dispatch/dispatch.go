// Package dispatch implements the registry described in spec §4.5: it
// routes a decoded record to zero or more registered handlers keyed by
// (provider, type, version), supplying a normalized common header. Both
// wintrace (classic group/type and modern guid/id keys) and linuxtrace
// (perf event-type keys) use the same Registry; each simply picks its own
// Key encoding.
package dispatch

// A Key identifies one (provider, type, version) triple. Callers build
// Keys with the constructors appropriate to their trace kind
// (ClassicKey/ModernKey here, or linuxtrace's own helper); the Registry
// itself is agnostic to how a Key was produced, it just needs it to be
// comparable.
type Key struct {
	kind    string
	a, b, c uint64
	name    string
}

// ClassicKey builds a Windows classic (group, type, version) key.
func ClassicKey(group byte, typ byte, version uint16) Key {
	return Key{kind: "classic", a: uint64(group), b: uint64(typ), c: uint64(version)}
}

// ModernKey builds a Windows modern (guid, id, version) key. guid is
// passed as its two 64-bit halves for comparability.
func ModernKey(guidHi, guidLo uint64, id uint16, version uint16) Key {
	return Key{kind: "modern", a: guidHi ^ guidLo, b: uint64(id), c: uint64(version)}
}

// LinuxKey builds a Linux (event-type, 0, 0) key; Linux records carry no
// version field, so version is fixed at 0.
func LinuxKey(eventType uint32) Key {
	return Key{kind: "linux", a: uint64(eventType)}
}

// KeyKind groups keys for the purpose of selecting an "unknown" handler:
// one per (trace-kind, provider-key-shape) pair, per spec §4.5.
func (k Key) KeyKind() string { return k.kind }

// CommonHeader is the normalized header supplied to every handler,
// regardless of which trace-header shape or Linux record type produced it.
type CommonHeader struct {
	Key       Key
	Timestamp uint64
	Raw       []byte
}

// A Handler receives the common header and the record's user-data byte
// range. Handlers must not retain userData past the call; the buffer is
// borrowed (spec §9 buffer-ownership discussion).
type Handler func(header CommonHeader, userData []byte) error

// Registry maps Keys to an ordered list of Handlers, plus one "unknown"
// handler per KeyKind. It is not safe for concurrent registration and
// dispatch; build the registry fully before processing records (dispatch
// registries are per-observer instances, never global, per spec §9).
type Registry struct {
	handlers map[Key][]Handler
	unknown  map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Key][]Handler), unknown: make(map[string]Handler)}
}

// Register adds h as a handler for key. Multiple handlers may be
// registered for the same key; all run, in registration order.
func (r *Registry) Register(key Key, h Handler) {
	r.handlers[key] = append(r.handlers[key], h)
}

// RegisterUnknown sets the fallback handler invoked for any record whose
// key has no registered handler, scoped to one KeyKind.
func (r *Registry) RegisterUnknown(keyKind string, h Handler) {
	r.unknown[keyKind] = h
}

// Dispatch routes header (whose Key names the record) and userData to
// every handler registered for that key, or to the unknown handler for
// the key's kind if none is registered. All handler invocations for one
// event are run serially here and complete before Dispatch returns, per
// spec §5's ordering guarantee.
func (r *Registry) Dispatch(header CommonHeader, userData []byte) error {
	hs, ok := r.handlers[header.Key]
	if !ok || len(hs) == 0 {
		if h, ok := r.unknown[header.Key.KeyKind()]; ok {
			return h(header, userData)
		}
		return nil
	}
	for _, h := range hs {
		if err := h(header, userData); err != nil {
			return err
		}
	}
	return nil
}
