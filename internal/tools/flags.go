package tools

// Flags is an insertion-ordered set of command-line flags. An empty value
// renders as a bare flag.
type Flags struct {
	keys   []string
	values map[string]string
}

// NewFlags builds a flag set from alternating key/value pairs.
func NewFlags(pairs ...string) Flags {
	var f Flags
	for i := 0; i+1 < len(pairs); i += 2 {
		f.Set(pairs[i], pairs[i+1])
	}
	return f
}

// Set adds or replaces a flag, keeping its original position on replace.
func (f *Flags) Set(key, value string) {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// Get returns a flag's value.
func (f Flags) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Delete removes a flag if present.
func (f *Flags) Delete(key string) {
	if _, ok := f.values[key]; !ok {
		return
	}
	delete(f.values, key)
	for i, k := range f.keys {
		if k == key {
			f.keys = append(f.keys[:i], f.keys[i+1:]...)
			break
		}
	}
}

// Clone returns an independent copy.
func (f Flags) Clone() Flags {
	out := Flags{keys: append([]string(nil), f.keys...), values: make(map[string]string, len(f.values))}
	for k, v := range f.values {
		out.values[k] = v
	}
	return out
}

// Args renders the flags in insertion order.
func (f Flags) Args() []string {
	args := make([]string, 0, len(f.keys)*2)
	for _, k := range f.keys {
		args = append(args, k)
		if v := f.values[k]; v != "" {
			args = append(args, v)
		}
	}
	return args
}
