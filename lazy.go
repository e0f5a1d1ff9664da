// Lazy Record: on-demand field materialisation from the Cache at a given
// (file, offset), restricted to binary Formats since only those have
// computable field widths (spec.md §4.4).
package ghcatalog

// Lazy reads and writes fields of one binary-format record through a
// Cache, one field at a time, caching offsets as it goes so repeated
// access never rescans from the base offset. A Lazy borrows its file,
// Cache, and Format; it owns none of them.
type Lazy struct {
	cache  *Cache
	file   FileID
	base   int64
	format *Format

	values []Value
	loaded []bool
	dirty  []bool
	offset []int64 // offset[i] is field i's start; offset[len(Fields)] is the record's end
}

// NewLazy constructs a Lazy over format at (file, base). Every Format in
// this catalog doubles as a binary layout (format.go computes field
// widths the same way regardless of Separator), so NewLazy does not
// inspect Separator; it returns ErrLazyRequiresBinary only for a Format
// with no Fields.
func NewLazy(cache *Cache, file FileID, base int64, format *Format) (*Lazy, error) {
	if len(format.Fields) == 0 {
		return nil, ErrLazyRequiresBinary
	}
	l := &Lazy{cache: cache, format: format}
	l.retarget(file, base)
	return l, nil
}

// retarget resets the Lazy to read a new record, releasing any prior
// materialised state.
func (l *Lazy) retarget(file FileID, base int64) {
	n := len(l.format.Fields)
	l.file = file
	l.base = base
	l.values = make([]Value, n)
	l.loaded = make([]bool, n)
	l.dirty = make([]bool, n)
	l.offset = make([]int64, n+1)
	l.offset[0] = base
	for i := 1; i <= n; i++ {
		l.offset[i] = -1 // not yet known
	}
}

// rebind resets loaded/dirty state but keeps (file, base), then seeds the
// Lazy with an already-materialised record (e.g. one just parsed from
// CSV), marking every field loaded but none dirty, so Get returns the
// seeded values without reading the Cache and Flush writes nothing until
// a field is Set.
func (l *Lazy) rebind(rec Record) {
	l.retarget(l.file, l.base)
	copy(l.values, rec)
	for i := range l.loaded {
		l.loaded[i] = true
	}
}

// offsetOf returns field i's start offset, advancing the running offset
// table (and recursively materialising any preceding length field) as
// needed.
func (l *Lazy) offsetOf(i int) (int64, error) {
	if l.offset[i] >= 0 {
		return l.offset[i], nil
	}
	k := i
	for l.offset[k] < 0 {
		k--
	}
	for j := k; j < i; j++ {
		size, err := l.fieldSize(j)
		if err != nil {
			return 0, err
		}
		l.offset[j+1] = l.offset[j] + int64(size)
	}
	return l.offset[i], nil
}

// fieldSize returns field i's byte width, materialising its paired length
// field first if i is variable-length.
func (l *Lazy) fieldSize(i int) (int, error) {
	fd := l.format.Fields[i]
	if w := fixedWidth(fd.Kind); w > 0 {
		return w, nil
	}
	lenIdx := l.format.lengthFieldOf(i)
	if lenIdx < 0 {
		return 0, nil
	}
	lengthVal, err := l.Get(lenIdx)
	if err != nil {
		return 0, err
	}
	return l.format.sizeFromLength(i, lengthVal.Int32), nil
}

// Get returns field i, materialising it (and any preceding length field)
// from the Cache on first access.
func (l *Lazy) Get(i int) (Value, error) {
	if l.loaded[i] {
		return l.values[i], nil
	}
	off, err := l.offsetOf(i)
	if err != nil {
		return Value{}, err
	}
	fd := l.format.Fields[i]

	var v Value
	switch fd.Kind {
	case KindBool:
		b, err := l.cache.GetStr(l.file, off, 1)
		if err != nil {
			return Value{}, err
		}
		v = Value{Bool: b[0] != 0}
	case KindEnum:
		b, err := l.cache.GetStr(l.file, off, 1)
		if err != nil {
			return Value{}, err
		}
		v = Value{Int32: int32(b[0])}
	case KindInt32, KindTimestamp:
		n, err := l.cache.GetInt(l.file, off)
		if err != nil {
			return Value{}, err
		}
		v = Value{Int32: n}
	case KindFloat64:
		raw, err := l.cache.GetStr(l.file, off, 8)
		if err != nil {
			return Value{}, err
		}
		v = Value{Float64: bitsFloat(getUint64BE(raw))}
	case KindString, KindNullableString:
		lenIdx := l.format.lengthFieldOf(i)
		lengthVal, err := l.Get(lenIdx)
		if err != nil {
			return Value{}, err
		}
		if fd.Kind == KindNullableString && lengthVal.Int32 < 0 {
			v = Value{Valid: false}
			break
		}
		raw, err := l.cache.GetStr(l.file, off, int(lengthVal.Int32))
		if err != nil {
			return Value{}, err
		}
		v = Value{Str: string(raw), Valid: true}
	case KindInt32List:
		lenIdx := l.format.lengthFieldOf(i)
		lengthVal, err := l.Get(lenIdx)
		if err != nil {
			return Value{}, err
		}
		n := int(lengthVal.Int32)
		raw, err := l.cache.GetStr(l.file, off, n*4)
		if err != nil {
			return Value{}, err
		}
		list := make([]int32, n)
		for k := 0; k < n; k++ {
			list[k] = int32(getUint32BE(raw[k*4:]))
		}
		v = Value{List: list}
	}

	l.values[i] = v
	l.loaded[i] = true
	return v, nil
}

// Set marks field i loaded and dirty with the given value, for later
// Flush. If i was never read via Get, any width-determining fields it
// depends on are not implicitly fixed up — callers must set a variable
// field's paired length field to a consistent value themselves.
func (l *Lazy) Set(i int, v Value) {
	l.values[i] = v
	l.loaded[i] = true
	l.dirty[i] = true
}

// OffsetOf exposes field i's start offset (materialising the offset
// table up to it), used by indexes keyed on an internal field position
// (e.g. a repo's language bytes).
func (l *Lazy) OffsetOf(i int) (int64, error) {
	return l.offsetOf(i)
}

// OffsetAfter returns the record's total byte length from base, for
// sequential scans.
func (l *Lazy) OffsetAfter() (int64, error) {
	n := len(l.format.Fields)
	off, err := l.offsetOf(n - 1)
	if err != nil {
		return 0, err
	}
	size, err := l.fieldSize(n - 1)
	if err != nil {
		return 0, err
	}
	return off + int64(size), nil
}

// Flush writes back every dirty fixed-width field at its known offset.
// Dirty variable-length fields (strings, lists) are not written and stay
// dirty.
func (l *Lazy) Flush() error {
	for i, dirty := range l.dirty {
		if !dirty {
			continue
		}
		off, err := l.offsetOf(i)
		if err != nil {
			return err
		}
		buf := make([]byte, 0, 8)
		fd := l.format.Fields[i]
		switch fd.Kind {
		case KindBool:
			if l.values[i].Bool {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case KindEnum:
			buf = append(buf, byte(l.values[i].Int32))
		case KindInt32, KindTimestamp:
			var b [4]byte
			putUint32BE(b[:], uint32(l.values[i].Int32))
			buf = append(buf, b[:]...)
		case KindFloat64:
			var b [8]byte
			putUint64BE(b[:], floatBits(l.values[i].Float64))
			buf = append(buf, b[:]...)
		default:
			continue // variable-length fields are not rewritten in place
		}
		if err := l.cache.SetStr(l.file, off, buf); err != nil {
			return err
		}
		l.dirty[i] = false
	}
	return nil
}
