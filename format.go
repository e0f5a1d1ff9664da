// Record Format: a runtime descriptor of a tuple type, used uniformly to
// parse/validate CSV-style textual records and to serialise/deserialise
// the compact binary form written to the entity record files. Query
// argument lines are parsed by ParseQuery directly, not through a Format.
//
// A descriptor never duplicates parse/write code per entity: adding a new
// record type is declaring its field kinds once. The binary width of a
// variable-length field (string / id-list) is not stored inline with a
// length prefix the way a naive codec would — it is read from a *paired*
// length field that the descriptor places immediately before it, mirroring
// the teacher's fixed-prefix, positional field layout (record.go) applied
// to a generic schema instead of one hardcoded struct.
package ghcatalog

import (
	"fmt"
	"strings"
)

// Kind identifies a field's type. Every Kind has both a binary and a
// textual representation.
type Kind int

const (
	KindBool Kind = iota
	KindEnum
	KindInt32
	KindFloat64
	KindString         // non-null utf-8 string
	KindNullableString // utf-8 string or null
	KindInt32List      // list of int32, e.g. "[1, 2, 3]"
	KindTimestamp      // packed date or date-time
)

// fixedWidth returns the binary width in bytes for kinds that have one, or
// 0 for variable-length kinds whose width comes from a paired length
// field.
func fixedWidth(k Kind) int {
	switch k {
	case KindBool, KindEnum:
		return 1
	case KindInt32, KindTimestamp:
		return 4
	case KindFloat64:
		return 8
	default:
		return 0
	}
}

func (k Kind) variable() bool {
	return k == KindString || k == KindNullableString || k == KindInt32List
}

// FieldDef describes one field of a Format.
type FieldDef struct {
	Name       string
	Kind       Kind
	EnumLabels []string // only meaningful for KindEnum

	// derived marks a synthetic length field injected immediately before a
	// variable-length field: it is never read as its own CSV token; its
	// value is computed once the paired field's token has been parsed,
	// and is the field that is physically serialised in binary form.
	derived bool

	// pairedWith is the length-field index for a variable-length field, or
	// the variable-length field index for its length field. -1 when not
	// applicable.
	pairedWith int
}

// Value holds one field's parsed value. Only the member matching the
// field's Kind is meaningful.
type Value struct {
	Bool    bool
	Int32   int32
	Float64 float64
	Str     string
	Valid   bool // for KindNullableString: true unless the value is null
	List    []int32
}

// Record is a parsed tuple: one Value per Format.Fields, positionally
// addressed — the Go analogue of the spec's "displacement into a plain
// record", since Go has no portable raw struct-offset story for a
// dynamically-built schema.
type Record []Value

// Format is an immutable, cheaply-copied descriptor of a tuple type. The
// same Format drives CSV parsing (via Separator) and binary (de)serialise
// (via Fields/fixedWidth), per spec.md §4.1.
type Format struct {
	Name      string
	Fields    []FieldDef
	Separator byte // token separator for the textual form
}

// NewFormat starts building a Format with the given CSV separator.
func NewFormat(name string, separator byte) *Format {
	return &Format{Name: name, Separator: separator}
}

func (f *Format) add(def FieldDef) *Format {
	def.pairedWith = -1
	f.Fields = append(f.Fields, def)
	return f
}

// Bool appends a fixed-width boolean field ("True"/"False" in text).
func (f *Format) Bool(name string) *Format { return f.add(FieldDef{Name: name, Kind: KindBool}) }

// Enum appends a fixed-width enumerated field with the given textual
// labels (index 0 is the binary value 0, and so on).
func (f *Format) Enum(name string, labels []string) *Format {
	return f.add(FieldDef{Name: name, Kind: KindEnum, EnumLabels: labels})
}

// Int32 appends a fixed-width 32-bit integer field.
func (f *Format) Int32(name string) *Format { return f.add(FieldDef{Name: name, Kind: KindInt32}) }

// Float64 appends a fixed-width 64-bit float field.
func (f *Format) Float64(name string) *Format {
	return f.add(FieldDef{Name: name, Kind: KindFloat64})
}

// Timestamp appends a fixed-width packed date/date-time field.
func (f *Format) Timestamp(name string) *Format {
	return f.add(FieldDef{Name: name, Kind: KindTimestamp})
}

// variableField appends a synthetic length field (never itself a CSV
// token) immediately followed by the variable-length field, and records
// the pairing both ways.
func (f *Format) variableField(name string, kind Kind) *Format {
	lenIdx := len(f.Fields)
	f.Fields = append(f.Fields, FieldDef{Name: name + "_len", Kind: KindInt32, derived: true, pairedWith: lenIdx + 1})
	fieldIdx := len(f.Fields)
	f.Fields = append(f.Fields, FieldDef{Name: name, Kind: kind, pairedWith: lenIdx})
	return f
}

// String appends a non-null string field, preceded by its synthetic
// binary length field.
func (f *Format) String(name string) *Format { return f.variableField(name, KindString) }

// NullableString appends a nullable string field. Its length field stores
// -1 for null, or the byte length otherwise.
func (f *Format) NullableString(name string) *Format {
	return f.variableField(name, KindNullableString)
}

// Int32List appends an int32 list field, preceded by its synthetic count
// field.
func (f *Format) Int32List(name string) *Format { return f.variableField(name, KindInt32List) }

// lengthFieldOf returns the paired length field's index for a
// variable-length field, or -1 if field i is not variable-length.
func (f *Format) lengthFieldOf(i int) int {
	if !f.Fields[i].Kind.variable() {
		return -1
	}
	return f.Fields[i].pairedWith
}

// textTokenCount is the number of tokens a textual record of this Format
// carries (derived length fields consume no token).
func (f *Format) textTokenCount() int {
	n := 0
	for _, fd := range f.Fields {
		if fd.derived {
			continue
		}
		n++
	}
	return n
}

// Validate reports whether text parses cleanly against f (with Parse's
// rules), discarding the parsed Record.
func (f *Format) Validate(text string) bool {
	_, err := f.parse(text, true)
	return err == nil
}

// Parse parses a textual record, validating every token, including the
// additional rule that a KindString token must be non-empty. On the first
// invalid token it returns a zero Record and an error — nothing is
// partially materialised, since the Record is only returned on success.
func (f *Format) Parse(text string) (Record, error) {
	return f.parse(text, true)
}

// UnsafeParse parses a textual record without the stricter validation
// Parse applies beyond "does this token parse as its kind at all": a
// KindString token may be empty, where Parse would reject it (kept
// distinct from Parse so callers can name their intent, per spec.md
// §4.1's safe/unsafe parse distinction).
func (f *Format) UnsafeParse(text string) (Record, error) {
	return f.parse(text, false)
}

func (f *Format) parse(text string, strict bool) (Record, error) {
	tokens := strings.Split(text, string(f.Separator))
	if len(tokens) != f.textTokenCount() {
		return nil, fmt.Errorf("%w: got %d tokens, want %d", ErrArityMismatch, len(tokens), f.textTokenCount())
	}

	rec := make(Record, len(f.Fields))
	ti := 0 // token index

	for i, fd := range f.Fields {
		if fd.derived {
			continue // filled in once its paired field is parsed, below
		}

		token := tokens[ti]
		ti++

		switch fd.Kind {
		case KindBool:
			v, ok := parseBool(token)
			if !ok {
				return nil, fmt.Errorf("%w: field %q", ErrInvalidToken, fd.Name)
			}
			rec[i] = Value{Bool: v}

		case KindEnum:
			v, ok := parseEnum(token, fd.EnumLabels)
			if !ok {
				return nil, fmt.Errorf("%w: field %q", ErrInvalidToken, fd.Name)
			}
			rec[i] = Value{Int32: int32(v)}

		case KindInt32:
			v, ok := parseInt32(token)
			if !ok {
				return nil, fmt.Errorf("%w: field %q", ErrInvalidToken, fd.Name)
			}
			rec[i] = Value{Int32: v}

		case KindFloat64:
			v, ok := parseFloat64(token)
			if !ok {
				return nil, fmt.Errorf("%w: field %q", ErrInvalidToken, fd.Name)
			}
			rec[i] = Value{Float64: v}

		case KindTimestamp:
			d, ok := ParseDate(token)
			if !ok {
				return nil, fmt.Errorf("%w: field %q", ErrInvalidToken, fd.Name)
			}
			rec[i] = Value{Int32: int32(d.Pack())}

		case KindString:
			if strict && token == "" {
				return nil, fmt.Errorf("%w: field %q must be non-empty", ErrInvalidToken, fd.Name)
			}
			rec[i] = Value{Str: token}
			f.setDerivedLength(rec, i, int32(len(token)))

		case KindNullableString:
			if token == "" {
				rec[i] = Value{Valid: false}
				f.setDerivedLength(rec, i, -1)
			} else {
				rec[i] = Value{Str: token, Valid: true}
				f.setDerivedLength(rec, i, int32(len(token)))
			}

		case KindInt32List:
			list, ok := parseInt32List(token)
			if !ok {
				return nil, fmt.Errorf("%w: field %q", ErrInvalidToken, fd.Name)
			}
			rec[i] = Value{List: list}
			f.setDerivedLength(rec, i, int32(len(list)))
		}
	}

	return rec, nil
}

// setDerivedLength records a variable-length field's computed length into
// its paired synthetic length field, so callers never compute it
// separately or risk it drifting out of sync.
func (f *Format) setDerivedLength(rec Record, fieldIdx int, computed int32) {
	lenIdx := f.lengthFieldOf(fieldIdx)
	if lenIdx < 0 {
		return
	}
	rec[lenIdx] = Value{Int32: computed}
}

// WriteText renders rec back to its separator-delimited textual form.
func (f *Format) WriteText(rec Record) string {
	var sb strings.Builder
	first := true
	for i, fd := range f.Fields {
		if fd.derived {
			continue
		}
		if !first {
			sb.WriteByte(f.Separator)
		}
		first = false
		switch fd.Kind {
		case KindBool:
			if rec[i].Bool {
				sb.WriteString("True")
			} else {
				sb.WriteString("False")
			}
		case KindEnum:
			sb.WriteString(fd.EnumLabels[rec[i].Int32])
		case KindInt32:
			fmt.Fprintf(&sb, "%d", rec[i].Int32)
		case KindFloat64:
			fmt.Fprintf(&sb, "%g", rec[i].Float64)
		case KindTimestamp:
			fmt.Fprint(&sb, UnpackDate(uint32(rec[i].Int32)).String())
		case KindString:
			sb.WriteString(rec[i].Str)
		case KindNullableString:
			if rec[i].Valid {
				sb.WriteString(rec[i].Str)
			}
		case KindInt32List:
			sb.WriteByte('[')
			for j, v := range rec[i].List {
				if j > 0 {
					sb.WriteString(", ")
				}
				fmt.Fprintf(&sb, "%d", v)
			}
			sb.WriteByte(']')
		}
	}
	return sb.String()
}

// Size returns the fixed binary width of field i, or the byte width of
// its variable-length content for rec if i is variable-length (the size
// used by the Lazy Record's running offset table).
func (f *Format) Size(i int, rec Record) int {
	fd := f.Fields[i]
	if w := fixedWidth(fd.Kind); w > 0 {
		return w
	}
	switch fd.Kind {
	case KindString:
		return len(rec[i].Str)
	case KindNullableString:
		if !rec[i].Valid {
			return 0
		}
		return len(rec[i].Str)
	case KindInt32List:
		return len(rec[i].List) * 4
	default:
		return 0
	}
}

// FieldOffset returns field i's byte displacement from the start of
// rec's binary encoding — used to key an index on an internal field
// position (e.g. a repo's language-length byte) rather than on the
// record's base offset.
func (f *Format) FieldOffset(i int, rec Record) int {
	off := 0
	for j := 0; j < i; j++ {
		off += f.Size(j, rec)
	}
	return off
}

// sizeFromLength returns the byte width of variable-length field i given
// the already-materialised value of its paired length field — used by the
// Lazy Record, which must compute a field's width without the full Record
// in hand.
func (f *Format) sizeFromLength(i int, length int32) int {
	switch f.Fields[i].Kind {
	case KindString:
		return int(length)
	case KindNullableString:
		if length < 0 {
			return 0
		}
		return int(length)
	case KindInt32List:
		return int(length) * 4
	default:
		return fixedWidth(f.Fields[i].Kind)
	}
}

// WriteBinary serialises rec to its fixed/variable-width big-endian
// binary form.
func (f *Format) WriteBinary(rec Record) []byte {
	total := 0
	for i := range f.Fields {
		total += f.Size(i, rec)
	}
	buf := make([]byte, total)
	off := 0
	for i, fd := range f.Fields {
		off += f.encodeField(buf[off:], i, fd, rec)
	}
	return buf
}

func (f *Format) encodeField(dst []byte, i int, fd FieldDef, rec Record) int {
	switch fd.Kind {
	case KindBool:
		if rec[i].Bool {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
		return 1
	case KindEnum:
		dst[0] = byte(rec[i].Int32)
		return 1
	case KindInt32:
		v := rec[i].Int32
		if fd.derived {
			v = f.derivedValue(i, rec)
		}
		putUint32BE(dst, uint32(v))
		return 4
	case KindFloat64:
		putUint64BE(dst, floatBits(rec[i].Float64))
		return 8
	case KindTimestamp:
		putUint32BE(dst, uint32(rec[i].Int32))
		return 4
	case KindString:
		copy(dst, rec[i].Str)
		return len(rec[i].Str)
	case KindNullableString:
		if !rec[i].Valid {
			return 0
		}
		copy(dst, rec[i].Str)
		return len(rec[i].Str)
	case KindInt32List:
		for j, v := range rec[i].List {
			putUint32BE(dst[j*4:], uint32(v))
		}
		return len(rec[i].List) * 4
	default:
		return 0
	}
}

// derivedValue computes a synthetic length field's value directly from
// its paired variable-length field, so callers never need to keep it in
// sync by hand.
func (f *Format) derivedValue(lenIdx int, rec Record) int32 {
	fieldIdx := f.Fields[lenIdx].pairedWith
	switch f.Fields[fieldIdx].Kind {
	case KindString:
		return int32(len(rec[fieldIdx].Str))
	case KindNullableString:
		if !rec[fieldIdx].Valid {
			return -1
		}
		return int32(len(rec[fieldIdx].Str))
	case KindInt32List:
		return int32(len(rec[fieldIdx].List))
	default:
		return rec[lenIdx].Int32
	}
}

// ReadBinary deserialises a full binary record from buf. Only used for
// whole-record loads (e.g. round-trip tests); the Lazy Record reads
// fields individually through the Cache instead.
func (f *Format) ReadBinary(buf []byte) (Record, error) {
	rec := make(Record, len(f.Fields))
	off := 0
	for i, fd := range f.Fields {
		n, err := f.decodeField(buf[off:], i, fd, rec)
		if err != nil {
			return nil, err
		}
		off += n
	}
	return rec, nil
}

func (f *Format) decodeField(src []byte, i int, fd FieldDef, rec Record) (int, error) {
	switch fd.Kind {
	case KindBool:
		rec[i] = Value{Bool: src[0] != 0}
		return 1, nil
	case KindEnum:
		rec[i] = Value{Int32: int32(src[0])}
		return 1, nil
	case KindInt32:
		rec[i] = Value{Int32: int32(getUint32BE(src))}
		return 4, nil
	case KindFloat64:
		rec[i] = Value{Float64: bitsFloat(getUint64BE(src))}
		return 8, nil
	case KindTimestamp:
		rec[i] = Value{Int32: int32(getUint32BE(src))}
		return 4, nil
	case KindString:
		n := int(rec[f.lengthFieldOf(i)].Int32)
		rec[i] = Value{Str: string(src[:n])}
		return n, nil
	case KindNullableString:
		length := rec[f.lengthFieldOf(i)].Int32
		if length < 0 {
			rec[i] = Value{Valid: false}
			return 0, nil
		}
		rec[i] = Value{Str: string(src[:length]), Valid: true}
		return int(length), nil
	case KindInt32List:
		n := int(rec[f.lengthFieldOf(i)].Int32)
		list := make([]int32, n)
		for j := 0; j < n; j++ {
			list[j] = int32(getUint32BE(src[j*4:]))
		}
		rec[i] = Value{List: list}
		return n * 4, nil
	default:
		return 0, nil
	}
}
