package meshprep

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	gomath "math"
	"strings"

	"github.com/pkg/errors"
)

// Usage identifies the semantic of a vertex attribute slot.
type Usage uint8

const (
	UsagePosition Usage = iota
	UsageNormal
	UsageTangent
	UsageBitangent
	UsageTexCoord0
	UsageTexCoord1
	UsageBlendWeight
	UsageBlendIndices
	usageCount
)

var usageNames = [usageCount]string{
	"Position", "Normal", "Tangent", "Bitangent",
	"TexCoord0", "TexCoord1", "BlendWeight", "BlendIndices",
}

// String returns the slot name.
func (u Usage) String() string {
	if u < usageCount {
		return usageNames[u]
	}
	return fmt.Sprintf("Usage(%d)", uint8(u))
}

// ComponentType is the numeric type of one attribute component.
type ComponentType uint8

const (
	Float32 ComponentType = iota
	Int8
	Uint8
	Int16
	Uint16
	Uint32
)

// Size returns the component size in bytes.
func (c ComponentType) Size() int {
	switch c {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	default:
		return 4
	}
}

// String returns a short type tag.
func (c ComponentType) String() string {
	switch c {
	case Float32:
		return "f32"
	case Int8:
		return "i8"
	case Uint8:
		return "u8"
	case Int16:
		return "i16"
	case Uint16:
		return "u16"
	case Uint32:
		return "u32"
	default:
		return fmt.Sprintf("ComponentType(%d)", uint8(c))
	}
}

// Attribute describes one slot of a vertex format.
type Attribute struct {
	Usage      Usage
	Components int
	Type       ComponentType
	// Normalized maps integer types onto [0,1] (unsigned) or [-1,1] (signed).
	Normalized bool
}

func (a Attribute) size() int {
	return a.Components * a.Type.Size()
}

func (a Attribute) String() string {
	s := fmt.Sprintf("%s:%d%s", a.Usage, a.Components, a.Type)
	if a.Normalized {
		s += "n"
	}
	return s
}

// Format is an ordered, immutable vertex layout.
type Format struct {
	attrs   []Attribute
	offsets []int
	slot    [usageCount]int
	stride  int
}

// NewFormat builds a tightly packed layout from attrs in the given order.
func NewFormat(attrs ...Attribute) (*Format, error) {
	f := &Format{}
	for i := range f.slot {
		f.slot[i] = -1
	}
	for _, a := range attrs {
		if a.Usage >= usageCount {
			return nil, errors.Wrapf(ErrInvalidFormat, "unknown usage %d", a.Usage)
		}
		if a.Components < 1 || a.Components > 4 {
			return nil, errors.Wrapf(ErrInvalidFormat, "%s has %d components", a.Usage, a.Components)
		}
		if a.Type > Uint32 {
			return nil, errors.Wrapf(ErrInvalidFormat, "%s has unknown component type", a.Usage)
		}
		if f.slot[a.Usage] >= 0 {
			return nil, errors.Wrapf(ErrInvalidFormat, "duplicate %s attribute", a.Usage)
		}
		f.slot[a.Usage] = len(f.attrs)
		f.attrs = append(f.attrs, a)
		f.offsets = append(f.offsets, f.stride)
		f.stride += a.size()
	}
	return f, nil
}

// MustFormat is NewFormat that panics on an invalid layout.
func MustFormat(attrs ...Attribute) *Format {
	f, err := NewFormat(attrs...)
	if err != nil {
		panic(err)
	}
	return f
}

// StandardFormat returns float position, normal and texcoord, the layout most
// importers produce.
func StandardFormat() *Format {
	return MustFormat(
		Attribute{Usage: UsagePosition, Components: 3, Type: Float32},
		Attribute{Usage: UsageNormal, Components: 3, Type: Float32},
		Attribute{Usage: UsageTexCoord0, Components: 2, Type: Float32},
	)
}

// Stride returns the vertex size in bytes.
func (f *Format) Stride() int {
	return f.stride
}

// Attributes returns a copy of the attribute list.
func (f *Format) Attributes() []Attribute {
	return append([]Attribute(nil), f.attrs...)
}

// Has reports whether the format carries the usage.
func (f *Format) Has(u Usage) bool {
	return u < usageCount && f.slot[u] >= 0
}

// Lookup returns the attribute for u and its byte offset.
func (f *Format) Lookup(u Usage) (Attribute, int, bool) {
	if !f.Has(u) {
		return Attribute{}, 0, false
	}
	i := f.slot[u]
	return f.attrs[i], f.offsets[i], true
}

// Extend returns a new format with attrs appended. Usages already present
// are left untouched.
func (f *Format) Extend(attrs ...Attribute) (*Format, error) {
	all := f.Attributes()
	for _, a := range attrs {
		if !f.Has(a.Usage) {
			all = append(all, a)
		}
	}
	return NewFormat(all...)
}

// Equal reports whether both formats describe the same layout.
func (f *Format) Equal(other *Format) bool {
	if f == other {
		return true
	}
	if f == nil || other == nil || len(f.attrs) != len(other.attrs) {
		return false
	}
	for i := range f.attrs {
		if f.attrs[i] != other.attrs[i] {
			return false
		}
	}
	return true
}

// Hash identifies the layout. Extending a format changes its hash.
func (f *Format) Hash() uint64 {
	h := fnv.New64a()
	for _, a := range f.attrs {
		norm := byte(0)
		if a.Normalized {
			norm = 1
		}
		h.Write([]byte{byte(a.Usage), byte(a.Components), byte(a.Type), norm})
	}
	return h.Sum64()
}

func (f *Format) String() string {
	parts := make([]string, len(f.attrs))
	for i, a := range f.attrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}

// Read unpacks attribute u of a single vertex. Missing components read as 0.
func (f *Format) Read(vertex []byte, u Usage) ([4]float32, bool) {
	var out [4]float32
	a, off, ok := f.Lookup(u)
	if !ok {
		return out, false
	}
	sz := a.Type.Size()
	for c := 0; c < a.Components; c++ {
		out[c] = unpackComponent(vertex[off+c*sz:], a.Type, a.Normalized)
	}
	return out, true
}

// Write packs v into attribute u of a single vertex. Extra components of v
// are ignored.
func (f *Format) Write(vertex []byte, u Usage, v [4]float32) bool {
	a, off, ok := f.Lookup(u)
	if !ok {
		return false
	}
	sz := a.Type.Size()
	for c := 0; c < a.Components; c++ {
		packComponent(vertex[off+c*sz:], a.Type, a.Normalized, v[c])
	}
	return true
}

// ConvertVertex copies every attribute dst shares with src, converting the
// numeric representation. Attributes src lacks are zeroed.
func ConvertVertex(dst *Format, dstVertex []byte, src *Format, srcVertex []byte) {
	if dst.Equal(src) {
		copy(dstVertex[:dst.stride], srcVertex[:src.stride])
		return
	}
	for i, a := range dst.attrs {
		if v, ok := src.Read(srcVertex, a.Usage); ok {
			dst.Write(dstVertex, a.Usage, v)
			continue
		}
		clear(dstVertex[dst.offsets[i] : dst.offsets[i]+a.size()])
	}
}

func unpackComponent(b []byte, t ComponentType, normalized bool) float32 {
	switch t {
	case Float32:
		return gomath.Float32frombits(binary.LittleEndian.Uint32(b))
	case Uint8:
		if normalized {
			return float32(b[0]) / 255
		}
		return float32(b[0])
	case Int8:
		if normalized {
			return maxf(float32(int8(b[0]))/127, -1)
		}
		return float32(int8(b[0]))
	case Uint16:
		v := binary.LittleEndian.Uint16(b)
		if normalized {
			return float32(v) / 65535
		}
		return float32(v)
	case Int16:
		v := int16(binary.LittleEndian.Uint16(b))
		if normalized {
			return maxf(float32(v)/32767, -1)
		}
		return float32(v)
	case Uint32:
		v := binary.LittleEndian.Uint32(b)
		if normalized {
			return float32(float64(v) / gomath.MaxUint32)
		}
		return float32(v)
	}
	return 0
}

func packComponent(b []byte, t ComponentType, normalized bool, v float32) {
	switch t {
	case Float32:
		binary.LittleEndian.PutUint32(b, gomath.Float32bits(v))
	case Uint8:
		if normalized {
			v = clampf(v, 0, 1) * 255
		}
		b[0] = uint8(clampf(roundf(v), 0, gomath.MaxUint8))
	case Int8:
		if normalized {
			v = clampf(v, -1, 1) * 127
		}
		b[0] = byte(int8(clampf(roundf(v), gomath.MinInt8, gomath.MaxInt8)))
	case Uint16:
		if normalized {
			v = clampf(v, 0, 1) * 65535
		}
		binary.LittleEndian.PutUint16(b, uint16(clampf(roundf(v), 0, gomath.MaxUint16)))
	case Int16:
		if normalized {
			v = clampf(v, -1, 1) * 32767
		}
		binary.LittleEndian.PutUint16(b, uint16(int16(clampf(roundf(v), gomath.MinInt16, gomath.MaxInt16))))
	case Uint32:
		f := float64(v)
		if normalized {
			f = gomath.Min(gomath.Max(f, 0), 1) * gomath.MaxUint32
		}
		f = gomath.Min(gomath.Max(gomath.Round(f), 0), gomath.MaxUint32)
		binary.LittleEndian.PutUint32(b, uint32(f))
	}
}

func roundf(v float32) float32 {
	return float32(gomath.Round(float64(v)))
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
