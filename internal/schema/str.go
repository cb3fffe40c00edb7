package schema

// Fixed-width NUL-padded strings used in wire payloads. Length is the byte
// count before the first NUL; longer inputs are truncated on construction.

type Str16 [16]byte

func NewStr16(s string) Str16 {
	var v Str16
	copy(v[:], s)
	return v
}

func (v Str16) Len() int {
	for i := range v {
		if v[i] == 0 {
			return i
		}
	}
	return len(v)
}

func (v Str16) String() string {
	return string(v[:v.Len()])
}

type Str32 [32]byte

func NewStr32(s string) Str32 {
	var v Str32
	copy(v[:], s)
	return v
}

func (v Str32) Len() int {
	for i := range v {
		if v[i] == 0 {
			return i
		}
	}
	return len(v)
}

func (v Str32) String() string {
	return string(v[:v.Len()])
}

type Str64 [64]byte

func NewStr64(s string) Str64 {
	var v Str64
	copy(v[:], s)
	return v
}

func (v Str64) Len() int {
	for i := range v {
		if v[i] == 0 {
			return i
		}
	}
	return len(v)
}

func (v Str64) String() string {
	return string(v[:v.Len()])
}
