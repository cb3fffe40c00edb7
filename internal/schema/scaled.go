package schema

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Price is a scaled integer with Scale implied decimal places.
type Price int64

// Quantity is a scaled integer with Scale implied decimal places.
type Quantity int64

// Scale is the implied decimal scale of Price and Quantity values.
const Scale = 8

const scaleUnit = int64(100_000_000)

var (
	ErrScaledSyntax    = errors.New("malformed decimal value")
	ErrScaledPrecision = errors.New("decimal value exceeds scale")
	ErrScaledOverflow  = errors.New("decimal value overflows int64")
)

// ParsePrice converts a decimal string such as "150.25" to a scaled Price.
func ParsePrice(s string) (Price, error) {
	v, err := parseScaled(s)
	return Price(v), err
}

// ParseQuantity converts a decimal string to a scaled Quantity.
func ParseQuantity(s string) (Quantity, error) {
	v, err := parseScaled(s)
	return Quantity(v), err
}

func (p Price) String() string { return formatScaled(int64(p)) }

func (q Quantity) String() string { return formatScaled(int64(q)) }

func parseScaled(s string) (int64, error) {
	if s == "" {
		return 0, ErrScaledSyntax
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart, fracPart = s[:dot], s[dot+1:]
	}
	if intPart == "" && fracPart == "" {
		return 0, ErrScaledSyntax
	}
	if len(fracPart) > Scale {
		return 0, ErrScaledPrecision
	}
	whole := uint64(0)
	if intPart != "" {
		w, err := strconv.ParseUint(intPart, 10, 64)
		if err != nil {
			return 0, ErrScaledSyntax
		}
		whole = w
	}
	frac := uint64(0)
	if fracPart != "" {
		f, err := strconv.ParseUint(fracPart, 10, 64)
		if err != nil {
			return 0, ErrScaledSyntax
		}
		for i := len(fracPart); i < Scale; i++ {
			f *= 10
		}
		frac = f
	}
	if whole > uint64(math.MaxInt64/scaleUnit) {
		return 0, ErrScaledOverflow
	}
	scaled := int64(whole) * scaleUnit
	if scaled > math.MaxInt64-int64(frac) {
		return 0, ErrScaledOverflow
	}
	v := scaled + int64(frac)
	if neg {
		v = -v
	}
	return v, nil
}

func formatScaled(v int64) string {
	u := uint64(v)
	neg := v < 0
	if neg {
		u = -u
	}
	whole := u / uint64(scaleUnit)
	frac := u % uint64(scaleUnit)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(strconv.FormatUint(whole, 10))
	if frac == 0 {
		return b.String()
	}
	fs := strconv.FormatUint(frac, 10)
	b.WriteByte('.')
	for i := len(fs); i < Scale; i++ {
		b.WriteByte('0')
	}
	for len(fs) > 1 && fs[len(fs)-1] == '0' {
		fs = fs[:len(fs)-1]
	}
	b.WriteString(fs)
	return b.String()
}
