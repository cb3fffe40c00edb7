package schema

import "testing"

func TestStr16RoundTrip(t *testing.T) {
	v := NewStr16("AAPL")
	if v.Len() != 4 {
		t.Fatalf("Len = %d, want 4", v.Len())
	}
	if v.String() != "AAPL" {
		t.Fatalf("String = %q, want AAPL", v.String())
	}
}

func TestStr16Truncates(t *testing.T) {
	v := NewStr16("0123456789abcdef-overflow")
	if v.String() != "0123456789abcdef" {
		t.Fatalf("String = %q", v.String())
	}
	if v.Len() != 16 {
		t.Fatalf("Len = %d, want 16", v.Len())
	}
}

func TestStr64Empty(t *testing.T) {
	var v Str64
	if v.Len() != 0 || v.String() != "" {
		t.Fatalf("zero value: Len=%d String=%q", v.Len(), v.String())
	}
}

func TestStr32ExecID(t *testing.T) {
	v := NewStr32("0001f6a4-73b2-4e9c-9d11-8c2f")
	if v.String() != "0001f6a4-73b2-4e9c-9d11-8c2f" {
		t.Fatalf("String = %q", v.String())
	}
}
