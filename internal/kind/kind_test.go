package kind

import "testing"

func TestParseKnownNames(t *testing.T) {
	for _, k := range All() {
		if got := Parse(k.String()); got != k {
			t.Errorf("Parse(%q) = %v, want %v", k.String(), got, k)
		}
	}
	if got := Parse("segment"); got != Unknown {
		t.Errorf("Parse(segment) = %v, want Unknown", got)
	}
}

func TestIsContainer(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{Struct, true},
		{StackFrame, true},
		{Enum, true},
		{Function, false},
		{EnumMember, false},
		{StructMember, false},
		{BasicBlock, false},
	}
	for _, tt := range tests {
		if got := tt.kind.IsContainer(); got != tt.want {
			t.Errorf("%v.IsContainer() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
