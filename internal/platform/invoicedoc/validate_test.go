package invoicedoc

import "testing"

func TestValidGLN(t *testing.T) {
	tests := []struct {
		gln  string
		want bool
	}{
		{"7601003000001", true},
		{"2099999999999", true},
		{"760100300000", false},   // 12 digits
		{"76010030000011", false}, // 14 digits
		{"7601003zzz001", false},  // non-digit
		{"", false},
		{" 7601003000001", false}, // no trimming here, callers normalize
	}

	for _, tt := range tests {
		if got := ValidGLN(tt.gln); got != tt.want {
			t.Errorf("ValidGLN(%q) = %v, want %v", tt.gln, got, tt.want)
		}
	}
}

func TestNormalizeIBAN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CH93 0076 2011 6238 5295 7", "CH9300762011623852957"},
		{"ch9300762011623852957", "CH9300762011623852957"},
		{" CH93\t0076 2011 6238 5295 7\n", "CH9300762011623852957"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeIBAN(tt.in); got != tt.want {
			t.Errorf("NormalizeIBAN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidIBAN(t *testing.T) {
	tests := []struct {
		iban string
		want bool
	}{
		{"CH9300762011623852957", true},
		{"CH4431999123000889012", true},
		{"CH1234", false},                  // far too short
		{"CH93007620116238529571", false},  // 22 chars
		{"DE9300762011623852957", false},   // wrong country
		{"CH93007620116238529-7", false},   // non-alphanumeric
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidIBAN(tt.iban); got != tt.want {
			t.Errorf("ValidIBAN(%q) = %v, want %v", tt.iban, got, tt.want)
		}
	}
}

func TestFilterDiagnoses_TrimsAndFilters(t *testing.T) {
	in := []DiagnosisInput{
		{System: " ICD-10 ", Code: " J06.9 "},
		{System: "icpc2", Code: "R74"},
		{System: "ICD-10", Code: " J "}, // single char after trim
	}

	out := filterDiagnoses(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 diagnoses, got %d", len(out))
	}
	if out[0].Code != "J06.9" {
		t.Errorf("expected trimmed code J06.9, got %q", out[0].Code)
	}
	if out[1].Type != DiagnosisICPC {
		t.Errorf("expected ICPC type, got %s", out[1].Type)
	}
}
