package norma

import "testing"

func TestNormalizeArticleNumber(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Plain digits", "Artículo 14", "14"},
		{"Apartado suffix dropped", "Artículo 154.1", "154"},
		{"Bis suffix kept", "Art. 1 bis", "1 bis"},
		{"Ter suffix kept", "Artículo 23 ter", "23 ter"},
		{"Written cardinal tens", "Artículo cincuenta y uno", "51"},
		{"Written cardinal hundreds", "Artículo ciento veintisiete", "127"},
		{"Written ordinal", "primera", "1"},
		{"Written ordinal compound", "decimotercera", "13"},
		{"Underscore name form", "Artículo_7", "7"},
		{"Bare number", "51", "51"},
		{"No number", "Artículo único", ""},
		{"Empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeArticleNumber(tt.in); got != tt.want {
				t.Errorf("NormalizeArticleNumber(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeArticleNumberIdempotent(t *testing.T) {
	inputs := []string{"Artículo 14", "Art. 1 bis", "Artículo cincuenta y uno", "Artículo 154.1"}
	for _, in := range inputs {
		once := NormalizeArticleNumber(in)
		twice := NormalizeArticleNumber(once)
		if once != twice {
			t.Errorf("not idempotent for %q: first=%q second=%q", in, once, twice)
		}
	}
}

func TestValidCleanNumber(t *testing.T) {
	valid := []string{"", "1", "51", "1 bis", "23 quater"}
	for _, s := range valid {
		if !ValidCleanNumber(s) {
			t.Errorf("ValidCleanNumber(%q) = false, want true", s)
		}
	}
	invalid := []string{"bis", "1 foo", "x1"}
	for _, s := range invalid {
		if ValidCleanNumber(s) {
			t.Errorf("ValidCleanNumber(%q) = true, want false", s)
		}
	}
}
