package phone

import (
	"reflect"
	"testing"
)

func TestNational(t *testing.T) {
	cases := map[string]string{
		"4165551234":       "4165551234",
		"+14165551234":     "4165551234",
		"(416) 555-1234":   "4165551234",
		"416-555-1234":     "4165551234",
		" 1 416 555 1234 ": "4165551234",
		"+44 20 7946 0958": "442079460958",
		"":                 "",
	}
	for input, want := range cases {
		if got := National(input); got != want {
			t.Fatalf("National(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestE164(t *testing.T) {
	if got := E164("(416) 555-1234"); got != "+14165551234" {
		t.Fatalf("E164 = %q", got)
	}
	if got := E164("+14165551234"); got != "+14165551234" {
		t.Fatalf("E164 = %q", got)
	}
	if got := E164(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestVariantsCoverStorageDrift(t *testing.T) {
	got := Variants("(416) 555-1234")
	want := []string{"(416) 555-1234", "4165551234", "14165551234", "+14165551234", "+4165551234"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Variants = %v, want %v", got, want)
	}
}

func TestVariantsIncludeE164Form(t *testing.T) {
	for _, input := range []string{"4165551234", "(416) 555-1234", "+14165551234"} {
		want := E164(input)
		found := false
		for _, v := range Variants(input) {
			if v == want {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("Variants(%q) = %v, missing E.164 form %q", input, Variants(input), want)
		}
	}
}

func TestVariantsDeduplicate(t *testing.T) {
	got := Variants("4165551234")
	for i, a := range got {
		for j, b := range got {
			if i != j && a == b {
				t.Fatalf("duplicate variant %q in %v", a, got)
			}
		}
	}
}

func TestPretty(t *testing.T) {
	if got := Pretty("+14165551234"); got != "(416) 555-1234" {
		t.Fatalf("Pretty = %q", got)
	}
	if got := Pretty("12345"); got != "12345" {
		t.Fatalf("expected passthrough for short numbers, got %q", got)
	}
}

func TestPlaceholderName(t *testing.T) {
	if got := PlaceholderName("4165550001"); got != "SMS Contact (416) 555-0001" {
		t.Fatalf("PlaceholderName = %q", got)
	}
	if got := PlaceholderName(""); got != "SMS Contact" {
		t.Fatalf("PlaceholderName empty = %q", got)
	}
}
