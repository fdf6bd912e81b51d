package grammar_test

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/skiprope/sdval/grammar"
	"github.com/skiprope/sdval/scan"
)

func TestParseValid(t *testing.T) {
	for _, test := range []struct {
		input string
		kind  grammar.Kind
	}{
		{"", grammar.Void},
		{"b", grammar.Bool},
		{"c", grammar.Byte},
		{"i", grammar.Int32},
		{"I", grammar.Int64},
		{"d", grammar.Double},
		{"s", grammar.String},
		{"X", grammar.ExpectedVoid},
		{"e", grammar.Error},
		{"a", grammar.Any},
		{"li", grammar.List},
		{"lc", grammar.List},
		{"oi", grammar.Optional},
		{"xi", grammar.Expected},
		{"msi", grammar.Map},
		{"t2is", grammar.Tuple},
		{"t3isb", grammar.Tuple},
		{"la", grammar.List},
		{"lt2is", grammar.List},
		{"mslt3isd", grammar.Map},
	} {
		t.Run(fmt.Sprintf("%q", test.input), func(t *testing.T) {
			n, err := grammar.Parse(test.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if n.Kind != test.kind {
				t.Errorf("expected kind %v got %v", test.kind, n.Kind)
			}
			if n.String() != test.input {
				t.Errorf("round-trip mismatch: expected %q got %q", test.input, n.String())
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, test := range []struct {
		input string
	}{
		{"z"},
		{"t1is"},
		{"t0is"},
		{"t"},
		{"tX"},
		{"bb"},
		{"l"},
		{"o"},
	} {
		t.Run(fmt.Sprintf("%q", test.input), func(t *testing.T) {
			_, err := grammar.Parse(test.input)
			if test.input == "l" || test.input == "o" {
				// "l"/"o" alone parse as list-of-void/optional-of-void,
				// which is syntactically legal (void consumes 0 chars).
				if err != nil {
					t.Errorf("expected list/optional-of-void to parse, got %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("expected error for %q", test.input)
			}
		})
	}
}

func TestParseOneLengthEqualsConsumed(t *testing.T) {
	for _, typ := range []string{
		"b", "c", "i", "I", "d", "s", "X", "e", "a",
		"li", "oi", "xi", "msi", "t2is", "t4isbX",
	} {
		n, consumed, err := grammar.ParseOne(typ)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", typ, err)
		}
		if consumed != len(typ) {
			t.Errorf("%q: consumed=%d want %d", typ, consumed, len(typ))
		}
		if n.String() != typ {
			t.Errorf("%q: reconstructed %q", typ, n.String())
		}
	}
}

func TestTrailingChars(t *testing.T) {
	_, err := grammar.Parse("bb")
	if err == nil {
		t.Fatal("expected TrailingChars error")
	}
}

func TestWalkCountsNodes(t *testing.T) {
	n, err := grammar.Parse("t3islI")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count := 0
	err = grammar.Walk(n, func(*grammar.Node) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected walk error: %v", err)
	}
	// tuple + i + s + (list + I) == 5
	if count != 5 {
		t.Errorf("expected 5 nodes visited, got %d", count)
	}
}

func TestParseIsDeterministic(t *testing.T) {
	// Parsing the same type string twice must produce structurally
	// identical trees, not just trees that satisfy Equal.
	for _, typ := range []string{"t3islI", "mslt3isd", "loi", "xi"} {
		a, err := grammar.Parse(typ)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		b, err := grammar.Parse(typ)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(a, b); diff != "" {
			t.Errorf("%q: repeated parse diverged (-first +second):\n%s", typ, diff)
		}
	}
}

func TestDefaultValueScansClean(t *testing.T) {
	for _, typ := range []string{
		"", "b", "c", "i", "I", "d", "s", "X", "e", "a",
		"li", "lc", "oi", "xi", "msi", "t2is", "t3isb",
		"la", "lt2is", "loi", "lxi",
	} {
		t.Run(typ, func(t *testing.T) {
			n, err := grammar.Parse(typ)
			if err != nil {
				t.Fatalf("unexpected parse error: %v", err)
			}
			def := grammar.DefaultValue(n)
			consumed, err := scan.Scan(n, def)
			if err != nil {
				t.Fatalf("default value failed to scan: %v", err)
			}
			if consumed != len(def) {
				t.Errorf("scan consumed %d of %d default bytes", consumed, len(def))
			}
		})
	}
}
