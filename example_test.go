package sdval_test

import (
	"fmt"
	"testing"

	"github.com/skiprope/sdval"
	"github.com/skiprope/sdval/convert"
	"github.com/skiprope/sdval/grammar"
)

func TestUsage(t *testing.T) {
	// Parse a value straight from text. Types are inferred from shape;
	// you never have to spell out a type string by hand.
	val, err := sdval.ParseString(`
		{
			"name": "The Beatles",
			"year": 1962,
			"active": false,
			"members": [
				"John", "Paul", "George", "Ringo"
			]
		}
	`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	// TypeString shows what got inferred: a map of string to `a` (the
	// values are heterogeneous, so each gets individually wrapped).
	fmt.Println(val.TypeString())

	printed, _ := val.Print()
	fmt.Println(printed)

	// ConvertTo asks the conversion engine whether the current value can
	// become a different, still-compatible type under a policy. Widening
	// an `i` count to `I` needs PolicyInts.
	count, err := sdval.NewFromText("5")
	if err != nil {
		t.Fatal(err)
	}

	wideType, err := grammar.Parse("I")
	if err != nil {
		t.Fatal(err)
	}
	widened, err := count.ConvertTo(wideType, convert.PolicyInts)
	if err != nil {
		t.Errorf("widening should succeed under PolicyInts: %v", err)
	}
	fmt.Println(widened.TypeString())

	// GetAs decodes into a concrete Go type, converting first if needed.
	n, err := sdval.GetAs[int64](count, convert.PolicyInts)
	if err != nil {
		t.Errorf("GetAs failed: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 got %v", n)
	}

	// Assign does the reverse: infer a type from a Go value.
	host := struct {
		Name string
		Age  int32
	}{Name: "Ringo", Age: 85}
	a, err := sdval.Assign(host, sdval.ModeLiberal)
	if err != nil {
		t.Errorf("assign failed: %v", err)
	}
	fmt.Println(a.TypeString()) // "t2si"
}
