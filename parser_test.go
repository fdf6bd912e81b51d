package sdval_test

import (
	"testing"

	"github.com/skiprope/sdval"
	"github.com/skiprope/sdval/grammar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrimitives(t *testing.T) {
	for _, tc := range []struct {
		text     string
		wantType string
	}{
		{"true", "b"},
		{"false", "b"},
		{"5", "i"},
		{"-5", "i"},
		{"2147483648", "I"}, // overflows i32, widens to I
		{"5.0", "d"},
		{"5e2", "d"},
		{`"hi"`, "s"},
		{"'x'", "c"},
	} {
		a, err := sdval.ParseStringMode(tc.text, sdval.ModeStrict)
		require.NoError(t, err, tc.text)
		assert.Equal(t, tc.wantType, a.TypeString(), tc.text)
	}
}

func TestParseLeadingDotIsError(t *testing.T) {
	_, err := sdval.ParseString(".5")
	require.Error(t, err)
}

func TestParseIntegerOverflow(t *testing.T) {
	_, err := sdval.ParseString("99999999999999999999999999")
	require.Error(t, err)
}

func TestParseTupleRequiresArityTwo(t *testing.T) {
	_, err := sdval.ParseString("(1)")
	require.Error(t, err)
}

func TestParseHomogeneousList(t *testing.T) {
	a, err := sdval.ParseStringMode("[1,2,3]", sdval.ModeStrict)
	require.NoError(t, err)
	assert.Equal(t, "li", a.TypeString())
}

func TestParseHeterogeneousListPromotesToListOfAny(t *testing.T) {
	a, err := sdval.ParseStringMode(`[1,"x"]`, sdval.ModeLiberal)
	require.NoError(t, err)
	assert.Equal(t, "la", a.TypeString())
}

func TestParseHeterogeneousListRejectedUnderStrict(t *testing.T) {
	_, err := sdval.ParseStringMode(`[1,"x"]`, sdval.ModeStrict)
	require.Error(t, err)
}

func TestParseMap(t *testing.T) {
	a, err := sdval.ParseStringMode(`{"a":1,"b":2}`, sdval.ModeStrict)
	require.NoError(t, err)
	assert.Equal(t, "msi", a.TypeString())
}

func TestParseExplicitAnyWrap(t *testing.T) {
	a, err := sdval.ParseString("<i>5")
	require.NoError(t, err)
	assert.Equal(t, "a", a.TypeString())
}

func TestParseErrLiteral(t *testing.T) {
	a, err := sdval.ParseString(`err("bounds","out of range",<i>5)`)
	require.NoError(t, err)
	assert.Equal(t, "e", a.TypeString())
}

func TestParseTypedOptionalAbsent(t *testing.T) {
	typ, err := grammar.Parse("oi")
	require.NoError(t, err)
	a, err := sdval.ParseTyped("", typ)
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, a.Bytes())
}

func TestParseTypedOptionalPresent(t *testing.T) {
	typ, err := grammar.Parse("oi")
	require.NoError(t, err)
	a, err := sdval.ParseTyped("5", typ)
	require.NoError(t, err)
	assert.Equal(t, byte(1), a.Bytes()[0])
}

func TestParseTrailingCommaAllowed(t *testing.T) {
	a, err := sdval.ParseStringMode("[1,2,3,]", sdval.ModeStrict)
	require.NoError(t, err)
	assert.Equal(t, "li", a.TypeString())
}
