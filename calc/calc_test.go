package calc

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculator(t *testing.T) {
	cases := []struct {
		expr string
		want string
	}{
		{"2+2", "4"},
		{"2/10", "0.2"},
		{"2 / 10", "0.2"},
		{"1 + 2 * 3", "7"},
		{"(1 + 2) * 3", "9"},
		{"-3 + 5", "2"},
		{"--4", "4"},
		{"-(2 + 3) * 2", "-10"},
		{"10 % 3", "1"},
		{"-7 % 3", "2"},
		{"7 % -3", "-2"},
		{"1.5e3 / 3", "500"},
		{"2000000000 / 10000000000", "0.2"},
		{".5 + .25", "0.75"},
		{"100 * (25 - 20) / 20", "25"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Calculator(tc.expr), "expr %q", tc.expr)
	}
}

func TestCalculatorDivisionByZero(t *testing.T) {
	out := Calculator("1/0")
	assert.True(t, strings.HasPrefix(out, "Error: "), out)
	assert.Contains(t, out, "division by zero")

	_, err := Evaluate("5 % (2 - 2)")
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestCalculatorRejectsCode(t *testing.T) {
	for _, expr := range []string{
		"__import__('os')",
		"__import__('os').system('ls')",
		"abs(-1)",
		"2 ** 3",
		"1,000 + 1",
		"$10 / 2",
		"x + 1",
	} {
		out := Calculator(expr)
		assert.True(t, strings.HasPrefix(out, "Error: "), "expr %q gave %q", expr, out)

		_, err := Evaluate(expr)
		assert.True(t, errors.Is(err, ErrSyntax), "expr %q: %v", expr, err)
	}
}

func TestEvaluateSyntaxErrors(t *testing.T) {
	for _, expr := range []string{"", "   ", "1 +", "(1 + 2", "1 + 2)", "()", "3 4", "1..2", "*2"} {
		_, err := Evaluate(expr)
		require.Error(t, err, "expr %q", expr)
		assert.ErrorIs(t, err, ErrSyntax, "expr %q", expr)
	}
}

func TestEvaluateRejectsNonFinite(t *testing.T) {
	_, err := Evaluate("1e308 * 10")
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestEvaluateNestingLimit(t *testing.T) {
	_, err := Evaluate(strings.Repeat("(", 200) + "1" + strings.Repeat(")", 200))
	assert.ErrorIs(t, err, ErrSyntax)

	_, err = Evaluate(strings.Repeat("-", 200) + "1")
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "4", Format(4))
	assert.Equal(t, "0.2", Format(0.2))
	assert.Equal(t, "-1.25", Format(-1.25))
	assert.Equal(t, "1000000", Format(1e6))
}
