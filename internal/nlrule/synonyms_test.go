package nlrule

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynonyms_OperatorFor(t *testing.T) {
	syn := DefaultSynonyms().normalized()

	tests := []struct {
		phrase string
		want   Operator
	}{
		{"greater than", OpGreater},
		{"Greater  Than", OpGreater},
		{"greater than or equal to", OpGreaterEqual},
		{"is greater than or equal to", OpGreaterEqual},
		{"on or before", OpLessEqual},
		{"does not equal", OpNotEqual},
		{"between", OpWithin},
		{"<=", OpLessEqual},
	}
	for _, tt := range tests {
		got, ok := syn.OperatorFor(tt.phrase)
		require.True(t, ok, tt.phrase)
		assert.Equal(t, tt.want, got, tt.phrase)
	}

	_, ok := syn.OperatorFor("resembles")
	assert.False(t, ok)
	_, ok = syn.OperatorFor("")
	assert.False(t, ok)
}

func TestSynonyms_FindOperator(t *testing.T) {
	syn := DefaultSynonyms().normalized()

	m, ok := syn.FindOperator("discharge should be no later than the review date")
	require.True(t, ok)
	assert.Equal(t, OpLessEqual, m.Op)
	assert.Equal(t, "no later than", m.Phrase)

	// "afternoon" is not "after".
	_, ok = syn.FindOperator("visit in the afternoon")
	assert.False(t, ok)
}

func TestSynonyms_Markers(t *testing.T) {
	syn := DefaultSynonyms()

	assert.True(t, syn.IsCondition("If"))
	assert.True(t, syn.IsCondition("unless"))
	assert.True(t, syn.IsNegatedCondition("UNLESS"))
	assert.False(t, syn.IsNegatedCondition("if"))
	assert.True(t, syn.IsThen("then"))
	assert.True(t, syn.IsElse("otherwise"))
	assert.True(t, syn.IsMarker("and"))
	assert.False(t, syn.IsMarker("priority"))

	sym, ok := syn.LogicalFor("OR")
	require.True(t, ok)
	assert.Equal(t, "||", sym)
}

func TestSynonyms_CloneIsIndependent(t *testing.T) {
	a := DefaultSynonyms()
	b := a.Clone()
	b.Operators["outranks"] = OpGreater
	b.Then[0] = "so"

	_, ok := a.Operators["outranks"]
	assert.False(t, ok)
	assert.Equal(t, "then", a.Then[0])
}

func TestLoadSynonyms(t *testing.T) {
	t.Run("extends default", func(t *testing.T) {
		src := `
extends_default: true
operators:
  Outranks: ">"
conditions: ["Provided"]
`
		syn, err := LoadSynonyms(strings.NewReader(src))
		require.NoError(t, err)

		op, ok := syn.OperatorFor("outranks")
		require.True(t, ok)
		assert.Equal(t, OpGreater, op)
		op, ok = syn.OperatorFor("greater than")
		require.True(t, ok)
		assert.Equal(t, OpGreater, op)
		assert.True(t, syn.IsCondition("provided"))
		assert.True(t, syn.IsCondition("if"))
	})

	t.Run("standalone", func(t *testing.T) {
		src := `
operators:
  above: ">"
conditions: [if]
then: [then]
`
		syn, err := LoadSynonyms(strings.NewReader(src))
		require.NoError(t, err)
		_, ok := syn.OperatorFor("greater than")
		assert.False(t, ok)
	})

	errCases := map[string]string{
		"unknown symbol":  "operators: {above: '=>'}\nconditions: [if]\nthen: [then]\n",
		"unknown key":     "operators: {above: '>'}\nconditions: [if]\nthen: [then]\nthens: [so]\n",
		"no conditions":   "operators: {above: '>'}\nthen: [then]\n",
		"no operators":    "conditions: [if]\nthen: [then]\n",
		"bad logical":     "extends_default: true\nlogical: {plus: '+'}\n",
		"malformed yaml":  "operators: [\n",
		"empty document":  "",
		"no then markers": "operators: {above: '>'}\nconditions: [if]\n",
	}
	for name, src := range errCases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadSynonyms(strings.NewReader(src))
			assert.Error(t, err)
		})
	}
}

func TestWriteSynonyms_RoundTripsThroughLoad(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSynonyms(&buf, DefaultSynonyms()))

	syn, err := LoadSynonyms(&buf)
	require.NoError(t, err)
	assert.Equal(t, DefaultSynonyms().normalized(), syn)
}

func TestLoadSynonymsFile_Missing(t *testing.T) {
	_, err := LoadSynonymsFile(t.TempDir() + "/missing.yaml")
	assert.Error(t, err)
}
