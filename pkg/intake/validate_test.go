package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestYearValue(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		rejects bool
	}{
		{name: "lower bound", input: "1001", want: 1001},
		{name: "upper bound", input: "2030", want: 2030},
		{name: "trimmed", input: " 1984 ", want: 1984},
		{name: "too early", input: "1000", rejects: true},
		{name: "too late", input: "2031", rejects: true},
		{name: "negative", input: "-5", rejects: true},
		{name: "not a number", input: "sometime", rejects: true},
		{name: "empty", input: "", rejects: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := YearValue(tt.input)
			if tt.rejects {
				assert.Error(t, err)
				assert.True(t, IsRejection(err))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPositiveCount(t *testing.T) {
	n, err := PositiveCount("320")
	assert.NoError(t, err)
	assert.Equal(t, 320, n)

	_, err = PositiveCount("0")
	assert.True(t, IsRejection(err))

	_, err = PositiveCount("-3")
	assert.True(t, IsRejection(err))

	_, err = PositiveCount("many")
	assert.True(t, IsRejection(err))
}

func TestCharCountValue(t *testing.T) {
	n, err := CharCountValue("850 000")
	assert.NoError(t, err)
	assert.Equal(t, 850000, n)

	n, err = CharCountValue("0")
	assert.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = CharCountValue("lots")
	assert.True(t, IsRejection(err))
}

func TestPriorityValue(t *testing.T) {
	for input, want := range map[string]int{"1": 1, "3": 3, "5": 5} {
		n, err := PriorityValue(input)
		assert.NoError(t, err)
		assert.Equal(t, want, n)
	}
	for _, input := range []string{"0", "6", "high", ""} {
		_, err := PriorityValue(input)
		assert.True(t, IsRejection(err), "input %q", input)
	}
}

func TestFormatValue(t *testing.T) {
	f, err := FormatValue(" Physical ")
	assert.NoError(t, err)
	assert.Equal(t, "physical", f)

	f, err = FormatValue("DIGITAL")
	assert.NoError(t, err)
	assert.Equal(t, "digital", f)

	_, err = FormatValue("paperback")
	assert.True(t, IsRejection(err))
}

func TestSourceValue(t *testing.T) {
	v, skipped, err := SourceValue("Shop")
	assert.NoError(t, err)
	assert.False(t, skipped)
	assert.Equal(t, "shop", v)

	v, skipped, err = SourceValue("-")
	assert.NoError(t, err)
	assert.True(t, skipped)
	assert.Empty(t, v)

	_, _, err = SourceValue("torrent")
	assert.True(t, IsRejection(err))
}

func TestIsSkip(t *testing.T) {
	assert.True(t, IsSkip("-"))
	assert.True(t, IsSkip("skip"))
	assert.True(t, IsSkip("  SKIP  "))
	assert.False(t, IsSkip("skipper"))
	assert.False(t, IsSkip(""))
}

func TestOptionalText(t *testing.T) {
	assert.Equal(t, "", OptionalText("-"))
	assert.Equal(t, "", OptionalText("skip"))
	assert.Equal(t, "notes here", OptionalText("  notes here  "))
}

func TestRequiredText(t *testing.T) {
	v, err := RequiredText("  Dune ")
	assert.NoError(t, err)
	assert.Equal(t, "Dune", v)

	_, err = RequiredText("   ")
	assert.True(t, IsRejection(err))
}

func TestYesNo(t *testing.T) {
	for _, input := range []string{"yes", "Y", "true", "1"} {
		v, err := YesNo(input)
		assert.NoError(t, err)
		assert.True(t, v)
	}
	for _, input := range []string{"no", "N", "false", "0"} {
		v, err := YesNo(input)
		assert.NoError(t, err)
		assert.False(t, v)
	}
	_, err := YesNo("maybe")
	assert.True(t, IsRejection(err))
}
