package finding

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := map[string]Severity{
		"HIGH":    High,
		" medium": Medium,
		"info":    Info,
		"bogus":   Info,
		"":        Info,
	}
	for in, want := range tests {
		assert.Equal(t, want, Parse(in), in)
	}
}

func TestScoreOrdering(t *testing.T) {
	all := All()
	for i := 1; i < len(all); i++ {
		assert.Greater(t, all[i-1].Score(), all[i].Score())
	}
	assert.Equal(t, 0, Severity("nope").Score())
	assert.False(t, Severity("nope").IsValid())
}

func TestCompare_SortsMostSevereFirst(t *testing.T) {
	got := []Severity{Info, High, Low, Critical, Medium}
	slices.SortFunc(got, Compare)
	assert.Equal(t, All(), got)
}

func TestColor(t *testing.T) {
	for _, s := range All() {
		assert.NotEmpty(t, s.Color())
	}
	assert.Equal(t, Info.Color(), Severity("x").Color())
}
