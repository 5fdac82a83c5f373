package dates

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"15/07/2023", "2023-07-15"},
		{"15-07-2023", "2023-07-15"},
		{"15.07.2023", "2023-07-15"},
		{"15 July 2023", "2023-07-15"},
		{"15th July 2023", "2023-07-15"},
		{"15 Jul 2023", "2023-07-15"},
		{"15/07/23", "2023-07-15"},
		{"5/7/2023", "2023-07-05"},
		{"2023-07-15", "2023-07-15"},
		{"July 15, 2023", "2023-07-15"},
		{"1st of March 2024", "2024-03-01"},
		{"3 Sept 2022", "2022-09-03"},
		{"1 Sept. 2023", "2023-09-01"},
		{"4 Feb. 2024", "2024-02-04"},
		{"2023-07-15T10:00:00Z", "2023-07-15"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Normalize(tt.in)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeRejects(t *testing.T) {
	for _, in := range []string{"", "soon", "32/01/2023", "15/13/2023", "next Tuesday"} {
		_, ok := Normalize(in)
		assert.False(t, ok, in)
	}
}

func TestFind(t *testing.T) {
	text := "ELECTRICAL INSTALLATION CONDITION REPORT\n" +
		"Date of inspection: 15/07/2023\n" +
		"Next inspection due 14 July 2028\n" +
		"Reference 12/345"

	found := Find(text)
	require.Len(t, found, 2)
	assert.Equal(t, "Date of inspection", found[0].Label)
	assert.Equal(t, "2023-07-15", found[0].ISO)
	assert.Equal(t, "15/07/2023", found[0].Raw)
	assert.Equal(t, "Next inspection due", found[1].Label)
	assert.Equal(t, "2028-07-14", found[1].ISO)
}

func TestFindNoDates(t *testing.T) {
	assert.Empty(t, Find("no dates in here at all"))
}

func TestFindLongLabelStaysValidUTF8(t *testing.T) {
	line := strings.Repeat("€", 40) + " Inspection date: 15/07/2023"
	found := Find(line)
	require.Len(t, found, 1)
	assert.True(t, utf8.ValidString(found[0].Label))
	assert.Contains(t, found[0].Label, "Inspection date")
}

func TestFindAbbreviatedMonthWithPeriod(t *testing.T) {
	found := Find("Issued 1 Sept. 2023")
	require.Len(t, found, 1)
	assert.Equal(t, "2023-09-01", found[0].ISO)
	assert.Equal(t, "Issued", found[0].Label)
}
