package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"crlf and tabs", "Landlord:\t\tAcme Ltd\r\nTenant:  Bob\r\n", "Landlord: Acme Ltd\nTenant: Bob"},
		{"nbsp", "Total\u00a0\u00a0£120", "Total £120"},
		{"blank runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"box noise", "Header\n------\nBody\n ==== \n", "Header\n\nBody"},
		{"pages kept", "page one  \n\n\n\f\n page two", "page one\fpage two"},
		{"invalid utf8", "ok\xffok", "okok"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestMeaningfulChars(t *testing.T) {
	assert.Equal(t, 0, MeaningfulChars(" \n\t\f\x00"))
	assert.Equal(t, 6, MeaningfulChars("a b\nc\fd e f"))
	assert.Equal(t, 3, MeaningfulChars("£ 1 €"))
}
