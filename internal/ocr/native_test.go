package ocr

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
)

func mkXLSX(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Item"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Budget"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Cleaning"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 1200))
	_, err := f.NewSheet("Notes")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Notes", "A1", "Year ending 31 March 2024"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func mkDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestNative_XLSX(t *testing.T) {
	e := NewNativeEngine(0, nil)
	doc := NewDocument("budget.xlsx", "", mkXLSX(t))
	require.True(t, e.Supports(doc))

	out, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Pages)
	assert.Equal(t, "Sheet1\nItem\tBudget\nCleaning\t1200\n\fNotes\nYear ending 31 March 2024\n", out.Text)
}

func TestNative_DOCX(t *testing.T) {
	body := `<w:p><w:r><w:t>Gas Safety Record</w:t></w:r></w:p>` +
		`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>Engineer</w:t></w:r></w:p></w:tc>` +
		`<w:tc><w:p><w:r><w:t xml:space="preserve">J </w:t></w:r><w:r><w:t>Smith</w:t></w:r></w:p></w:tc></w:tr></w:tbl>` +
		`<w:p><w:r><w:t>Gas Safe</w:t><w:tab/><w:t>123456</w:t><w:br/><w:t>next line</w:t></w:r></w:p>`
	out, err := NewNativeEngine(0, nil).Extract(context.Background(), NewDocument("cp12.docx", "", mkDOCX(t, body)))
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Gas Safety Record\n")
	assert.Contains(t, out.Text, "Engineer\n\tJ Smith\n\t")
	assert.Contains(t, out.Text, "Gas Safe\t123456\nnext line\n")
}

func TestNative_DOCXWithoutDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("word/styles.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = NewNativeEngine(0, nil).Extract(context.Background(), NewDocument("x.docx", "", buf.Bytes()))
	assert.ErrorContains(t, err, "document.xml not found")
}

func TestNative_HTML(t *testing.T) {
	page := `<html><head><style>.x{color:red}</style><script>var secret = 1</script></head>
<body><h1>Fire Risk Assessment</h1><p>Premises: 1 High Street</p>
<table><tr><td>Risk level</td><td>Moderate</td></tr></table></body></html>`
	out, err := NewNativeEngine(0, nil).Extract(context.Background(), NewDocument("fra.html", "text/html", []byte(page)))
	require.NoError(t, err)
	text := Normalize(out.Text)
	assert.Contains(t, text, "Fire Risk Assessment")
	assert.Contains(t, text, "Premises: 1 High Street")
	assert.Contains(t, text, "Risk level")
	assert.NotContains(t, text, "secret")
	assert.NotContains(t, text, "color:red")
}

const sampleEML = "From: agent@example.com\r\n" +
	"To: intake@example.com\r\n" +
	"Subject: Insurance schedule\r\n" +
	"Date: Mon, 3 Jul 2023 10:00:00 +0000\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Please find the renewal schedule attached.\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; name=\"schedule.txt\"\r\n" +
	"Content-Disposition: attachment; filename=\"schedule.txt\"\r\n" +
	"\r\n" +
	"Policy number: ABC123\r\n" +
	"--b1\r\n" +
	"Content-Type: application/octet-stream; name=\"blob.bin\"\r\n" +
	"Content-Disposition: attachment; filename=\"blob.bin\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"AAEC\r\n" +
	"--b1--\r\n"

func TestNative_EML(t *testing.T) {
	out, err := NewNativeEngine(0, nil).Extract(context.Background(), NewDocument("mail.eml", "message/rfc822", []byte(sampleEML)))
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Subject: Insurance schedule")
	assert.Contains(t, out.Text, "From: agent@example.com")
	assert.Contains(t, out.Text, "Please find the renewal schedule attached.")
	assert.Contains(t, out.Text, "\f[attachment: schedule.txt]\nPolicy number: ABC123")
	assert.Equal(t, 2, out.Pages)
	assert.Contains(t, strings.Join(out.Warnings, "\n"), `"blob.bin"`)
}

func TestNative_TXTEncodings(t *testing.T) {
	utf16, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().String("Lease of Flat 4")
	require.NoError(t, err)

	cases := map[string][]byte{
		"utf8":   []byte("Lease of Flat 4"),
		"bom":    append([]byte{0xEF, 0xBB, 0xBF}, "Lease of Flat 4"...),
		"utf16":  []byte(utf16),
		"cp1252": {'L', 'e', 'a', 's', 'e', ' ', 'o', 'f', ' ', 'F', 'l', 'a', 't', ' ', '4'},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := NewNativeEngine(0, nil).Extract(context.Background(), NewDocument("lease.txt", "text/plain", data))
			require.NoError(t, err)
			assert.Equal(t, "Lease of Flat 4", out.Text)
		})
	}

	got, err := plainText([]byte{'R', 'e', 'n', 't', ' ', 0xA3, '5', '0'})
	require.NoError(t, err)
	assert.Equal(t, "Rent £50", got)
}

func TestNative_Unsupported(t *testing.T) {
	e := NewNativeEngine(0, nil)
	doc := NewDocument("scan.png", "image/png", []byte{0x89, 'P', 'N', 'G'})
	assert.False(t, e.Supports(doc))
	_, err := e.Extract(context.Background(), doc)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestNative_BrokenPDF(t *testing.T) {
	_, err := NewNativeEngine(0, nil).Extract(context.Background(), NewDocument("x.pdf", "application/pdf", []byte("not a pdf")))
	assert.Error(t, err)
}
