package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/joseph-ayodele/doc-intake/constants"
)

const htmlBlocks = "p, div, br, li, tr, h1, h2, h3, h4, h5, h6, table, section, article, header, footer, blockquote, pre"

// htmlText drops scripts and styles and keeps block boundaries as newlines.
func htmlText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()
	doc.Find(htmlBlocks).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	doc.Find("td, th").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\t")
	})
	return doc.Text(), nil
}

// emlText reads headers, bodies and any attachment the native engine can
// read itself. Attachment failures become warnings.
func emlText(ctx context.Context, data []byte, maxPages int, logger *slog.Logger) (Output, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(data))
	if err != nil {
		return Output{}, fmt.Errorf("read eml: %w", err)
	}

	var b strings.Builder
	for _, h := range []string{"From", "To", "Date", "Subject"} {
		if v := strings.TrimSpace(env.GetHeader(h)); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", h, v)
		}
	}
	b.WriteByte('\n')

	switch {
	case strings.TrimSpace(env.Text) != "":
		b.WriteString(env.Text)
	case env.HTML != "":
		if t, err := htmlText([]byte(env.HTML)); err == nil {
			b.WriteString(t)
		}
	}

	out := Output{Pages: 1}
	for _, att := range env.Attachments {
		if ctx.Err() != nil {
			return Output{}, ctx.Err()
		}
		name := strings.TrimSpace(att.FileName)
		format := constants.FormatOf(name, att.ContentType)
		var (
			text string
			err  error
		)
		switch format {
		case constants.PDF:
			text, _, err = pdfText(att.Content, maxPages)
		case constants.DOCX:
			text, err = docxText(att.Content)
		case constants.XLSX:
			text, _, err = xlsxText(att.Content)
		case constants.HTML:
			text, err = htmlText(att.Content)
		case constants.TXT:
			text, err = plainText(att.Content)
		default:
			out.Warnings = append(out.Warnings, fmt.Sprintf("attachment %q (%s) not readable natively", name, att.ContentType))
			continue
		}
		if err != nil {
			logger.Debug("ocr.native.attachment.fail", "attachment", name, "err", err)
			out.Warnings = append(out.Warnings, fmt.Sprintf("attachment %q: %v", name, err))
			continue
		}
		fmt.Fprintf(&b, "\f[attachment: %s]\n%s", filepath.Base(name), text)
		out.Pages++
	}
	for _, e := range env.Errors {
		out.Warnings = append(out.Warnings, e.Error())
	}
	out.Text = b.String()
	return out, nil
}

// plainText decodes BOM-marked UTF-8/UTF-16 and falls back to Windows-1252
// for bytes that are not valid UTF-8.
func plainText(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return string(data[3:]), nil
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder(), data)
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return decodeWith(unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder(), data)
	case utf8.Valid(data):
		return string(data), nil
	}
	return decodeWith(charmap.Windows1252.NewDecoder(), data)
}

func decodeWith(t transform.Transformer, data []byte) (string, error) {
	out, _, err := transform.Bytes(t, data)
	if err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	return strings.ReplaceAll(string(out), "\x00", ""), nil
}
