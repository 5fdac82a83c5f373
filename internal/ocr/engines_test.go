package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/doc-intake/internal/common"
)

type call struct {
	name string
	args []string
}

// stubRunner answers commands from a handler and records them.
type stubRunner struct {
	mu      sync.Mutex
	calls   []call
	handler func(name string, args []string) ([]byte, []byte, error)
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{name: name, args: args})
	s.mu.Unlock()
	return s.handler(name, args)
}

func TestPdftotext_Args(t *testing.T) {
	r := &stubRunner{handler: func(_ string, args []string) ([]byte, []byte, error) {
		// the temp file must exist while the command runs
		_, err := os.Stat(args[len(args)-2])
		require.NoError(t, err)
		return []byte("page one\fpage two\f"), nil, nil
	}}
	e := NewPdftotextEngine("", 3, r)
	out, err := e.Extract(context.Background(), pdfDoc())
	require.NoError(t, err)

	assert.Equal(t, "page one\fpage two", out.Text)
	assert.Equal(t, 2, out.Pages)
	require.Len(t, r.calls, 1)
	assert.Equal(t, "pdftotext", r.calls[0].name)
	assert.Equal(t, []string{"-layout", "-enc", "UTF-8", "-eol", "unix", "-l", "3"}, r.calls[0].args[:7])
	assert.Equal(t, "-", r.calls[0].args[8])

	_, err = os.Stat(r.calls[0].args[7])
	assert.True(t, os.IsNotExist(err), "temp file removed")
}

func TestPdftotext_FailureCarriesStderr(t *testing.T) {
	r := &stubRunner{handler: func(string, []string) ([]byte, []byte, error) {
		return nil, []byte("Syntax Error: Couldn't find trailer dictionary"), errors.New("exit status 1")
	}}
	out, err := NewPdftotextEngine("pdftotext", 0, r).Extract(context.Background(), pdfDoc())
	require.Error(t, err)
	assert.Contains(t, out.Warnings[0], "trailer dictionary")
}

func TestTesseract_Image(t *testing.T) {
	r := &stubRunner{handler: func(name string, args []string) ([]byte, []byte, error) {
		return []byte("LIFT INSPECTION REPORT\f"), nil, nil
	}}
	e := NewTesseractEngine(TesseractConfig{Lang: "eng+fra", TessdataDir: "/tessdata"}, r, nil)
	doc := NewDocument("lift.png", "image/png", []byte{0x89, 'P', 'N', 'G'})
	require.True(t, e.Supports(doc))

	out, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "LIFT INSPECTION REPORT", out.Text)
	assert.Equal(t, 1, out.Pages)
	require.Len(t, r.calls, 1)
	assert.Equal(t, "tesseract", r.calls[0].name)
	assert.Equal(t, []string{"stdout", "-l", "eng+fra", "--tessdata-dir", "/tessdata"}, r.calls[0].args[1:])
}

func TestTesseract_PDFRasterisesPages(t *testing.T) {
	r := &stubRunner{}
	r.handler = func(name string, args []string) ([]byte, []byte, error) {
		switch name {
		case "pdftoppm":
			prefix := args[len(args)-1]
			for i := 1; i <= 2; i++ {
				require.NoError(t, os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, i), []byte("png"), 0o644))
			}
			return nil, nil, nil
		case "tesseract":
			if strings.HasSuffix(args[0], "-2.png") {
				return []byte("second"), nil, nil
			}
			return []byte("first"), nil, nil
		}
		return nil, nil, fmt.Errorf("unexpected %s", name)
	}
	e := NewTesseractEngine(TesseractConfig{MaxPages: 4}, r, nil)
	out, err := e.Extract(context.Background(), pdfDoc())
	require.NoError(t, err)

	assert.Equal(t, "first\fsecond", out.Text)
	assert.Equal(t, 2, out.Pages)
	require.Len(t, r.calls, 3)
	assert.Equal(t, []string{"-r", "300", "-png", "-l", "4"}, r.calls[0].args[:5])
}

func TestTesseract_HEICNeedsConverter(t *testing.T) {
	r := &stubRunner{handler: func(string, []string) ([]byte, []byte, error) { return nil, nil, nil }}
	e := NewTesseractEngine(TesseractConfig{}, r, nil)
	_, err := e.Extract(context.Background(), NewDocument("photo.heic", "", []byte("heic")))
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Empty(t, r.calls)
}

func TestTesseract_HEICConvertedAndCached(t *testing.T) {
	cache := t.TempDir()
	r := &stubRunner{}
	r.handler = func(name string, args []string) ([]byte, []byte, error) {
		switch name {
		case "magick":
			return nil, nil, os.WriteFile(args[1], []byte("png"), 0o644)
		case "tesseract":
			assert.True(t, strings.HasPrefix(args[0], cache))
			return []byte("ASBESTOS"), nil, nil
		}
		return nil, nil, fmt.Errorf("unexpected %s", name)
	}
	e := NewTesseractEngine(TesseractConfig{HeicConverter: "magick", ArtifactCacheDir: cache}, r, nil)
	doc := NewDocument("photo.heic", "", []byte("heic-bytes"))

	for i := 0; i < 2; i++ {
		out, err := e.Extract(context.Background(), doc)
		require.NoError(t, err)
		assert.Equal(t, "ASBESTOS", out.Text)
	}
	converts := 0
	for _, c := range r.calls {
		if c.name == "magick" {
			converts++
		}
	}
	assert.Equal(t, 1, converts, "second run reads the cached PNG")
}

func visionServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		assert.NoError(t, json.Unmarshal(body, &req))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "images:annotate"):
			_, _ = io.WriteString(w, `{"responses":[{"fullTextAnnotation":{"text":"EPC rating C"}}]}`)
		case strings.HasSuffix(r.URL.Path, "files:annotate"):
			_, _ = io.WriteString(w, `{"responses":[{"totalPages":7,"responses":[`+
				`{"fullTextAnnotation":{"text":"page 1"}},`+
				`{"error":{"code":3,"message":"bad page"}},`+
				`{"fullTextAnnotation":{"text":"page 3"}}]}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestVision(t *testing.T, srv *httptest.Server) *VisionEngine {
	t.Helper()
	e, err := NewVisionEngine(context.Background(), "", 0, nil,
		option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return e
}

func TestVision_Image(t *testing.T) {
	srv := visionServer(t)
	defer srv.Close()
	e := newTestVision(t, srv)

	out, err := e.Extract(context.Background(), NewDocument("epc.jpg", "image/jpeg", []byte("jpeg")))
	require.NoError(t, err)
	assert.Equal(t, "EPC rating C", out.Text)
	assert.Equal(t, 1, out.Pages)
}

func TestVision_PDF(t *testing.T) {
	srv := visionServer(t)
	defer srv.Close()
	e := newTestVision(t, srv)

	out, err := e.Extract(context.Background(), pdfDoc())
	require.NoError(t, err)
	assert.Equal(t, "page 1\f\fpage 3", out.Text)
	assert.Equal(t, 3, out.Pages)
	joined := strings.Join(out.Warnings, "\n")
	assert.Contains(t, joined, "page 2: vision: bad page")
	assert.Contains(t, joined, "3 of 7 pages")
}

func TestVision_SkipsHEIC(t *testing.T) {
	srv := visionServer(t)
	defer srv.Close()
	e := newTestVision(t, srv)
	assert.False(t, e.Supports(NewDocument("photo.heic", "", nil)))
	assert.False(t, e.Supports(NewDocument("notes.txt", "", nil)))
}

func TestBuildEngines(t *testing.T) {
	engines, err := BuildEngines(context.Background(), common.OCRConfig{
		Engines: []string{"native", "pdftotext", "tesseract"},
	}, &stubRunner{}, nil)
	require.NoError(t, err)
	names := make([]string, len(engines))
	for i, e := range engines {
		names[i] = e.Name()
	}
	assert.Equal(t, []string{"native", "pdftotext", "tesseract"}, names)

	_, err = BuildEngines(context.Background(), common.OCRConfig{Engines: []string{"vision"}}, nil, nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = BuildEngines(context.Background(), common.OCRConfig{Engines: []string{"abbyy"}}, nil, nil)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
