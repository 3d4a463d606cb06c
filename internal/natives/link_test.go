package natives

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func articleHTML() string {
	para := strings.Repeat("Goroutines and channels make concurrent programs pleasant to write. ", 12)
	return `<!doctype html><html><head><title>Concurrency Notes</title>
<meta name="description" content="A short summary of concurrency in Go."></head>
<body><article><h1>Concurrency Notes</h1>
<p>` + para + `</p><p>` + para + `</p><p>` + para + `</p>
</article></body></html>`
}

func samplePDF(t *testing.T) []byte {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetTitle("Quarterly Report", false)
	doc.AddPage()
	doc.SetFont("Arial", "", 12)
	doc.Cell(40, 10, "Hello from a PDF")
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func newLinkServer(t *testing.T) *httptest.Server {
	t.Helper()
	pdfBytes := samplePDF(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML()))
	})
	mux.HandleFunc("/report.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdfBytes)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLink_HTMLPreview(t *testing.T) {
	srv := newLinkServer(t)
	h := newHarness(t, Options{HTTPClient: srv.Client()})

	reply := h.mustInvoke(t, "!!link "+srv.URL+"/article")
	assert.True(t, strings.HasPrefix(reply, "**Concurrency Notes**"), reply)
	assert.Contains(t, reply, "concurren")
}

func TestLink_PDFPreview(t *testing.T) {
	srv := newLinkServer(t)
	h := newHarness(t, Options{HTTPClient: srv.Client()})

	reply := h.mustInvoke(t, "!!link "+srv.URL+"/report.pdf")
	assert.True(t, strings.HasPrefix(reply, "**Quarterly Report**"), reply)
}

func TestLink_Failures(t *testing.T) {
	srv := newLinkServer(t)
	h := newHarness(t, Options{HTTPClient: srv.Client()})

	assert.Equal(t, "could not preview that link.", h.mustInvoke(t, "!!link "+srv.URL+"/missing"))
	assert.Equal(t, "only http and https links can be previewed.", h.mustInvoke(t, "!!link file:///etc/passwd"))
	assert.Contains(t, h.mustInvoke(t, "!!link"), "Please use as follows")
}

func TestClip(t *testing.T) {
	assert.Equal(t, "a b c", clip("  a\n b\t c ", 10))
	assert.Equal(t, "abc…", clip("abcdef", 3))
}
