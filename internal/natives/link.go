package natives

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"

	"github.com/hyperifyio/cmdbot/internal/apperr"
	"github.com/hyperifyio/cmdbot/internal/command"
)

const (
	defaultLinkTimeout  = 10 * time.Second
	defaultLinkMaxBytes = 5 << 20 // 5 MiB
	maxRedirects        = 5
	maxExcerptRunes     = 280
)

func limitRedirects(_ *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("too many redirects")
	}
	return nil
}

type linkPreviewer struct {
	client   *http.Client
	maxBytes int64
}

type preview struct {
	Title   string
	Excerpt string
}

func (p *linkPreviewer) preview(ctx context.Context, call *command.Call) error {
	raw := firstToken(call.Invocation.Args)
	if raw == "" {
		return call.Reply(ctx, "Please use as follows: `!!link <url>`.")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return call.Reply(ctx, "only http and https links can be previewed.")
	}

	pv, err := p.fetch(ctx, u)
	if err != nil {
		call.Logger.Warn("link preview failed", "url", u.Redacted(), "error", err)
		return call.Reply(ctx, "could not preview that link.")
	}
	if pv.Title == "" && pv.Excerpt == "" {
		return call.Reply(ctx, "no preview available for that link.")
	}
	title := pv.Title
	if title == "" {
		title = u.Host
	}
	text := "**" + title + "**"
	if pv.Excerpt != "" {
		text += "\n" + pv.Excerpt
	}
	return call.Reply(ctx, text)
}

func (p *linkPreviewer) fetch(ctx context.Context, u *url.URL) (preview, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return preview{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", "cmdbot-link-preview/0.1")

	resp, err := p.client.Do(req)
	if err != nil {
		return preview{}, apperr.Wrap(apperr.CodeExternalService, "fetch link", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		return preview{}, apperr.New(apperr.CodeExternalService, fmt.Sprintf("fetch link: status %d", resp.StatusCode))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes))
	if err != nil {
		return preview{}, fmt.Errorf("read body: %w", err)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	var pv preview
	if mediaType == "application/pdf" || bytes.HasPrefix(data, []byte("%PDF-")) {
		pv, err = pdfPreview(data)
	} else {
		pv, err = htmlPreview(data, u)
	}
	if err != nil {
		return preview{}, err
	}
	pv.Title = clip(pv.Title, maxExcerptRunes)
	pv.Excerpt = clip(pv.Excerpt, maxExcerptRunes)
	return pv, nil
}

func htmlPreview(data []byte, base *url.URL) (preview, error) {
	art, err := readability.FromReader(bytes.NewReader(data), base)
	if err != nil {
		return preview{}, fmt.Errorf("readability extract: %w", err)
	}
	excerpt := art.Excerpt
	if excerpt == "" {
		excerpt = art.TextContent
	}
	return preview{Title: art.Title, Excerpt: excerpt}, nil
}

// pdfPreview reads the document title and the first page's text. The pdf
// package panics on some malformed inputs.
func pdfPreview(data []byte) (pv preview, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return preview{}, fmt.Errorf("open pdf: %w", err)
	}
	pv.Title = r.Trailer().Key("Info").Key("Title").Text()
	if r.NumPage() > 0 {
		page := r.Page(1)
		if !page.V.IsNull() {
			if text, perr := page.GetPlainText(nil); perr == nil {
				pv.Excerpt = text
			}
		}
	}
	return pv, nil
}

// clip collapses whitespace and caps s at n runes.
func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
