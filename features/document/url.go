package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	ErrUnsupportedLink = errors.New("unsupported link")
	ErrNotPDF          = errors.New("fetched file is not a valid PDF")
	ErrFetchFailed     = errors.New("cannot fetch PDF")
)

var driveFilePattern = regexp.MustCompile(`/file/d/([^/]+)`)

// ResolveDownloadURL turns common share links into direct-download URLs.
// Google Drive, Dropbox, OneDrive, and GitHub blob links get rewritten;
// anything else passes through unchanged and is validated against the PDF
// magic bytes after download.
func ResolveDownloadURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("%w: not an absolute URL", ErrUnsupportedLink)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrUnsupportedLink, parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())

	switch {
	case strings.Contains(host, "drive.google.com"):
		// /file/d/<id>/view or ?id=<id> becomes uc?export=download&id=<id>
		id := ""
		if m := driveFilePattern.FindStringSubmatch(parsed.Path); m != nil {
			id = m[1]
		} else {
			id = parsed.Query().Get("id")
		}
		if id == "" {
			return "", fmt.Errorf("%w: unrecognized Google Drive link", ErrUnsupportedLink)
		}
		return "https://drive.google.com/uc?export=download&id=" + url.QueryEscape(id), nil

	case strings.Contains(host, "dropbox.com"):
		q := parsed.Query()
		q.Set("dl", "1")
		direct := url.URL{
			Scheme:   parsed.Scheme,
			Host:     "dl.dropboxusercontent.com",
			Path:     parsed.Path,
			RawQuery: q.Encode(),
		}
		return direct.String(), nil

	case strings.Contains(host, "1drv.ms") || strings.Contains(host, "onedrive.live.com"):
		q := parsed.Query()
		q.Set("download", "1")
		parsed.RawQuery = q.Encode()
		return parsed.String(), nil

	case strings.Contains(host, "github.com"):
		// /owner/repo/blob/branch/path -> raw.githubusercontent.com
		parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
		if len(parts) >= 5 && parts[2] == "blob" {
			owner, repo, branch := parts[0], parts[1], parts[3]
			raw := url.URL{
				Scheme: "https",
				Host:   "raw.githubusercontent.com",
				Path:   "/" + owner + "/" + repo + "/" + branch + "/" + strings.Join(parts[4:], "/"),
			}
			return raw.String(), nil
		}
		return "", fmt.Errorf("%w: unrecognized GitHub link", ErrUnsupportedLink)
	}

	return raw, nil
}

func deriveFilename(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "document.pdf"
	}
	name := path.Base(parsed.Path)
	if name == "" || name == "." || name == "/" {
		return "document.pdf"
	}
	if !strings.EqualFold(path.Ext(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

func isPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// CreateFromURL fetches a PDF from a share or direct link and runs it through
// the same dedup, store, and enqueue path as an uploaded file.
func (s *Service) CreateFromURL(ctx context.Context, rawURL string) (*Document, error) {
	direct, err := ResolveDownloadURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, direct, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, s.maxFetchBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if int64(len(content)) > s.maxFetchBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrFetchFailed, s.maxFetchBytes)
	}
	if !isPDF(content) {
		return nil, ErrNotPDF
	}

	return s.create(ctx, deriveFilename(direct), content)
}
