package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"gastoflow/pkg/config"

	"go.uber.org/zap"
)

// OpenKMService replicates each attached file into the OpenKM document
// archive through its WebDAV interface, under
// <collection-root>/<user>/<year>/<month>/<file>. Replication is best-effort
// unless FailOnError is set: the primary copy in blob storage is authoritative
// and a broken archive must not break attachments.
type OpenKMService struct {
	cfg          *config.OpenKMConfig
	httpClient   *http.Client
	baseURL      string
	restBaseURL  string
	authHeader   string
	rootSegments []string
	logger       *zap.Logger
}

var etagPattern = regexp.MustCompile(`<[^>]*getetag[^>]*>([^<]+)</`)

const propfindGetetagBody = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<propfind xmlns="DAV:"><prop><getetag/></prop></propfind>`

func NewOpenKMService(cfg *config.OpenKMConfig, logger *zap.Logger) *OpenKMService {
	s := &OpenKMService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
	if cfg.Enabled {
		s.baseURL = ensureTrailingSlash(cfg.WebDAVURL)
		s.restBaseURL = deriveRestBaseURL(s.baseURL)
		s.authHeader = basicAuth(cfg.Username, cfg.Password)
		s.rootSegments = parseSegments(cfg.CollectionRoot)
	}
	return s
}

// Store ensures the folder chain exists, uploads the document, and resolves a
// durable document id. It returns ("", nil) when replication is disabled or
// fails in best-effort mode; the error return only fires with FailOnError.
func (s *OpenKMService) Store(ctx context.Context, expenseID int64, fileName string, data []byte, contentType, userFolder string, dateSegments [2]string) (string, error) {
	if !s.cfg.Enabled {
		return "", nil
	}

	folder := append(append([]string{}, s.rootSegments...), userFolder, dateSegments[0], dateSegments[1])
	document := append(append([]string{}, folder...), fileName)

	if err := s.replicate(ctx, folder, document, data, contentType); err != nil {
		s.logger.Error("Failed to replicate document to OpenKM",
			zap.Int64("expense_id", expenseID),
			zap.Error(err),
		)
		if s.cfg.FailOnError {
			return "", fmt.Errorf("failed to store document in OpenKM: %w", err)
		}
		return "", nil
	}

	okmPath := strings.Join(document, "/")
	s.logger.Debug("Expense document replicated to OpenKM",
		zap.Int64("expense_id", expenseID),
		zap.String("path", okmPath),
	)

	return s.resolveDocumentID(ctx, document), nil
}

func (s *OpenKMService) replicate(ctx context.Context, folder, document []string, data []byte, contentType string) error {
	if err := s.ensureCollections(ctx, folder); err != nil {
		return err
	}
	return s.uploadDocument(ctx, document, data, normalizeContentType(contentType))
}

// ensureCollections issues MKCOL for every ancestor in order. 405 and 409 are
// success: the collection already exists or the node is a protected root.
// Safe to race across concurrent attaches sharing a year/month folder.
func (s *OpenKMService) ensureCollections(ctx context.Context, segments []string) error {
	current := make([]string, 0, len(segments))
	for i, segment := range segments {
		current = append(current, segment)

		if s.cfg.RootFixedNode && i == 0 {
			// okm:root ships with OpenKM; creating it is always an error.
			continue
		}

		req, err := http.NewRequestWithContext(ctx, "MKCOL", s.resolve(joinSegments(current)), nil)
		if err != nil {
			return fmt.Errorf("failed to create MKCOL request: %w", err)
		}
		req.Header.Set("Authorization", s.authHeader)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("MKCOL %s: %w", joinSegments(current), err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		status := resp.StatusCode
		if status == http.StatusCreated || status == http.StatusMethodNotAllowed || status == http.StatusConflict {
			continue
		}
		if status >= 200 && status < 300 {
			continue
		}
		return fmt.Errorf("MKCOL %s => %d", joinSegments(current), status)
	}
	return nil
}

func (s *OpenKMService) uploadDocument(ctx context.Context, pathSegments []string, payload []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.resolve(joinSegments(pathSegments)), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create PUT request: %w", err)
	}
	req.Header.Set("Authorization", s.authHeader)
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("PUT %s: %w", strings.Join(pathSegments, "/"), err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("PUT %s => %d", strings.Join(pathSegments, "/"), resp.StatusCode)
	}
	return nil
}

// resolveDocumentID tries each resolution strategy in order and keeps the
// first non-empty id. Exhaustion yields "" rather than an error: the bytes
// are already durably written in both stores.
func (s *OpenKMService) resolveDocumentID(ctx context.Context, document []string) string {
	resolvers := []func(context.Context, []string) (string, error){
		s.uuidFromPropfind,
		s.uuidFromRestPath,
	}

	okmPath := strings.Join(document, "/")
	for _, resolve := range resolvers {
		id, err := resolve(ctx, document)
		if err != nil {
			s.logger.Warn("Document id resolution attempt failed",
				zap.String("path", okmPath),
				zap.Error(err),
			)
			continue
		}
		if id != "" {
			return id
		}
	}

	s.logger.Warn("Could not resolve OpenKM document id", zap.String("path", okmPath))
	return ""
}

// uuidFromPropfind asks WebDAV for the document's entity tag; OpenKM encodes
// the node uuid as the etag prefix before the first underscore.
func (s *OpenKMService) uuidFromPropfind(ctx context.Context, document []string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "PROPFIND", s.resolve(joinSegments(document)), strings.NewReader(propfindGetetagBody))
	if err != nil {
		return "", fmt.Errorf("failed to create PROPFIND request: %w", err)
	}
	req.Header.Set("Authorization", s.authHeader)
	req.Header.Set("Depth", "0")
	req.Header.Set("Content-Type", "text/xml")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("PROPFIND: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return "", fmt.Errorf("PROPFIND => %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read PROPFIND response: %w", err)
	}

	match := etagPattern.FindStringSubmatch(string(body))
	if match == nil {
		return "", nil
	}
	rawTag := match[1]
	if idx := strings.Index(rawTag, "_"); idx > 0 {
		return rawTag[:idx], nil
	}
	return rawTag, nil
}

// uuidFromRestPath is the fallback strategy: the REST path-to-uuid lookup,
// which answers with the identifier as a quoted string.
func (s *OpenKMService) uuidFromRestPath(ctx context.Context, document []string) (string, error) {
	okmPath := strings.Join(document, "/")
	endpoint := s.restBaseURL + "document/getUuidFromPath?path=" + url.QueryEscape("/"+okmPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create uuid lookup request: %w", err)
	}
	req.Header.Set("Authorization", s.authHeader)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("getUuidFromPath: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("getUuidFromPath %s => %d", okmPath, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read uuid lookup response: %w", err)
	}

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) && len(trimmed) >= 2 {
		trimmed = trimmed[1 : len(trimmed)-1]
	}
	return trimmed, nil
}

func (s *OpenKMService) resolve(encodedPath string) string {
	return s.baseURL + encodedPath
}

func joinSegments(segments []string) string {
	encoded := make([]string, len(segments))
	for i, segment := range segments {
		encoded[i] = encodeSegment(segment)
	}
	return strings.Join(encoded, "/")
}

func parseSegments(rawPath string) []string {
	var segments []string
	for _, part := range strings.Split(rawPath, "/") {
		part = strings.TrimSpace(part)
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

// encodeSegment url-encodes a path segment while keeping the characters
// OpenKM expects verbatim (":" in okm:root) and encoding spaces as %20.
func encodeSegment(segment string) string {
	sanitized := strings.TrimSpace(strings.ReplaceAll(segment, "\\", "_"))
	if sanitized == "" {
		sanitized = "_"
	}
	encoded := url.QueryEscape(sanitized)
	encoded = strings.ReplaceAll(encoded, "+", "%20")
	encoded = strings.ReplaceAll(encoded, "%2F", "/")
	encoded = strings.ReplaceAll(encoded, "%3A", ":")
	return encoded
}

func ensureTrailingSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}

// deriveRestBaseURL maps the WebDAV URL onto the sibling REST API root, e.g.
// http://host/webdav/ -> http://host/services/rest/.
func deriveRestBaseURL(webdavURL string) string {
	idx := strings.LastIndex(webdavURL, "/webdav/")
	root := webdavURL
	if idx >= 0 {
		root = webdavURL[:idx+1]
	}
	return ensureTrailingSlash(root) + "services/rest/"
}

func basicAuth(username, password string) string {
	token := username + ":" + password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(token))
}

func normalizeContentType(contentType string) string {
	if strings.TrimSpace(contentType) == "" {
		return "application/octet-stream"
	}
	return contentType
}
