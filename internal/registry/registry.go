package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	aicchttp "github.com/quinteroac/ai-content-creator/internal/http"
	"github.com/quinteroac/ai-content-creator/internal/layout"
)

// Sentinel errors for registry resolution.
// Use errors.Is() to check for specific conditions.
var (
	// ErrNotFound indicates the identifier or version does not exist.
	ErrNotFound = errors.New("registry: model not found")

	// ErrUnauthorized indicates the artifact is access-gated and the
	// token was missing or rejected. Terminal, never retried.
	ErrUnauthorized = errors.New("registry: unauthorized")

	// ErrRateLimited indicates the registry throttled the request.
	ErrRateLimited = errors.New("registry: rate limited")

	// ErrNetwork indicates a transport-level failure.
	ErrNetwork = errors.New("registry: network error")

	// ErrNoFiles indicates the resolved version carries no downloadable file.
	ErrNoFiles = errors.New("registry: version has no files")
)

// Metadata describes a resolved artifact. Never mutated after resolution.
type Metadata struct {
	DisplayName string
	Type        layout.ModelType
	FileURL     string
	FileName    string
	SizeBytes   int64
}

// modelDoc is the registry's model index document.
type modelDoc struct {
	Name     string       `json:"name"`
	Type     string       `json:"type"`
	Versions []versionDoc `json:"modelVersions"`
}

// versionDoc is the registry's model-version document.
type versionDoc struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Model struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"model"`
	Files       []fileDoc `json:"files"`
	DownloadURL string    `json:"downloadUrl"`
}

type fileDoc struct {
	Name        string  `json:"name"`
	SizeKB      float64 `json:"sizeKB"`
	Primary     bool    `json:"primary"`
	DownloadURL string  `json:"downloadUrl"`
}

// Resolver queries the remote registry for artifact metadata.
type Resolver struct {
	baseURL string
	client  *aicchttp.Client
}

// NewResolver creates a resolver against the given registry base URL.
func NewResolver(baseURL string, client *aicchttp.Client) *Resolver {
	return &Resolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Resolve fetches metadata for a model identifier and optional version
// identifier. It is a pure query: transient registry failures are retried
// with backoff by the underlying client, terminal ones surface immediately.
func (r *Resolver) Resolve(ctx context.Context, identifier, versionIdentifier, accessToken string) (Metadata, error) {
	if versionIdentifier != "" {
		return r.resolveVersion(ctx, versionIdentifier, accessToken)
	}
	return r.resolveModel(ctx, identifier, accessToken)
}

// resolveModel fetches the model document and selects its first version.
func (r *Resolver) resolveModel(ctx context.Context, identifier, token string) (Metadata, error) {
	url := fmt.Sprintf("%s/api/v1/models/%s", r.baseURL, identifier)

	var doc modelDoc
	if err := r.client.GetJSON(ctx, url, token, &doc); err != nil {
		return Metadata{}, mapError(err)
	}

	if len(doc.Versions) == 0 {
		return Metadata{}, fmt.Errorf("%w: model %s has no versions", ErrNotFound, identifier)
	}
	version := doc.Versions[0]

	meta, err := r.fromVersion(version, doc.Name, doc.Type)
	if err != nil {
		return Metadata{}, err
	}
	return r.fillSize(ctx, meta, token), nil
}

// resolveVersion fetches one specific model-version document.
func (r *Resolver) resolveVersion(ctx context.Context, versionIdentifier, token string) (Metadata, error) {
	url := fmt.Sprintf("%s/api/v1/model-versions/%s", r.baseURL, versionIdentifier)

	var doc versionDoc
	if err := r.client.GetJSON(ctx, url, token, &doc); err != nil {
		return Metadata{}, mapError(err)
	}

	meta, err := r.fromVersion(doc, doc.Model.Name, doc.Model.Type)
	if err != nil {
		return Metadata{}, err
	}
	return r.fillSize(ctx, meta, token), nil
}

// fromVersion builds Metadata from a version document, preferring the
// primary file.
func (r *Resolver) fromVersion(v versionDoc, displayName, typeName string) (Metadata, error) {
	var file *fileDoc
	for i := range v.Files {
		if v.Files[i].Primary {
			file = &v.Files[i]
			break
		}
	}
	if file == nil && len(v.Files) > 0 {
		file = &v.Files[0]
	}

	meta := Metadata{
		DisplayName: displayName,
		Type:        layout.ParseModelType(typeName),
	}

	switch {
	case file != nil:
		meta.FileURL = file.DownloadURL
		meta.FileName = file.Name
		meta.SizeBytes = int64(file.SizeKB * 1024)
	case v.DownloadURL != "":
		meta.FileURL = v.DownloadURL
	default:
		return Metadata{}, ErrNoFiles
	}

	if meta.FileURL == "" {
		return Metadata{}, ErrNoFiles
	}
	if meta.FileName == "" {
		meta.FileName = fallbackFileName(displayName)
	}
	return meta, nil
}

// fallbackFileName derives a usable file name from the display name for
// versions whose file entries omit one.
func fallbackFileName(displayName string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ':
			return '-'
		}
		return -1
	}, displayName)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "model"
	}
	return slug + ".safetensors"
}

// fillSize probes the file URL for its size when the index omitted it.
// Best effort: a failed probe leaves SizeBytes at zero rather than failing
// the resolution.
func (r *Resolver) fillSize(ctx context.Context, meta Metadata, token string) Metadata {
	if meta.SizeBytes > 0 {
		return meta
	}
	info, err := r.client.Head(ctx, meta.FileURL, token)
	if err == nil && info.Size > 0 {
		meta.SizeBytes = info.Size
	}
	return meta
}

// mapError translates transport-level sentinel errors into the
// resolution taxonomy.
func mapError(err error) error {
	switch {
	case errors.Is(err, aicchttp.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, aicchttp.ErrUnauthorized), errors.Is(err, aicchttp.ErrForbidden):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case errors.Is(err, aicchttp.ErrRateLimited):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	default:
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
}
