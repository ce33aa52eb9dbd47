package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/google/go-github/v81/github"

	"github.com/mike-a-ellis/docubot/internal/document"
)

// ErrNotAFile is returned when the requested path is a directory or symlink.
var ErrNotAFile = errors.New("path is not a regular file")

// FetchedFile is one file downloaded from a repository.
type FetchedFile struct {
	Path    string // Path within the repository
	Name    string // Base name, used as the upload name
	Content []byte
	SHA     string // Git blob SHA
	URL     string // Download URL
}

// Fetcher reads files from one repository at one ref.
type Fetcher struct {
	client *Client
	owner  string
	repo   string
	ref    string
}

// NewFetcher creates a fetcher. An empty ref means the default branch.
func NewFetcher(client *Client, owner, repo, ref string) *Fetcher {
	return &Fetcher{
		client: client,
		owner:  owner,
		repo:   repo,
		ref:    ref,
	}
}

// FetchFile downloads the file at filePath. Files with an extension the ingestor
// cannot read are rejected before any request is made.
func (f *Fetcher) FetchFile(ctx context.Context, filePath string) (*FetchedFile, error) {
	name := path.Base(filePath)
	if !document.IsSupported(name) {
		return nil, fmt.Errorf("%w: %s", document.ErrUnsupportedFormat, name)
	}

	opts := &github.RepositoryContentGetOptions{Ref: f.ref}
	fileContent, _, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, filePath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", filePath, err)
	}
	if fileContent == nil || fileContent.GetType() != "file" {
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, filePath)
	}

	var content []byte
	if fileContent.GetEncoding() == "none" {
		// Files over 1 MB come back without inline content.
		content, err = f.download(ctx, filePath, opts)
	} else {
		var s string
		s, err = fileContent.GetContent()
		content = []byte(s)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", filePath, err)
	}

	return &FetchedFile{
		Path:    fileContent.GetPath(),
		Name:    name,
		Content: content,
		SHA:     fileContent.GetSHA(),
		URL:     fileContent.GetDownloadURL(),
	}, nil
}

func (f *Fetcher) download(ctx context.Context, filePath string, opts *github.RepositoryContentGetOptions) ([]byte, error) {
	rc, _, err := f.client.Repositories.DownloadContents(ctx, f.owner, f.repo, filePath, opts)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ListDocuments recursively lists the ingestible files under dir.
func (f *Fetcher) ListDocuments(ctx context.Context, dir string) ([]string, error) {
	opts := &github.RepositoryContentGetOptions{Ref: f.ref}
	_, dirContents, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", dir, err)
	}

	var docs []string
	for _, item := range dirContents {
		switch item.GetType() {
		case "file":
			if document.IsSupported(item.GetName()) {
				docs = append(docs, item.GetPath())
			}
		case "dir":
			sub, err := f.ListDocuments(ctx, item.GetPath())
			if err != nil {
				return nil, err
			}
			docs = append(docs, sub...)
		}
	}
	return docs, nil
}
