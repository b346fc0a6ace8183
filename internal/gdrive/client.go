package gdrive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const listFields = "nextPageToken, files(id, name, mimeType, size)"

// File is the subset of Drive file metadata the frame uses
type File struct {
	ID       string
	Name     string
	MimeType string
	Size     int64
}

// Service abstracts the Drive calls used by the image source and the uploader
type Service interface {
	// ListFiles returns every file matching a Drive search query
	ListFiles(ctx context.Context, query string) ([]File, error)

	// Download streams the content of a file
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)

	// Create uploads a new file into parentID and returns its ID
	Create(ctx context.Context, name, parentID string, media io.Reader) (string, error)

	// Update replaces the content of an existing file
	Update(ctx context.Context, fileID string, media io.Reader) error
}

// Client implements Service on top of the Drive v3 API
type Client struct {
	logger *zap.Logger
	srv    *drive.Service
}

// NewClient authenticates with a service account key file
func NewClient(ctx context.Context, logger *zap.Logger, credentialsFile string) (*Client, error) {
	if credentialsFile == "" {
		return nil, fmt.Errorf("service account file not configured")
	}
	srv, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &Client{logger: logger, srv: srv}, nil
}

// ListFiles implements Service
func (c *Client) ListFiles(ctx context.Context, query string) ([]File, error) {
	var files []File
	err := c.srv.Files.List().
		Q(query).
		Fields(listFields).
		PageSize(1000).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				files = append(files, File{ID: f.Id, Name: f.Name, MimeType: f.MimeType, Size: f.Size})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list drive files: %w", err)
	}
	c.logger.Debug("Drive files listed", zap.Int("count", len(files)))
	return files, nil
}

// Download implements Service
func (c *Client) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := c.srv.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("failed to download drive file %s: %w", fileID, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// Create implements Service
func (c *Client) Create(ctx context.Context, name, parentID string, media io.Reader) (string, error) {
	meta := &drive.File{Name: name}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	f, err := c.srv.Files.Create(meta).Media(media).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create drive file %s: %w", name, err)
	}
	return f.Id, nil
}

// Update implements Service
func (c *Client) Update(ctx context.Context, fileID string, media io.Reader) error {
	if _, err := c.srv.Files.Update(fileID, &drive.File{}).Media(media).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to update drive file %s: %w", fileID, err)
	}
	return nil
}

// ImagesQuery matches the non-trashed images of a folder
func ImagesQuery(folderID string) string {
	return fmt.Sprintf("'%s' in parents and mimeType contains 'image/' and trashed = false", escape(folderID))
}

// FolderQuery matches every non-trashed file of a folder
func FolderQuery(folderID string) string {
	return fmt.Sprintf("'%s' in parents and trashed = false", escape(folderID))
}

// NameQuery matches a non-trashed file by exact name inside a folder
func NameQuery(folderID, name string) string {
	return fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escape(name), escape(folderID))
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
