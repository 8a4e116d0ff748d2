package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/llamcomm/internal/apperr"
	"github.com/starford/llamcomm/internal/filestore"
	"github.com/starford/llamcomm/internal/models"
)

const maxImageSize = 10 << 20 // 10 MB

var (
	mimeToExt = map[string]string{
		"image/png":  ".png",
		"image/jpeg": ".jpg",
	}

	safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

type uploadResult struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Size     int    `json:"size"`
}

func (s *Server) uploadImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uri, err := req.RequireString("data_uri")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	folder, err := req.RequireString("folder")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, detectedExt, err := decodeDataURI(uri)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(data) > maxImageSize {
		return mcp.NewToolResultError(fmt.Sprintf("file too large: %d bytes (max %d)", len(data), maxImageSize)), nil
	}

	filename := req.GetString("filename", "")
	if filename == "" {
		filename = uuid.New().String() + detectedExt
	}
	filename = sanitizeFilename(filename)
	if filepath.Ext(filename) == "" {
		filename += detectedExt
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !models.IsImageExt(ext) {
		return mcp.NewToolResultError(fmt.Sprintf("Unsupported image extension: %s", ext)), nil
	}
	if err := validateMagicBytes(data, ext); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	src, err := stageTemp(data, ext)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to stage image: %v", err)), nil
	}
	defer os.Remove(src)

	resp, err := s.store.Create(ctx, folder, filestore.CreateInput{
		Filename: filename,
		Payload:  models.ImagePayload{Source: src},
	})
	if err != nil {
		return mcp.NewToolResultError(apperr.Message(err)), nil
	}

	out, _ := json.Marshal(uploadResult{Message: resp.Message, Filename: resp.Filename, Size: len(data)})
	return mcp.NewToolResultText(string(out)), nil
}

// stageTemp writes data to a uuid-named file in the temp dir so it can act
// as an image source path.
func stageTemp(data []byte, ext string) (string, error) {
	p := filepath.Join(os.TempDir(), "llamcomm-"+uuid.New().String()+ext)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", err
	}
	return p, nil
}

// decodeDataURI parses a data:<mediatype>;base64,<data> URI.
func decodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI: missing data: prefix")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI: missing comma separator")
	}
	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base64 data: %w", err)
		}
	}

	mt := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	ext := mimeToExt[mt]
	if ext == "" {
		return nil, "", fmt.Errorf("unsupported MIME type in data URI: %s", mt)
	}
	return data, ext, nil
}

// sanitizeFilename strips path separators and unsafe characters.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = safeFilenameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." {
		name = uuid.New().String()
	}
	return name
}

// validateMagicBytes verifies the content matches the declared extension.
func validateMagicBytes(data []byte, ext string) error {
	detected := http.DetectContentType(data)
	got := mimeToExt[strings.Split(detected, ";")[0]]

	switch ext {
	case ".jpg", ".jpeg":
		if got != ".jpg" {
			return fmt.Errorf("content does not match extension %s (detected: %s)", ext, detected)
		}
	default:
		if got != ext {
			return fmt.Errorf("content does not match extension %s (detected: %s)", ext, detected)
		}
	}
	return nil
}
