// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the record store to LLM agents over stdio.
package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"mime"
	"path"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/llamcomm/internal/apperr"
	"github.com/starford/llamcomm/internal/filestore"
	"github.com/starford/llamcomm/internal/index"
	"github.com/starford/llamcomm/internal/models"
)

const contractURI = "llamcomm://record-format"

// Searcher runs index queries. *index.DB satisfies it.
type Searcher interface {
	Search(q index.Query) ([]index.SearchResult, error)
}

// Server wraps the MCP server with record tools.
type Server struct {
	mcp    *server.MCPServer
	store  *filestore.Store
	search Searcher
}

// New creates a new MCP server with all tools registered. search may be
// nil, which disables search_records.
func New(store *filestore.Store, search Searcher, version string) *Server {
	s := &Server{store: store, search: search}

	s.mcp = server.NewMCPServer(
		"llamcomm",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	recordArgs := []mcp.ToolOption{
		mcp.WithString("folder", mcp.Required(), mcp.Description("Folder relative to the store root (e.g. projA/sprint1)")),
		mcp.WithString("file_type", mcp.Required(), mcp.Description("img, script, info or task"), mcp.Enum("img", "image", "script", "info", "task")),
		mcp.WithString("content", mcp.Description("Text body; for img the path of the source image")),
		mcp.WithString("status", mcp.Description("Task status line (task only)")),
		mcp.WithString("script_ext", mcp.Description("Script extension, e.g. py (script only)")),
	}

	s.mcp.AddTool(mcp.NewTool("create_record", append([]mcp.ToolOption{
		mcp.WithDescription("Create a record. Read the llamcomm://record-format resource for naming rules."),
		mcp.WithString("filename", mcp.Description("Target name; if empty, autor/data/titulo/tipo are required")),
		mcp.WithString("autor", mcp.Description("Author part of a generated name")),
		mcp.WithString("data", mcp.Description("Date part of a generated name")),
		mcp.WithString("titulo", mcp.Description("Title part of a generated name")),
		mcp.WithString("tipo", mcp.Description("Type part of a generated name")),
	}, recordArgs...)...), s.createRecord)

	s.mcp.AddTool(mcp.NewTool("update_record", append([]mcp.ToolOption{
		mcp.WithDescription("Replace a record's content and/or prepend a new task status."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Existing file name inside folder")),
	}, recordArgs...)...), s.updateRecord)

	s.mcp.AddTool(mcp.NewTool("delete_record",
		mcp.WithDescription("Delete a record."),
		mcp.WithString("folder", mcp.Required(), mcp.Description("Folder relative to the store root")),
		mcp.WithString("filename", mcp.Required(), mcp.Description("File name inside folder")),
	), s.deleteRecord)

	s.mcp.AddTool(mcp.NewTool("read_record",
		mcp.WithDescription("Read a record. Images are returned as image content."),
		mcp.WithString("folder", mcp.Required(), mcp.Description("Folder relative to the store root")),
		mcp.WithString("filename", mcp.Required(), mcp.Description("File name inside folder")),
	), s.readRecord)

	s.mcp.AddTool(mcp.NewTool("list_folder",
		mcp.WithDescription("Render a folder as an indented tree."),
		mcp.WithString("folder", mcp.Required(), mcp.Description("Folder relative to the store root")),
		mcp.WithBoolean("recursive", mcp.Description("Include subfolders")),
	), s.listFolder)

	s.mcp.AddTool(mcp.NewTool("search_records",
		mcp.WithDescription("Search indexed records by text, folder, kind and task status."),
		mcp.WithString("query", mcp.Description("Text to match")),
		mcp.WithString("folder", mcp.Description("Folder prefix")),
		mcp.WithString("file_type", mcp.Description("img, script, info or task")),
		mcp.WithString("status", mcp.Description("Task status")),
	), s.searchRecords)

	s.mcp.AddTool(mcp.NewTool("upload_image",
		mcp.WithDescription("Store a base64 data URI (png or jpeg) as an image record."),
		mcp.WithString("data_uri", mcp.Required(), mcp.Description("data:image/png;base64,...")),
		mcp.WithString("folder", mcp.Required(), mcp.Description("Folder relative to the store root")),
		mcp.WithString("filename", mcp.Description("Target name; a uuid is used when empty")),
	), s.uploadImage)

	s.mcp.AddTool(mcp.NewTool("get_record_contract",
		mcp.WithDescription("Returns the record naming and format rules."),
	), s.getRecordContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Record Format",
			mcp.WithResourceDescription("Naming, kinds and task status layout of stored records."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// requestFromArgs maps tool arguments onto a files-manager request.
func requestFromArgs(op string, req mcp.CallToolRequest) filestore.Request {
	r := filestore.Request{
		Operation:  op,
		FolderName: req.GetString("folder", ""),
		FileType:   req.GetString("file_type", ""),
		Filename:   req.GetString("filename", ""),
		Status:     req.GetString("status", ""),
		Author:     req.GetString("autor", ""),
		Date:       req.GetString("data", ""),
		Title:      req.GetString("titulo", ""),
		Type:       req.GetString("tipo", ""),
		ScriptExt:  req.GetString("script_ext", ""),
		Recursive:  req.GetBool("recursive", false),
	}
	if v, ok := req.GetArguments()["content"].(string); ok {
		r.Content = &v
	}
	return r
}

func (s *Server) handle(ctx context.Context, freq filestore.Request) (*mcp.CallToolResult, error) {
	resp, err := s.store.Handle(ctx, freq)
	if err != nil {
		return mcp.NewToolResultError(apperr.Message(err)), nil
	}
	if resp.Error != "" {
		return mcp.NewToolResultError(resp.Error), nil
	}
	out, _ := json.Marshal(resp)
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handle(ctx, requestFromArgs(filestore.OpCreate, req))
}

func (s *Server) updateRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.handle(ctx, requestFromArgs(filestore.OpUpdate, req))
}

func (s *Server) deleteRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder, err := req.RequireString("folder")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := s.store.Delete(ctx, folder, filename)
	if err != nil {
		return mcp.NewToolResultError(apperr.Message(err)), nil
	}
	if resp.Error != "" {
		return mcp.NewToolResultError(resp.Error), nil
	}
	return mcp.NewToolResultText(resp.Message + ": " + resp.Filename), nil
}

func (s *Server) listFolder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder, err := req.RequireString("folder")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	structure, err := s.store.List(ctx, folder, req.GetBool("recursive", false))
	if err != nil {
		return mcp.NewToolResultError(apperr.Message(err)), nil
	}
	return mcp.NewToolResultText(structure), nil
}

func (s *Server) readRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder, err := req.RequireString("folder")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.store.Read(ctx, folder, filename)
	if err != nil {
		return mcp.NewToolResultError(apperr.Message(err)), nil
	}
	if rec.Kind == models.KindImage {
		mt := mime.TypeByExtension(path.Ext(rec.Path))
		return mcp.NewToolResultImage(rec.Path, base64.StdEncoding.EncodeToString(rec.Content), mt), nil
	}
	return mcp.NewToolResultText(string(rec.Content)), nil
}

func (s *Server) searchRecords(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.search == nil {
		return mcp.NewToolResultError("search index unavailable"), nil
	}
	q := index.Query{
		Text:   req.GetString("query", ""),
		Folder: req.GetString("folder", ""),
		Status: req.GetString("status", ""),
	}
	if k := req.GetString("file_type", ""); k != "" {
		kind, err := models.ParseKind(k)
		if err != nil {
			return mcp.NewToolResultError(apperr.Message(err)), nil
		}
		q.Kind = kind
	}
	results, err := s.search.Search(q)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no records found"), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getRecordContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RecordFormatContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     RecordFormatContract,
		},
	}, nil
}
