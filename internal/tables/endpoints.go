package tables

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
)

// API is the set of server operations the rest of the client uses.
// *Client implements it; tests substitute fakes.
type API interface {
	Login(ctx context.Context, creds Credentials) error
	Logout(ctx context.Context) error
	CheckAuth(ctx context.Context) (AuthStatus, error)
	Upload(ctx context.Context, kind UploadKind, filename string, r io.Reader) (StatusMessage, error)
	Start(ctx context.Context) (StatusMessage, error)
	CheckFiles(ctx context.Context) (FileState, error)
	Download(ctx context.Context) (*Payload, error)
	Clear(ctx context.Context) (StatusMessage, error)
	GetLogs(ctx context.Context) ([]string, error)
}

var _ API = (*Client)(nil)

// Login establishes a session. A status "error" answer or a 401 comes back
// as KindRejected carrying the server's message.
func (c *Client) Login(ctx context.Context, creds Credentials) error {
	if strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
		return Validationf("username and password are required")
	}
	body, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	out, err := c.Send(ctx, EndpointLogin, RequestOptions{Body: body, ContentType: "application/json", Attempts: 1})
	if err != nil {
		var reqErr *Error
		if errors.As(err, &reqErr) && reqErr.Kind == KindHTTP && reqErr.Status == 401 {
			return newError(KindRejected, EndpointLogin.Path, "invalid username or password", nil)
		}
		return err
	}
	var msg StatusMessage
	if err := out.Decode(EndpointLogin.Path, &msg); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(msg.Status)) {
	case "success":
		return nil
	case "error":
		return newError(KindRejected, EndpointLogin.Path, rejectedMessage(msg.Message, "invalid username or password"), nil)
	default:
		return newError(KindRejected, EndpointLogin.Path, "unexpected server response", nil)
	}
}

// Logout destroys the session. Any 2xx counts as success, whatever the body.
func (c *Client) Logout(ctx context.Context) error {
	out, err := c.Send(ctx, EndpointLogout, RequestOptions{Attempts: 1})
	if err != nil {
		switch KindOf(err) {
		case KindParse, KindUnexpectedContentType:
			return nil
		}
		return err
	}
	if out.Binary != nil {
		_ = out.Binary.Close()
	}
	return nil
}

// CheckAuth reports whether the current session is authenticated.
func (c *Client) CheckAuth(ctx context.Context) (AuthStatus, error) {
	out, err := c.Send(ctx, EndpointCheckAuth, RequestOptions{})
	if err != nil {
		return AuthStatus{}, err
	}
	var status AuthStatus
	if err := out.Decode(EndpointCheckAuth.Path, &status); err != nil {
		return AuthStatus{}, err
	}
	return status, nil
}

// Upload sends an input workbook. The filename must end in .xlsx; anything
// else is rejected before a request is made.
func (c *Client) Upload(ctx context.Context, kind UploadKind, filename string, r io.Reader) (StatusMessage, error) {
	if _, err := ParseUploadKind(string(kind)); err != nil {
		return StatusMessage{}, err
	}
	if err := ValidateWorkbookName(filename); err != nil {
		return StatusMessage{}, err
	}
	if r == nil {
		return StatusMessage{}, Validationf("no file selected")
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return StatusMessage{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return StatusMessage{}, fmt.Errorf("read upload: %w", err)
	}
	if err := form.WriteField("type", string(kind)); err != nil {
		return StatusMessage{}, fmt.Errorf("write form field: %w", err)
	}
	if err := form.Close(); err != nil {
		return StatusMessage{}, fmt.Errorf("close form: %w", err)
	}

	out, err := c.Send(ctx, EndpointUpload, RequestOptions{Body: buf.Bytes(), ContentType: form.FormDataContentType()})
	if err != nil {
		return StatusMessage{}, err
	}
	return c.statusResult(EndpointUpload, out, "file upload failed")
}

// Start begins the server-side job. It is never retried.
func (c *Client) Start(ctx context.Context) (StatusMessage, error) {
	out, err := c.Send(ctx, EndpointStart, RequestOptions{ContentType: "application/json", Attempts: 1})
	if err != nil {
		return StatusMessage{}, err
	}
	return c.statusResult(EndpointStart, out, "failed to start processing")
}

// CheckFiles reports which workbooks exist on the server. It makes a single
// attempt; pollers count their own failures.
func (c *Client) CheckFiles(ctx context.Context) (FileState, error) {
	out, err := c.Send(ctx, EndpointCheckFiles, RequestOptions{Attempts: 1})
	if err != nil {
		return FileState{}, err
	}
	var state FileState
	if err := out.Decode(EndpointCheckFiles.Path, &state); err != nil {
		return FileState{}, err
	}
	return state, nil
}

// Download opens the result workbook stream. The caller must Close it.
func (c *Client) Download(ctx context.Context) (*Payload, error) {
	out, err := c.Send(ctx, EndpointDownload, RequestOptions{})
	if err != nil {
		return nil, err
	}
	if out.Binary != nil {
		return out.Binary, nil
	}
	var msg StatusMessage
	if err := out.Decode(EndpointDownload.Path, &msg); err != nil {
		return nil, err
	}
	return nil, newError(KindRejected, EndpointDownload.Path, rejectedMessage(msg.Message, "result file not found"), nil)
}

// Clear deletes the server-side workbooks.
func (c *Client) Clear(ctx context.Context) (StatusMessage, error) {
	out, err := c.Send(ctx, EndpointClear, RequestOptions{})
	if err != nil {
		return StatusMessage{}, err
	}
	return c.statusResult(EndpointClear, out, "failed to clear files")
}

// GetLogs fetches the server's recent log lines, oldest first.
func (c *Client) GetLogs(ctx context.Context) ([]string, error) {
	out, err := c.Send(ctx, EndpointGetLogs, RequestOptions{})
	if err != nil {
		return nil, err
	}
	var payload LogsResponse
	if err := out.Decode(EndpointGetLogs.Path, &payload); err != nil {
		return nil, err
	}
	return payload.Logs, nil
}

// ValidateWorkbookName rejects anything that is not an .xlsx file name.
func ValidateWorkbookName(name string) error {
	base := strings.TrimSpace(filepath.Base(name))
	if name == "" || base == "." || base == string(filepath.Separator) {
		return Validationf("no file selected")
	}
	if !strings.HasSuffix(strings.ToLower(base), ".xlsx") {
		return Validationf("only .xlsx files are supported, got %q", base)
	}
	return nil
}

func (c *Client) statusResult(ep Endpoint, out Outcome, fallback string) (StatusMessage, error) {
	var msg StatusMessage
	if err := out.Decode(ep.Path, &msg); err != nil {
		return StatusMessage{}, err
	}
	if !msg.OK() {
		return msg, newError(KindRejected, ep.Path, rejectedMessage(msg.Message, fallback), nil)
	}
	return msg, nil
}

func rejectedMessage(message, fallback string) string {
	if strings.TrimSpace(message) == "" {
		return fallback
	}
	return strings.TrimSpace(message)
}
