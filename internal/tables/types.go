package tables

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const serverTimestampLayout = "2006-01-02 15:04:05"

// Expect names the response body an endpoint normally produces.
type Expect int

const (
	ExpectJSON Expect = iota
	ExpectBinary
)

// Endpoint describes one server route.
type Endpoint struct {
	Name    string
	Path    string
	Method  string
	Expects Expect
}

var (
	EndpointLogin      = Endpoint{Name: "login", Path: "/login", Method: http.MethodPost, Expects: ExpectJSON}
	EndpointLogout     = Endpoint{Name: "logout", Path: "/logout", Method: http.MethodPost, Expects: ExpectJSON}
	EndpointCheckAuth  = Endpoint{Name: "check_auth", Path: "/check_auth", Method: http.MethodGet, Expects: ExpectJSON}
	EndpointUpload     = Endpoint{Name: "upload", Path: "/upload", Method: http.MethodPost, Expects: ExpectJSON}
	EndpointStart      = Endpoint{Name: "start", Path: "/start", Method: http.MethodPost, Expects: ExpectJSON}
	EndpointCheckFiles = Endpoint{Name: "check_files", Path: "/check_files", Method: http.MethodGet, Expects: ExpectJSON}
	EndpointDownload   = Endpoint{Name: "download", Path: "/download", Method: http.MethodGet, Expects: ExpectBinary}
	EndpointClear      = Endpoint{Name: "clear", Path: "/clear", Method: http.MethodPost, Expects: ExpectJSON}
	EndpointGetLogs    = Endpoint{Name: "get_logs", Path: "/get_logs", Method: http.MethodGet, Expects: ExpectJSON}
)

// Endpoints lists every route the client talks to.
func Endpoints() []Endpoint {
	return []Endpoint{
		EndpointLogin,
		EndpointLogout,
		EndpointCheckAuth,
		EndpointUpload,
		EndpointStart,
		EndpointCheckFiles,
		EndpointDownload,
		EndpointClear,
		EndpointGetLogs,
	}
}

// Outcome is a successful response: exactly one of JSON or Binary is set.
type Outcome struct {
	JSON   json.RawMessage
	Binary *Payload
}

// Decode unmarshals a JSON outcome into dest.
func (o Outcome) Decode(endpoint string, dest any) error {
	if o.JSON == nil {
		if o.Binary != nil {
			_ = o.Binary.Close()
		}
		return newError(KindUnexpectedContentType, endpoint, "expected a JSON response", nil)
	}
	if err := json.Unmarshal(o.JSON, dest); err != nil {
		return newError(KindParse, endpoint, "decode response", err)
	}
	return nil
}

// Payload is an unread binary response body. Callers must Close it; closing
// also releases the request context.
type Payload struct {
	ContentType string
	Filename    string
	Size        int64 // Content-Length, -1 when unknown

	body    io.ReadCloser
	release func()
	once    sync.Once
}

// NewPayload wraps body as a Payload. release may be nil.
func NewPayload(body io.ReadCloser, contentType, filename string, release func()) *Payload {
	return &Payload{ContentType: contentType, Filename: filename, Size: -1, body: body, release: release}
}

func (p *Payload) Read(b []byte) (int, error) {
	return p.body.Read(b)
}

// Close releases the body and the request context. Safe to call twice.
func (p *Payload) Close() error {
	var err error
	p.once.Do(func() {
		err = p.body.Close()
		if p.release != nil {
			p.release()
		}
	})
	return err
}

// StatusMessage is the {status, message} envelope most endpoints return.
type StatusMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// OK reports whether the server answered status "success".
func (s StatusMessage) OK() bool {
	return strings.EqualFold(strings.TrimSpace(s.Status), "success")
}

// Credentials is the /login request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthStatus mirrors /check_auth.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	User          string `json:"user"`
	LoginTime     string `json:"login_time"`
}

// ParsedLoginTime returns LoginTime as time.Time, zero when absent or unparseable.
func (a AuthStatus) ParsedLoginTime() time.Time {
	return parseTime(a.LoginTime)
}

// FileState mirrors /check_files and drives the file indicators.
type FileState struct {
	Sklad      bool   `json:"sklad_exists"`
	Reestr     bool   `json:"reestr_exists"`
	Result     bool   `json:"exit_exists"`
	WorkingDir string `json:"working_dir"`
}

// Missing names the input workbooks the server does not have yet.
func (f FileState) Missing() []string {
	var missing []string
	if !f.Sklad {
		missing = append(missing, UploadSklad.Filename())
	}
	if !f.Reestr {
		missing = append(missing, UploadReestr.Filename())
	}
	return missing
}

// LogsResponse mirrors /get_logs.
type LogsResponse struct {
	Logs []string `json:"logs"`
}

// UploadKind selects which input slot an upload fills.
type UploadKind string

const (
	UploadSklad  UploadKind = "sklad"
	UploadReestr UploadKind = "reestr"
)

// ParseUploadKind validates a user-supplied upload kind.
func ParseUploadKind(value string) (UploadKind, error) {
	switch kind := UploadKind(strings.ToLower(strings.TrimSpace(value))); kind {
	case UploadSklad, UploadReestr:
		return kind, nil
	}
	return "", Validationf("unknown file type %q (want sklad or reestr)", value)
}

// Filename is the name the server stores the upload under.
func (k UploadKind) Filename() string {
	return fmt.Sprintf("%s.xlsx", string(k))
}

// ResultFilename is the local name of a downloaded result.
const ResultFilename = "result.xlsx"

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	if t, err := time.ParseInLocation(serverTimestampLayout, value, time.Local); err == nil {
		return t
	}
	return time.Time{}
}
