// Package protocol defines the JSON types exchanged with API clients.
package protocol

// ErrorResponse is returned on API errors. Error carries a stable
// machine-readable code such as INVALID_TOKEN or FILE_NOT_FOUND.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// LoginResponse is returned by POST /admin/login.
type LoginResponse struct {
	Token string `json:"token"`
}

// ListResponse is returned by GET /admin/api/sms/{folder}.
type ListResponse struct {
	Files   []FileRecord `json:"files"`
	Total   int          `json:"total"`
	Page    int          `json:"page"`
	PerPage int          `json:"per_page"`
	Pages   int          `json:"pages"`
}

// FileRecord describes one spool file. Modified is seconds since the epoch;
// ModifiedISO is the same instant in RFC 3339 UTC. Phone and Preview come
// from best-effort header/body parsing; Content is only set on single-file
// reads.
type FileRecord struct {
	Filename    string  `json:"filename"`
	Folder      string  `json:"folder,omitempty"`
	Size        int64   `json:"size"`
	Modified    float64 `json:"modified"`
	ModifiedISO string  `json:"modified_iso"`
	Phone       string  `json:"phone,omitempty"`
	Preview     string  `json:"preview,omitempty"`
	Content     string  `json:"content,omitempty"`
}

// SendResponse is returned by POST /send-sms and POST /admin/api/send-test-sms.
type SendResponse struct {
	Status string `json:"status"`
	File   string `json:"file"`
}

// Watch event names, in the shape streamed over /admin/ws.
const (
	EventHeartbeat   = "heartbeat"
	EventNewFile     = "new_file"
	EventRemovedFile = "removed_file"
)

// WatchEvent is one message on the /admin/ws stream. Heartbeats carry only
// the event name; new_file carries File, removed_file carries Filename.
type WatchEvent struct {
	Event    string      `json:"event"`
	Folder   string      `json:"folder,omitempty"`
	File     *FileRecord `json:"file,omitempty"`
	Filename string      `json:"filename,omitempty"`
}
