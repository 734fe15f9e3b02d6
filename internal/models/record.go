package models

import "strconv"

// FileRecord is one ingested document as stored in the files table.
type FileRecord struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Filedata string `json:"filedata"`
}

// ResponseRecord is one prompt/response pair as stored in the responses table.
type ResponseRecord struct {
	ID       string `json:"id"`
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// FormatID renders a session-scoped identifier the way it is persisted.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
