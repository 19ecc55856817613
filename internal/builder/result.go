package builder

import (
	"encoding/json"
	"io"
)

// Result is what a build command reports back to the web frontend
type Result struct {
	CmdOutput              string         `json:"cmd_output"`
	Board                  string         `json:"board"`
	ApplicationName        string         `json:"application_name"`
	OutputFile             string         `json:"output_file,omitempty"`
	OutputFileExtension    string         `json:"output_file_extension,omitempty"`
	OutputArchive          string         `json:"output_archive,omitempty"`
	OutputArchiveExtension string         `json:"output_archive_extension,omitempty"`
	Success                bool           `json:"success"`
	Extra                  map[string]any `json:"extra,omitempty"`
}

func newResult(board string) *Result {
	return &Result{
		Board:           board,
		ApplicationName: "application",
		Extra:           map[string]any{},
	}
}

func (r *Result) appendOutput(s string) {
	if s == "" {
		return
	}

	if r.CmdOutput != "" && r.CmdOutput[len(r.CmdOutput)-1] != '\n' {
		r.CmdOutput += "\n"
	}

	r.CmdOutput += s
}

// Write encodes the result as a single JSON document
func (r *Result) Write(w io.Writer) error {
	return json.NewEncoder(w).Encode(r)
}
