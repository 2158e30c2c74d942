package handler

import (
	"fmt"
	"os"

	"github.com/codeassist/suggestd/src/suggestd/internal/serverinfofile"
)

const _pidKey = "pid"

// Output the server's process id so that editor extensions can detect a stale
// info file left behind by a crashed daemon.
// Other connection methods (e.g. JSON-RPC) independently add their address fields to the Server Info file.
func outputProcessInfo(infofile serverinfofile.ServerInfoFile) error {
	if err := infofile.UpdateField(_pidKey, fmt.Sprintf("%d", os.Getpid())); err != nil {
		return fmt.Errorf("outputting %q to info file: %w", _pidKey, err)
	}
	return nil
}
