// Package format shells out to the sail formatter. The formatter run is a
// one-shot process, independent of the interactive analysis session.
package format

import (
	"bytes"
	"os/exec"
)

// Run formats content by piping it through
// `<sailPath> --fmt --fmt-emit stdout`. The file path is passed along when
// known so the formatter can pick up per-file context. Any failure (spawn
// error, non-zero exit) means "no formatting available" and returns ok=false;
// it is never surfaced to the editor as an error.
func Run(sailPath, filePath, content string) (string, bool) {
	args := []string{"--fmt", "--fmt-emit", "stdout"}
	if filePath != "" {
		args = append(args, filePath)
	}
	cmd := exec.Command(sailPath, args...)
	cmd.Stdin = bytes.NewReader([]byte(content))
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", false
	}
	return out.String(), true
}
