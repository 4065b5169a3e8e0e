package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"fsoi/internal/config"
	"fsoi/internal/request"
)

const maxInputBytes = 1 << 20

// readRequestBody returns the raw request JSON from path, or stdin when path
// is empty or "-".
func readRequestBody(cmd *cobra.Command, path string) ([]byte, error) {
	var reader io.Reader
	path = strings.TrimSpace(path)
	if path == "" || path == "-" {
		reader = cmd.InOrStdin()
	} else {
		expanded, err := config.ExpandPath(path)
		if err != nil {
			return nil, err
		}
		file, err := os.Open(expanded)
		if err != nil {
			return nil, fmt.Errorf("open request file: %w", err)
		}
		defer file.Close()
		reader = file
	}
	data, err := io.ReadAll(io.LimitReader(reader, maxInputBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	if len(data) > maxInputBytes {
		return nil, errors.New("request exceeds 1 MiB")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("request body is empty")
	}
	return data, nil
}

func readRequest(cmd *cobra.Command, path string) (*request.Request, error) {
	data, err := readRequestBody(cmd, path)
	if err != nil {
		return nil, err
	}
	return request.DecodeBytes(data)
}
