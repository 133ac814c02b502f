package llm

import (
	"bufio"
	"io"
	"strings"
)

// SSEFrame is one parsed Server-Sent Events frame: an optional event name
// and its (possibly multiline) data payload.
type SSEFrame struct {
	Event string
	Data  string
}

// ParseSSEStream reads r frame-by-frame (CRLF- or LF-delimited, blank-line
// frame boundary) and invokes handler for each complete frame. Lines
// beginning with ":" are comments and ignored. Multiple `data:` lines within
// one frame are concatenated with "\n". Parsing stops at EOF, a handler
// error, or a frame whose data is exactly "[DONE]" (handler still receives
// it so callers can special-case the sentinel).
func ParseSSEStream(r io.Reader, handler func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var event string
	var dataLines []string

	flush := func() error {
		if event == "" && len(dataLines) == 0 {
			return nil
		}
		data := strings.Join(dataLines, "\n")
		err := handler(event, data)
		event = ""
		dataLines = nil
		return err
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// Unknown field lines are ignored per the SSE spec.
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}
