package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// Send delivers one command to the daemon at addr and returns its
// acknowledgment with the trailing newline removed. An empty reply means
// the daemon closed the connection without answering.
func Send(ctx context.Context, addr, command string) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to connect to daemon at %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write([]byte(command)); err != nil {
		return "", fmt.Errorf("failed to send command: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return strings.TrimRight(line, "\r\n"), nil
	case ctx.Err() != nil:
		return "", ctx.Err()
	default:
		return "", fmt.Errorf("failed to read response: %w", err)
	}
}

// IsOK reports whether a response acknowledges success
func IsOK(response string) bool {
	return response == strings.TrimSuffix(ResponseOK, "\n")
}
