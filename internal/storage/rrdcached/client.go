package rrdcached

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// client speaks rrdcached's line-based text protocol directly over a
// TCP socket (§9: "no Go client appears in the pack, the protocol
// itself requires nothing beyond net.Dial + bufio"). Every command is
// terminated by a newline; the server replies with a status line
// "<n> <message>" where n is the count of additional detail lines that
// follow (negative n signals an error, with the message holding the
// reason).
type client struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

func dial(addr string) (*client, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("rrdcached: dial %s: %w", addr, err)
	}
	return &client{conn: conn, r: bufio.NewReader(conn)}, nil
}

func (c *client) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// do sends a single command line and returns its detail lines. The
// caller holds no lock; do serializes access itself so concurrent
// Publish calls from the batch builder don't interleave commands.
func (c *client) do(cmd string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.conn, "%s\n", cmd); err != nil {
		return nil, fmt.Errorf("rrdcached: write %q: %w", cmd, err)
	}

	status, err := c.r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("rrdcached: read status for %q: %w", cmd, err)
	}
	status = strings.TrimRight(status, "\r\n")

	idx := strings.IndexByte(status, ' ')
	if idx < 0 {
		return nil, fmt.Errorf("rrdcached: malformed status line %q", status)
	}
	n, err := strconv.Atoi(status[:idx])
	if err != nil {
		return nil, fmt.Errorf("rrdcached: malformed status count %q: %w", status, err)
	}
	message := status[idx+1:]
	if n < 0 {
		return nil, fmt.Errorf("rrdcached: %s: %s", cmd, message)
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("rrdcached: read detail line for %q: %w", cmd, err)
		}
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}
	return lines, nil
}

func (c *client) ping() error {
	_, err := c.do("PING")
	return err
}

func (c *client) flushAll() error {
	_, err := c.do("FLUSHALL")
	return err
}

// create issues CREATE for one RRD file: a single "sensapp" GAUGE data
// source, heartbeat seconds, stepSeconds sampling interval, starting
// at startUnix, with the archives defined by rras (already-formatted
// "RRA:..." clauses).
func (c *client) create(path string, heartbeat, stepSeconds int, startUnix int64, rras []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE %s -s %d -b %d", path, stepSeconds, startUnix)
	fmt.Fprintf(&b, " DS:sensapp:GAUGE:%d:U:U", heartbeat)
	for _, rra := range rras {
		b.WriteByte(' ')
		b.WriteString(rra)
	}
	_, err := c.do(b.String())
	return err
}

// batchUpdate sends one BATCH command carrying every (path, timestamp,
// value) update line, matching rrdcached's BATCH protocol: the command
// itself opens the batch, subsequent lines are the updates, a lone "."
// closes it and the server replies once for the whole batch.
func (c *client) batchUpdate(lines []string) error {
	if len(lines) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.conn, "BATCH\n"); err != nil {
		return fmt.Errorf("rrdcached: write BATCH: %w", err)
	}
	status, err := c.r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("rrdcached: read BATCH ack: %w", err)
	}
	if !strings.HasPrefix(strings.TrimRight(status, "\r\n"), "0 ") {
		return fmt.Errorf("rrdcached: unexpected BATCH ack %q", status)
	}

	for _, line := range lines {
		if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
			return fmt.Errorf("rrdcached: write batch line %q: %w", line, err)
		}
	}
	if _, err := fmt.Fprintf(c.conn, ".\n"); err != nil {
		return fmt.Errorf("rrdcached: write batch terminator: %w", err)
	}

	status, err = c.r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("rrdcached: read batch result count: %w", err)
	}
	status = strings.TrimRight(status, "\r\n")
	idx := strings.IndexByte(status, ' ')
	if idx < 0 {
		return fmt.Errorf("rrdcached: malformed batch result line %q", status)
	}
	n, err := strconv.Atoi(status[:idx])
	if err != nil {
		return fmt.Errorf("rrdcached: malformed batch result count %q: %w", status, err)
	}
	var failed []string
	for i := 0; i < n; i++ {
		errLine, err := c.r.ReadString('\n')
		if err != nil {
			return fmt.Errorf("rrdcached: read batch error line: %w", err)
		}
		failed = append(failed, strings.TrimRight(errLine, "\r\n"))
	}
	if len(failed) > 0 {
		return fmt.Errorf("rrdcached: batch reported %d failed update(s): %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}
