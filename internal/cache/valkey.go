package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// ValkeyConfig holds connection parameters for a Valkey/Redis-compatible
// server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	TLS          bool
}

// ValkeyProvider implements Provider over a plain RESP connection per
// operation. Connections are short-lived; retries re-dial.
type ValkeyProvider struct {
	cfg ValkeyConfig
}

// NewValkeyProvider validates the configuration and pings the target so bad
// credentials or connectivity fail at startup rather than at first write.
func NewValkeyProvider(cfg ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}

	p := &ValkeyProvider{cfg: cfg}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := p.do(ctx, func(c *respConn) error {
		reply, err := c.roundTrip("PING")
		if err != nil {
			return err
		}
		if reply.kind != kindStatus || string(reply.data) != "PONG" {
			return fmt.Errorf("unexpected PING reply: %s", reply.data)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := p.do(ctx, func(c *respConn) error {
		reply, err := c.roundTrip("GET", key)
		if err != nil {
			return err
		}
		switch reply.kind {
		case kindNil:
			return ErrCacheMiss
		case kindBulk:
			payload = reply.data
			return nil
		default:
			return fmt.Errorf("unexpected GET reply kind %q", reply.kind)
		}
	})
	return payload, err
}

// Set stores bytes with the provided TTL; ttl <= 0 stores without expiry.
func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.do(ctx, func(c *respConn) error {
		args := setArgs(key, value, ttl)
		reply, err := c.roundTrip(args...)
		if err != nil {
			return err
		}
		if reply.kind != kindStatus || string(reply.data) != "OK" {
			return fmt.Errorf("unexpected SET reply: %s", reply.data)
		}
		return nil
	})
}

// SetNX stores the value only if the key does not already exist.
func (p *ValkeyProvider) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var stored bool
	err := p.do(ctx, func(c *respConn) error {
		args := append(setArgs(key, value, ttl), "NX")
		reply, err := c.roundTrip(args...)
		if err != nil {
			return err
		}
		switch reply.kind {
		case kindStatus:
			stored = true
		case kindNil:
			stored = false
		default:
			return fmt.Errorf("unexpected SET NX reply kind %q", reply.kind)
		}
		return nil
	})
	return stored, err
}

// Del removes a key.
func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	return p.do(ctx, func(c *respConn) error {
		_, err := c.roundTrip("DEL", key)
		return err
	})
}

// Close is a no-op; the provider holds no persistent connection.
func (p *ValkeyProvider) Close() error { return nil }

func setArgs(key string, value []byte, ttl time.Duration) []string {
	args := []string{"SET", key, string(value)}
	if ttl > 0 {
		args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
	}
	return args
}

func (p *ValkeyProvider) do(ctx context.Context, fn func(*respConn) error) error {
	attempts := p.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := p.connect(ctx)
		if err != nil {
			lastErr = err
		} else {
			err = fn(conn)
			conn.close()
			if err == nil {
				return nil
			}
			lastErr = err
		}
		if !retryable(lastErr) || attempt == attempts-1 {
			return lastErr
		}
		select {
		case <-time.After(time.Duration(50*(attempt+1)) * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (p *ValkeyProvider) connect(ctx context.Context) (*respConn, error) {
	dialer := net.Dialer{Timeout: p.cfg.DialTimeout}
	var (
		raw net.Conn
		err error
	)
	if p.cfg.TLS {
		host := p.cfg.Addr
		if h, _, splitErr := net.SplitHostPort(p.cfg.Addr); splitErr == nil {
			host = h
		}
		raw, err = tls.DialWithDialer(&dialer, "tcp", p.cfg.Addr, &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: host,
		})
	} else {
		raw, err = dialer.DialContext(ctx, "tcp", p.cfg.Addr)
	}
	if err != nil {
		return nil, err
	}

	conn := &respConn{
		raw:          raw,
		r:            bufio.NewReader(raw),
		w:            bufio.NewWriter(raw),
		readTimeout:  p.cfg.ReadTimeout,
		writeTimeout: p.cfg.WriteTimeout,
	}
	if err := conn.handshake(p.cfg); err != nil {
		conn.close()
		return nil, err
	}
	return conn, nil
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCacheMiss) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var respErr *serverError
	if errors.As(err, &respErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// serverError is an error reply returned by the server itself.
type serverError struct {
	msg string
}

func (e *serverError) Error() string { return "valkey: " + e.msg }

type replyKind byte

const (
	kindStatus replyKind = '+'
	kindBulk   replyKind = '$'
	kindInt    replyKind = ':'
	kindNil    replyKind = '_'
)

type reply struct {
	kind replyKind
	data []byte
}

type respConn struct {
	raw          net.Conn
	r            *bufio.Reader
	w            *bufio.Writer
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *respConn) close() { _ = c.raw.Close() }

func (c *respConn) handshake(cfg ValkeyConfig) error {
	if cfg.Password != "" {
		args := []string{"AUTH", cfg.Password}
		if cfg.Username != "" {
			args = []string{"AUTH", cfg.Username, cfg.Password}
		}
		if err := c.expectOK(args...); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if cfg.DB > 0 {
		if err := c.expectOK("SELECT", strconv.Itoa(cfg.DB)); err != nil {
			return fmt.Errorf("select db: %w", err)
		}
	}
	return nil
}

func (c *respConn) expectOK(args ...string) error {
	rep, err := c.roundTrip(args...)
	if err != nil {
		return err
	}
	if rep.kind != kindStatus || !strings.EqualFold(string(rep.data), "OK") {
		return fmt.Errorf("unexpected reply: %s", rep.data)
	}
	return nil
}

// roundTrip sends one command as a RESP array of bulk strings and reads a
// single reply.
func (c *respConn) roundTrip(args ...string) (reply, error) {
	if err := c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return reply{}, err
	}
	fmt.Fprintf(c.w, "*%d\r\n", len(args))
	for _, arg := range args {
		fmt.Fprintf(c.w, "$%d\r\n%s\r\n", len(arg), arg)
	}
	if err := c.w.Flush(); err != nil {
		return reply{}, err
	}
	return c.readReply()
}

func (c *respConn) readReply() (reply, error) {
	if err := c.raw.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return reply{}, err
	}
	line, err := c.readLine()
	if err != nil {
		return reply{}, err
	}
	if len(line) == 0 {
		return reply{}, errors.New("empty reply line")
	}

	marker, rest := line[0], line[1:]
	switch marker {
	case '+':
		return reply{kind: kindStatus, data: rest}, nil
	case '-':
		return reply{}, &serverError{msg: string(rest)}
	case ':':
		return reply{kind: kindInt, data: rest}, nil
	case '_':
		// RESP3 null.
		return reply{kind: kindNil}, nil
	case '$':
		size, err := strconv.Atoi(string(rest))
		if err != nil {
			return reply{}, fmt.Errorf("bad bulk length %q", rest)
		}
		if size < 0 {
			return reply{kind: kindNil}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(c.r, buf); err != nil {
			return reply{}, err
		}
		return reply{kind: kindBulk, data: buf[:size]}, nil
	default:
		return reply{}, fmt.Errorf("unsupported reply marker %q", marker)
	}
}

func (c *respConn) readLine() ([]byte, error) {
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}
