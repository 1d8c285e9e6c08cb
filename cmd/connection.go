// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Thermoquad/exstat/pkg/exbus"
)

// Connection provides a common byte stream over serial or WebSocket
type Connection interface {
	io.Reader
	io.Closer
}

// BaudSetter is implemented by connections that can change line speed
type BaudSetter interface {
	SetBaudRate(baud int) error
}

// ErrBaudUnsupported is returned when the connection cannot change baud rate
var ErrBaudUnsupported = errors.New("connection does not support baud rate changes")

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// SetBaudRate reconfigures the port. EX Bus is always 8N1.
func (s *SerialConnection) SetBaudRate(baud int) error {
	return s.port.SetMode(serialMode(baud))
}

func serialMode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = fmt.Errorf("websocket connection closed")

// WebSocketConnection wraps a WebSocket connection for byte-level reading
type WebSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}

		// The bridge forwards raw UART bytes as binary messages
		if messageType != websocket.BinaryMessage {
			continue
		}

		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// OpenSerialConnection opens a serial port connection
func OpenSerialConnection(portName string, baudRate int) (*SerialConnection, error) {
	port, err := serial.Open(portName, serialMode(baudRate))
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (*WebSocketConnection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("EXSTAT_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal, fall back to a plain line read
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenConnection opens either a serial or WebSocket connection based on flags
func OpenConnection() (Connection, string, error) {
	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := OpenWebSocketConnection(wsURL, wsUsername, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if portName != "" {
		conn, err := OpenSerialConnection(portName, baudRate)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

// linkOpener implements exbus.Opener on top of a Connection. Every byte read
// is passed to the driver's handler from a single pump goroutine.
type linkOpener struct {
	conn Connection
	// baud overrides the driver's requested rate when non-zero
	baud int
	// tee receives a copy of every read, e.g. a capture writer
	tee io.Writer
}

// Open starts the pump and returns the running port
func (o *linkOpener) Open(cfg exbus.PortConfig, handler exbus.ByteHandler) (exbus.Port, error) {
	baud := cfg.BaudRate
	if o.baud != 0 {
		baud = o.baud
	}

	limits := exbus.SerialFunctionConstraint()
	if baud < limits.MinBaudRate || baud > limits.MaxBaudRate {
		return nil, fmt.Errorf("baud rate %d outside EX Bus range %d-%d",
			baud, limits.MinBaudRate, limits.MaxBaudRate)
	}

	p := &linkPort{conn: o.conn, baud: baud, done: make(chan struct{})}
	if err := p.SetBaudRate(baud); err != nil && !errors.Is(err, ErrBaudUnsupported) {
		return nil, err
	}

	var r io.Reader = o.conn
	if o.tee != nil {
		r = io.TeeReader(o.conn, o.tee)
	}
	go p.pump(r, handler)
	return p, nil
}

// linkPort is an open EX Bus link
type linkPort struct {
	conn Connection

	mu   sync.Mutex
	baud int
	err  error
	done chan struct{}
}

func (p *linkPort) pump(r io.Reader, handler exbus.ByteHandler) {
	buf := make([]byte, 128)
	for {
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			handler(buf[i])
		}
		if err != nil {
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
			close(p.done)
			return
		}
	}
}

// BaudRate returns the current line speed
func (p *linkPort) BaudRate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.baud
}

// SetBaudRate changes line speed when the connection supports it
func (p *linkPort) SetBaudRate(baud int) error {
	bs, ok := p.conn.(BaudSetter)
	if !ok {
		return ErrBaudUnsupported
	}
	if err := bs.SetBaudRate(baud); err != nil {
		return fmt.Errorf("failed to set baud rate %d: %w", baud, err)
	}
	p.mu.Lock()
	p.baud = baud
	p.mu.Unlock()
	return nil
}

// Done is closed when the pump stops
func (p *linkPort) Done() <-chan struct{} {
	return p.done
}

// Err returns the read error that stopped the pump
func (p *linkPort) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// hopBaud is the driver's baud retry hook: it alternates the port between
// the two EX Bus rates
func hopBaud(port exbus.Port) {
	if port == nil {
		return
	}
	next := exbus.NextBaud(port.BaudRate())
	if err := port.SetBaudRate(next); err != nil {
		logger.Debug("baud retry not applied", zap.Int("baud", next), zap.Error(err))
		return
	}
	logger.Info("switched baud rate", zap.Int("baud", next))
}

// Close closes the underlying connection, which also stops the pump
func (p *linkPort) Close() error {
	return p.conn.Close()
}

// newLinkOpener opens the configured connection
func newLinkOpener(tee io.Writer) (*linkOpener, string, error) {
	conn, info, err := OpenConnection()
	if err != nil {
		return nil, "", err
	}

	opener := &linkOpener{conn: conn, tee: tee}
	if wsURL == "" {
		opener.baud = baudRate
	}
	return opener, info, nil
}

// openLink opens the configured connection and starts a driver on it
func openLink(tee io.Writer, onRetry exbus.BaudRetryFunc) (*exbus.Driver, *linkPort, string, error) {
	cfg, err := driverConfig(onRetry)
	if err != nil {
		return nil, nil, "", err
	}

	opener, info, err := newLinkOpener(tee)
	if err != nil {
		return nil, nil, "", err
	}

	driver := exbus.NewDriver(cfg)
	if err := driver.Init(opener); err != nil {
		opener.conn.Close()
		return nil, nil, "", err
	}
	return driver, driver.Port().(*linkPort), info, nil
}

// openStream opens the configured connection and feeds every byte to
// handler, for tools that need per-byte decoder events
func openStream(tee io.Writer, handler exbus.ByteHandler) (*linkPort, string, error) {
	opener, info, err := newLinkOpener(tee)
	if err != nil {
		return nil, "", err
	}

	port, err := opener.Open(exbus.PortConfig{
		Function: exbus.FunctionSerialRX,
		BaudRate: exbus.BaudLow,
		Mode:     exbus.ModeRX,
	}, handler)
	if err != nil {
		opener.conn.Close()
		return nil, "", err
	}
	return port.(*linkPort), info, nil
}
