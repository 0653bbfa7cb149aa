// Package transporttest runs a scripted recognizer for tests.
package transporttest

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/domain/event"
	"github.com/JohnPiwinski/antlrworks/internal/services/debugger/protocol"
)

// Script describes what the fake recognizer sends.
type Script struct {
	// Version defaults to "2".
	Version string
	// Grammar defaults to "T.g".
	Grammar string
	// Lines are sent verbatim after the handshake. When empty, Events are
	// encoded instead.
	Lines  []string
	Events []event.Event
	// Hold keeps the connection open after the last line until Release.
	Hold bool
	// Gate, when set, delays the handshake until it is closed.
	Gate <-chan struct{}
}

// Recognizer serves one scripted session on a loopback listener.
type Recognizer struct {
	listener net.Listener
	script   Script
	release  chan struct{}
	once     sync.Once
	done     chan struct{}

	mu   sync.Mutex
	acks int
}

// Serve starts a recognizer and registers cleanup on t.
func Serve(t *testing.T, script Script) *Recognizer {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if script.Version == "" {
		script.Version = "2"
	}
	if script.Grammar == "" {
		script.Grammar = "T.g"
	}
	r := &Recognizer{
		listener: listener,
		script:   script,
		release:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.serve()
	t.Cleanup(func() {
		r.Release()
		_ = listener.Close()
		<-r.done
	})
	return r
}

// Addr returns the address to dial.
func (r *Recognizer) Addr() string {
	return r.listener.Addr().String()
}

// Release lets a held session close its connection.
func (r *Recognizer) Release() {
	r.once.Do(func() { close(r.release) })
}

// Done is closed once the session finished.
func (r *Recognizer) Done() <-chan struct{} {
	return r.done
}

// Acks returns the number of acknowledgements received.
func (r *Recognizer) Acks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acks
}

func (r *Recognizer) serve() {
	defer close(r.done)
	conn, err := r.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	if r.script.Gate != nil {
		select {
		case <-r.script.Gate:
		case <-r.release:
			return
		}
	}

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	send := func(lines ...string) bool {
		for _, line := range lines {
			if _, err := writer.WriteString(line + "\n"); err != nil {
				return false
			}
		}
		if err := writer.Flush(); err != nil {
			return false
		}
		ack, err := reader.ReadString('\n')
		if err != nil || strings.TrimSpace(ack) != protocol.Ack {
			return false
		}
		r.mu.Lock()
		r.acks++
		r.mu.Unlock()
		return true
	}

	if !send(protocol.HandshakeLines(r.script.Version, r.script.Grammar)...) {
		return
	}
	lines := r.script.Lines
	if len(lines) == 0 {
		for _, evt := range r.script.Events {
			lines = append(lines, protocol.Encode(evt))
		}
	}
	for _, line := range lines {
		if !send(line) {
			return
		}
	}
	if r.script.Hold {
		<-r.release
	}
}
