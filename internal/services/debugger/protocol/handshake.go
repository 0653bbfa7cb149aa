// Package protocol decodes the line-oriented remote debug protocol spoken by
// instrumented recognizers.
//
// A session opens with two handshake lines:
//
//	ANTLR 2
//	grammar "T.g
//
// followed by one tab separated event per line. The debugger answers the
// handshake and every event line with "ack".
package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Ack acknowledges the handshake and each event line.
const Ack = "ack"

// SupportedVersions is the protocol version range the decoder understands.
const SupportedVersions = ">=2, <3"

var (
	// ErrHandshake reports a malformed or unsupported handshake.
	ErrHandshake = errors.New("invalid debug handshake")
	// ErrMalformed reports an event line that cannot be decoded.
	ErrMalformed = errors.New("malformed debug event")
)

// Handshake is the session header sent by the recognizer.
type Handshake struct {
	Version *semver.Version
	Grammar string
}

// ParseHandshake validates the version and grammar lines.
func ParseHandshake(versionLine, grammarLine string) (Handshake, error) {
	name, raw, ok := strings.Cut(strings.TrimSpace(versionLine), " ")
	if !ok || name != "ANTLR" {
		return Handshake{}, fmt.Errorf("%w: version line %q", ErrHandshake, versionLine)
	}
	version, err := semver.NewVersion(strings.TrimSpace(raw))
	if err != nil {
		return Handshake{}, fmt.Errorf("%w: version %q: %v", ErrHandshake, raw, err)
	}
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return Handshake{}, fmt.Errorf("supported versions: %w", err)
	}
	if !constraint.Check(version) {
		return Handshake{}, fmt.Errorf("%w: protocol %s not in %s", ErrHandshake, version, SupportedVersions)
	}

	keyword, grammar, ok := strings.Cut(strings.TrimSpace(grammarLine), " ")
	if !ok || keyword != "grammar" {
		return Handshake{}, fmt.Errorf("%w: grammar line %q", ErrHandshake, grammarLine)
	}
	grammar = strings.TrimPrefix(strings.TrimSpace(grammar), `"`)
	return Handshake{Version: version, Grammar: grammar}, nil
}

// HandshakeLines renders the handshake of a recognizer speaking version.
func HandshakeLines(version, grammar string) []string {
	return []string{"ANTLR " + version, `grammar "` + grammar}
}
