package node

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/utxod/utxod/internal/chain"
)

// commandLength is the fixed width of the ASCII command tag that prefixes
// every wire message. Shorter commands are zero-padded.
const commandLength = 12

// protocolVersion is advertised in version messages.
const protocolVersion = 1

// Wire commands.
const (
	cmdAddr      = "addr"
	cmdBlock     = "block"
	cmdGetBlocks = "getblocks"
	cmdGetData   = "getdata"
	cmdInv       = "inv"
	cmdTx        = "tx"
	cmdVersion   = "version"
)

// Inventory kinds shared by inv and getdata messages.
const (
	kindBlock = "block"
	kindTx    = "tx"
)

var (
	// ErrUnknownCommand is returned for a command tag no handler exists for.
	ErrUnknownCommand = errors.New("unknown wire command")

	// ErrShortMessage is returned when a message is shorter than the command
	// tag.
	ErrShortMessage = errors.New("message shorter than command tag")
)

// Message payloads. A connection carries exactly one message: the sender
// writes the tag and payload and closes, the receiver reads until EOF.

type versionMsg struct {
	AddrFrom   string
	Version    int
	BestHeight int
}

type getBlocksMsg struct {
	AddrFrom string
}

type getDataMsg struct {
	AddrFrom string
	Kind     string
	ID       string
}

type invMsg struct {
	AddrFrom string
	Kind     string
	Items    []string
}

type txMsg struct {
	AddrFrom    string
	Transaction *chain.Transaction
}

type blockMsg struct {
	AddrFrom string
	Block    *chain.Block
}

type addrMsg struct {
	AddrList []string
}

// encodeMessage prefixes the gob-encoded payload with the zero-padded
// command tag.
func encodeMessage(command string, payload any) ([]byte, error) {
	if len(command) > commandLength {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}

	var tag [commandLength]byte
	copy(tag[:], command)

	var buf bytes.Buffer
	buf.Write(tag[:])
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", command, err)
	}

	return buf.Bytes(), nil
}

// splitMessage separates a raw message into its command and payload bytes.
func splitMessage(raw []byte) (string, []byte, error) {
	if len(raw) < commandLength {
		return "", nil, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(raw))
	}

	command := string(bytes.TrimRight(raw[:commandLength], "\x00"))
	return command, raw[commandLength:], nil
}

// decodePayload decodes a gob payload into v.
func decodePayload(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	return nil
}
