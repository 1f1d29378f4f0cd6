// Package ntlm decodes the NTLM messages an Exchange server hands back during
// autodiscover probing. The handshake itself is driven by go-ntlmssp.
package ntlm

import (
	"errors"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// Message types
const (
	NtLmNegotiate    = 0x00000001
	NtLmChallenge    = 0x00000002
	NtLmAuthenticate = 0x00000003
)

// Negotiate flags
const (
	NegotiateUnicode                 = 0x00000001
	NegotiateOEM                     = 0x00000002
	RequestTarget                    = 0x00000004
	NegotiateSign                    = 0x00000010
	NegotiateSeal                    = 0x00000020
	NegotiateLMKey                   = 0x00000080
	NegotiateNTLM                    = 0x00000200
	NegotiateAlwaysSign              = 0x00008000
	TargetTypeDomain                 = 0x00010000
	TargetTypeServer                 = 0x00020000
	NegotiateExtendedSessionSecurity = 0x00080000
	NegotiateTargetInfo              = 0x00800000
	NegotiateVersion                 = 0x02000000
	Negotiate128                     = 0x20000000
	NegotiateKeyExchange             = 0x40000000
	Negotiate56                      = 0x80000000
)

// AV pair IDs carried in a challenge's target info block.
const (
	MsvAvEOL             = 0x0000
	MsvAvNbComputerName  = 0x0001
	MsvAvNbDomainName    = 0x0002
	MsvAvDNSComputerName = 0x0003
	MsvAvDNSDomainName   = 0x0004
	MsvAvDNSTreeName     = 0x0005
	MsvAvFlags           = 0x0006
	MsvAvTimestamp       = 0x0007
)

// ProbeToken is a base64 type-1 negotiate message. Servers that accept NTLM
// answer it with a 401 carrying their type-2 challenge.
const ProbeToken = "TlRMTVNTUAABAAAAB4IIogAAAAAAAAAAAAAAAAAAAAAGAbEdAAAADw=="

// ProbeHeader is ProbeToken ready for an Authorization header.
const ProbeHeader = "NTLM " + ProbeToken

const (
	challengeHeaderLen = 32
	targetInfoEnd      = 48
	versionEnd         = 56
)

var (
	// Signature opens every NTLMSSP message.
	Signature = []byte("NTLMSSP\x00")

	ErrNotChallenge = errors.New("not an NTLM challenge message")
	ErrTruncated    = errors.New("truncated NTLM message")
)

// AVPair is one raw attribute/value entry of the target info block.
type AVPair struct {
	ID    uint16
	Value []byte
}

// Version is the server's OS version as advertised in the challenge.
type Version struct {
	Major uint8
	Minor uint8
	Build uint16
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}

// DecodeUTF16LE converts NTLM unicode strings to Go strings.
func DecodeUTF16LE(b []byte) (string, error) {
	out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("failed to decode UTF-16LE: %w", err)
	}
	return string(out), nil
}

// EncodeUTF16LE converts a Go string to NTLM unicode form.
func EncodeUTF16LE(s string) []byte {
	out, _ := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	return out
}
