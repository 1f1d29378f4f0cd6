// Package ntlmtest builds NTLM server messages for tests.
package ntlmtest

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/ntlm"
)

// DefaultFlags is accepted by go-ntlmssp's ProcessChallenge.
const DefaultFlags = ntlm.NegotiateUnicode | ntlm.RequestTarget | ntlm.NegotiateNTLM |
	ntlm.NegotiateAlwaysSign | ntlm.TargetTypeDomain | ntlm.NegotiateExtendedSessionSecurity |
	ntlm.NegotiateTargetInfo | ntlm.NegotiateVersion | ntlm.Negotiate128 | ntlm.Negotiate56

// Challenge describes a type-2 message.
type Challenge struct {
	TargetName string
	Flags      uint32 // DefaultFlags when zero
	AVPairs    []ntlm.AVPair
	Version    *ntlm.Version
}

// Domain returns a challenge populated the way an Exchange server in the
// given domain answers.
func Domain(netbios, dnsDomain, computer string) Challenge {
	return Challenge{
		TargetName: netbios,
		AVPairs: []ntlm.AVPair{
			AVString(ntlm.MsvAvNbDomainName, netbios),
			AVString(ntlm.MsvAvNbComputerName, computer),
			AVString(ntlm.MsvAvDNSDomainName, dnsDomain),
			AVString(ntlm.MsvAvDNSComputerName, computer+"."+dnsDomain),
			AVString(ntlm.MsvAvDNSTreeName, dnsDomain),
			Timestamp(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)),
		},
		Version: &ntlm.Version{Major: 10, Minor: 0, Build: 17763},
	}
}

// AVString encodes s as a UTF-16LE AV pair.
func AVString(id uint16, s string) ntlm.AVPair {
	return ntlm.AVPair{ID: id, Value: ntlm.EncodeUTF16LE(s)}
}

// Timestamp encodes t as an MsvAvTimestamp FILETIME.
func Timestamp(t time.Time) ntlm.AVPair {
	ft := uint64(t.UnixNano()/100) + 116444736000000000
	v := make([]byte, 8)
	binary.LittleEndian.PutUint64(v, ft)
	return ntlm.AVPair{ID: ntlm.MsvAvTimestamp, Value: v}
}

// Bytes serializes the challenge.
func (c Challenge) Bytes() []byte {
	flags := c.Flags
	if flags == 0 {
		flags = DefaultFlags
	}

	target := ntlm.EncodeUTF16LE(c.TargetName)
	var info []byte
	for _, av := range c.AVPairs {
		info = binary.LittleEndian.AppendUint16(info, av.ID)
		info = binary.LittleEndian.AppendUint16(info, uint16(len(av.Value)))
		info = append(info, av.Value...)
	}
	info = append(info, 0, 0, 0, 0)

	const header = 56
	msg := make([]byte, header, header+len(target)+len(info))
	copy(msg, ntlm.Signature)
	binary.LittleEndian.PutUint32(msg[8:12], ntlm.NtLmChallenge)
	putBuffer(msg[12:20], len(target), header)
	binary.LittleEndian.PutUint32(msg[20:24], flags)
	copy(msg[24:32], "\x01\x23\x45\x67\x89\xab\xcd\xef")
	putBuffer(msg[40:48], len(info), header+len(target))
	if c.Version != nil {
		msg[48] = c.Version.Major
		msg[49] = c.Version.Minor
		binary.LittleEndian.PutUint16(msg[50:52], c.Version.Build)
		msg[55] = 0x0f
	}

	msg = append(msg, target...)
	return append(msg, info...)
}

// Header renders the challenge as a WWW-Authenticate value.
func (c Challenge) Header() string {
	return "NTLM " + base64.StdEncoding.EncodeToString(c.Bytes())
}

func putBuffer(dst []byte, length, offset int) {
	binary.LittleEndian.PutUint16(dst[0:2], uint16(length))
	binary.LittleEndian.PutUint16(dst[2:4], uint16(length))
	binary.LittleEndian.PutUint32(dst[4:8], uint32(offset))
}

// AuthenticateUser extracts the user name from a type-3 message.
func AuthenticateUser(msg []byte) (string, error) {
	if len(msg) < 64 || string(msg[:8]) != string(ntlm.Signature) {
		return "", ntlm.ErrTruncated
	}
	if t := binary.LittleEndian.Uint32(msg[8:12]); t != ntlm.NtLmAuthenticate {
		return "", fmt.Errorf("message type %d is not authenticate", t)
	}
	length := int(binary.LittleEndian.Uint16(msg[36:38]))
	offset := int(binary.LittleEndian.Uint32(msg[40:44]))
	if offset+length > len(msg) {
		return "", ntlm.ErrTruncated
	}
	return ntlm.DecodeUTF16LE(msg[offset : offset+length])
}

// MessageType reports the type of a base64 NTLM token, or 0 if it is not one.
func MessageType(token string) uint32 {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil || len(raw) < 12 || string(raw[:8]) != string(ntlm.Signature) {
		return 0
	}
	return binary.LittleEndian.Uint32(raw[8:12])
}
