package ntlm

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// ChallengeInfo is what a type-2 challenge reveals about the server.
type ChallengeInfo struct {
	TargetName          string    `json:"target_name,omitempty" yaml:"target_name,omitempty"`
	NetBIOSDomainName   string    `json:"netbios_domain,omitempty" yaml:"netbios_domain,omitempty"`
	NetBIOSComputerName string    `json:"netbios_computer,omitempty" yaml:"netbios_computer,omitempty"`
	DNSDomainName       string    `json:"dns_domain,omitempty" yaml:"dns_domain,omitempty"`
	DNSComputerName     string    `json:"dns_computer,omitempty" yaml:"dns_computer,omitempty"`
	DNSTreeName         string    `json:"dns_tree,omitempty" yaml:"dns_tree,omitempty"`
	Timestamp           time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Flags               uint32    `json:"flags" yaml:"flags"`
	OSVersion           *Version  `json:"os_version,omitempty" yaml:"os_version,omitempty"`
	AVPairs             []AVPair  `json:"-" yaml:"-"`
}

// ParseChallenge decodes a raw type-2 message. Every offset is bounds-checked
// against msg.
func ParseChallenge(msg []byte) (*ChallengeInfo, error) {
	if len(msg) < len(Signature)+4 || !bytes.Equal(msg[:len(Signature)], Signature) {
		return nil, ErrNotChallenge
	}
	if msgType := binary.LittleEndian.Uint32(msg[8:12]); msgType != NtLmChallenge {
		return nil, fmt.Errorf("%w: message type %d", ErrNotChallenge, msgType)
	}
	if len(msg) < challengeHeaderLen {
		return nil, fmt.Errorf("%w: %d byte header", ErrTruncated, len(msg))
	}

	info := &ChallengeInfo{
		Flags: binary.LittleEndian.Uint32(msg[20:24]),
	}

	targetName, err := securityBuffer(msg, 12)
	if err != nil {
		return nil, fmt.Errorf("target name: %w", err)
	}
	if info.Flags&NegotiateUnicode != 0 {
		if info.TargetName, err = DecodeUTF16LE(targetName); err != nil {
			return nil, err
		}
	} else {
		info.TargetName = string(targetName)
	}

	// Early challenge formats stop after the reserved field.
	if len(msg) >= targetInfoEnd {
		targetInfo, err := securityBuffer(msg, 40)
		if err != nil {
			return nil, fmt.Errorf("target info: %w", err)
		}
		if err := info.parseTargetInfo(targetInfo); err != nil {
			return nil, err
		}
	}

	if info.Flags&NegotiateVersion != 0 && len(msg) >= versionEnd {
		info.OSVersion = &Version{
			Major: msg[48],
			Minor: msg[49],
			Build: binary.LittleEndian.Uint16(msg[50:52]),
		}
	}

	return info, nil
}

func (c *ChallengeInfo) parseTargetInfo(b []byte) error {
	for len(b) > 0 {
		if len(b) < 4 {
			return fmt.Errorf("%w: AV pair header", ErrTruncated)
		}
		id := binary.LittleEndian.Uint16(b[0:2])
		n := int(binary.LittleEndian.Uint16(b[2:4]))
		if id == MsvAvEOL {
			return nil
		}
		if len(b) < 4+n {
			return fmt.Errorf("%w: AV pair %d wants %d bytes", ErrTruncated, id, n)
		}
		value := b[4 : 4+n]
		b = b[4+n:]

		c.AVPairs = append(c.AVPairs, AVPair{ID: id, Value: value})

		var dst *string
		switch id {
		case MsvAvNbComputerName:
			dst = &c.NetBIOSComputerName
		case MsvAvNbDomainName:
			dst = &c.NetBIOSDomainName
		case MsvAvDNSComputerName:
			dst = &c.DNSComputerName
		case MsvAvDNSDomainName:
			dst = &c.DNSDomainName
		case MsvAvDNSTreeName:
			dst = &c.DNSTreeName
		case MsvAvTimestamp:
			if n == 8 {
				c.Timestamp = filetime(binary.LittleEndian.Uint64(value))
			}
		}
		if dst != nil {
			s, err := DecodeUTF16LE(value)
			if err != nil {
				return err
			}
			*dst = s
		}
	}
	return nil
}

// securityBuffer returns the payload referenced by the 8-byte
// length/maxlength/offset descriptor at off.
func securityBuffer(msg []byte, off int) ([]byte, error) {
	if len(msg) < off+8 {
		return nil, ErrTruncated
	}
	length := int(binary.LittleEndian.Uint16(msg[off : off+2]))
	start := int(binary.LittleEndian.Uint32(msg[off+4 : off+8]))
	if length == 0 {
		return nil, nil
	}
	if start > len(msg) || length > len(msg)-start {
		return nil, fmt.Errorf("%w: buffer at %d+%d exceeds %d bytes", ErrTruncated, start, length, len(msg))
	}
	return msg[start : start+length], nil
}

// Windows FILETIME counts 100ns intervals since 1601-01-01.
const filetimeEpochDelta = 116444736000000000

func filetime(ft uint64) time.Time {
	if ft < filetimeEpochDelta {
		return time.Time{}
	}
	ticks := ft - filetimeEpochDelta
	return time.Unix(int64(ticks/1e7), int64(ticks%1e7)*100).UTC()
}

// DecodeHeader finds the first NTLM or Negotiate token among WWW-Authenticate
// values and parses it. SPNEGO-wrapped tokens are unwrapped by locating the
// NTLMSSP signature.
func DecodeHeader(values []string) (*ChallengeInfo, error) {
	var lastErr error
	for _, value := range values {
		for _, challenge := range strings.Split(value, ",") {
			fields := strings.Fields(challenge)
			if len(fields) != 2 {
				continue
			}
			if !strings.EqualFold(fields[0], "NTLM") && !strings.EqualFold(fields[0], "Negotiate") {
				continue
			}

			raw, err := base64.StdEncoding.DecodeString(fields[1])
			if err != nil {
				lastErr = fmt.Errorf("failed to decode %s token: %w", fields[0], err)
				continue
			}
			if idx := bytes.Index(raw, Signature); idx > 0 {
				raw = raw[idx:]
			}

			info, err := ParseChallenge(raw)
			if err != nil {
				lastErr = err
				continue
			}
			return info, nil
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: no NTLM token in WWW-Authenticate", ErrNotChallenge)
}
