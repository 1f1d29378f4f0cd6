package ntlm_test

import (
	"encoding/base64"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/ntlm"
	"github.com/CodeMonkeyCybersecurity/owaspray/pkg/ntlm/ntlmtest"
)

func TestProbeToken(t *testing.T) {
	msg, err := base64.StdEncoding.DecodeString(ntlm.ProbeToken)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(msg), 12)
	assert.Equal(t, ntlm.Signature, msg[:8])
	assert.Equal(t, uint32(ntlm.NtLmNegotiate), binary.LittleEndian.Uint32(msg[8:12]))
	assert.Equal(t, "NTLM "+ntlm.ProbeToken, ntlm.ProbeHeader)
}

func TestParseChallenge(t *testing.T) {
	raw := ntlmtest.Domain("CORP", "corp.local", "EXCH01").Bytes()

	info, err := ntlm.ParseChallenge(raw)
	require.NoError(t, err)

	assert.Equal(t, "CORP", info.TargetName)
	assert.Equal(t, "CORP", info.NetBIOSDomainName)
	assert.Equal(t, "EXCH01", info.NetBIOSComputerName)
	assert.Equal(t, "corp.local", info.DNSDomainName)
	assert.Equal(t, "EXCH01.corp.local", info.DNSComputerName)
	assert.Equal(t, "corp.local", info.DNSTreeName)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), info.Timestamp)
	assert.Equal(t, uint32(ntlmtest.DefaultFlags), info.Flags)
	require.NotNil(t, info.OSVersion)
	assert.Equal(t, "10.0.17763", info.OSVersion.String())
	assert.Len(t, info.AVPairs, 6)
}

func TestParseChallenge_NoVersion(t *testing.T) {
	c := ntlmtest.Domain("CORP", "corp.local", "EXCH01")
	c.Flags = ntlmtest.DefaultFlags &^ ntlm.NegotiateVersion

	info, err := ntlm.ParseChallenge(c.Bytes())
	require.NoError(t, err)
	assert.Nil(t, info.OSVersion)
	assert.Equal(t, "CORP", info.NetBIOSDomainName)
}

func TestParseChallenge_MissingDomain(t *testing.T) {
	c := ntlmtest.Challenge{
		TargetName: "EXCH01",
		AVPairs:    []ntlm.AVPair{ntlmtest.AVString(ntlm.MsvAvNbComputerName, "EXCH01")},
	}

	info, err := ntlm.ParseChallenge(c.Bytes())
	require.NoError(t, err)
	assert.Empty(t, info.NetBIOSDomainName)
	assert.Equal(t, "EXCH01", info.NetBIOSComputerName)
}

func TestParseChallenge_Malformed(t *testing.T) {
	valid := ntlmtest.Domain("CORP", "corp.local", "EXCH01").Bytes()

	badType := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badType[8:12], ntlm.NtLmAuthenticate)

	badOffset := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badOffset[44:48], 0xffff)

	badAVLen := append([]byte(nil), valid...)
	// first AV pair length field sits 2 bytes into the target info block
	infoOffset := binary.LittleEndian.Uint32(valid[44:48])
	binary.LittleEndian.PutUint16(badAVLen[infoOffset+2:], 0x7fff)

	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{name: "empty", input: nil, wantErr: ntlm.ErrNotChallenge},
		{name: "wrong signature", input: []byte("NOTNTLM\x00\x02\x00\x00\x00"), wantErr: ntlm.ErrNotChallenge},
		{name: "wrong type", input: badType, wantErr: ntlm.ErrNotChallenge},
		{name: "short header", input: valid[:20], wantErr: ntlm.ErrTruncated},
		{name: "target info out of range", input: badOffset, wantErr: ntlm.ErrTruncated},
		{name: "AV pair overruns", input: badAVLen, wantErr: ntlm.ErrTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, err := ntlm.ParseChallenge(tt.input)
				assert.ErrorIs(t, err, tt.wantErr)
			})
		})
	}
}

func TestDecodeHeader(t *testing.T) {
	challenge := ntlmtest.Domain("CORP", "corp.local", "EXCH01")
	token := base64.StdEncoding.EncodeToString(challenge.Bytes())

	tests := []struct {
		name    string
		values  []string
		want    string
		wantErr bool
	}{
		{name: "ntlm", values: []string{"NTLM " + token}, want: "CORP"},
		{name: "negotiate", values: []string{"Negotiate " + token}, want: "CORP"},
		{name: "after basic", values: []string{`Basic realm="owa"`, "NTLM " + token}, want: "CORP"},
		{name: "comma separated", values: []string{`Basic realm="owa", NTLM ` + token}, want: "CORP"},
		{
			name:   "spnego wrapped",
			values: []string{"Negotiate " + base64.StdEncoding.EncodeToString(append([]byte{0xa1, 0x81, 0x9c, 0x30}, challenge.Bytes()...))},
			want:   "CORP",
		},
		{name: "bare scheme", values: []string{"NTLM"}, wantErr: true},
		{name: "no header", values: nil, wantErr: true},
		{name: "bad base64", values: []string{"NTLM !!!"}, wantErr: true},
		{name: "type one", values: []string{ntlm.ProbeHeader}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ntlm.DecodeHeader(tt.values)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, info.NetBIOSDomainName)
		})
	}
}

func TestUTF16RoundTrip(t *testing.T) {
	s, err := ntlm.DecodeUTF16LE(ntlm.EncodeUTF16LE("EXCHANGE-ÜBER"))
	require.NoError(t, err)
	assert.Equal(t, "EXCHANGE-ÜBER", s)
}
