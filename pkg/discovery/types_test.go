package discovery

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "00:16:53:1b:59:4d", want: "0016531B594D"},
		{in: "0016531b594d", want: "0016531B594D"},
		{in: "  00:16:53:1B:59:4D \n", want: "0016531B594D"},
		{in: "0016531B594D", want: "0016531B594D"},
		{in: "00:16:53:1b:59", wantErr: true},
		{in: "00-16-53-1b-59-4d", wantErr: true},
		{in: "0016531B594Z", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := NormalizeAddress(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidAddress, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNewPeer(t *testing.T) {
	p, err := NewPeer("Ultron", "00:16:53:1b:59:4d")
	require.NoError(t, err)
	assert.Equal(t, "Ultron", p.Name)
	assert.Equal(t, "0016531B594D", p.Address)
	assert.Equal(t, "Ultron (0016531B594D)", p.String())
	assert.False(t, p.Resolved())

	_, err = NewPeer("Broken", "nope")
	assert.True(t, errors.Is(err, ErrInvalidAddress))
}

func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "00:16:53:1B:59:4D", FormatAddress("0016531B594D"))
	assert.Equal(t, "short", FormatAddress("short"))
}

func TestPeerDialAddress(t *testing.T) {
	tests := []struct {
		name string
		peer Peer
		want string
	}{
		{"host default port", Peer{Host: "brick.lan"}, "brick.lan:6174"},
		{"host with port", Peer{Host: "10.0.0.5:7000"}, "10.0.0.5:7000"},
		{"explicit port", Peer{Host: "10.0.0.5", Port: 9000}, "10.0.0.5:9000"},
		{"first addr", Peer{Addrs: []string{"192.168.1.20", "fe80::1"}}, "192.168.1.20:6174"},
		{"ipv6 addr", Peer{Addrs: []string{"fe80::1"}, Port: 1}, "[fe80::1]:1"},
		{"host wins", Peer{Host: "a", Addrs: []string{"b"}}, "a:6174"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.peer.DialAddress(6174)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Peer{Name: "x", Address: "0016531B594D"}.DialAddress(6174)
	assert.ErrorIs(t, err, ErrNoDialAddress)
}

func TestPeerTXTRoundTrip(t *testing.T) {
	txt, err := EncodePeerTXT(&AdvertiseInfo{Name: "Ultron", Address: "00:16:53:1b:59:4d", Framing: "utf"})
	require.NoError(t, err)
	assert.Equal(t, "0016531B594D", txt[TXTKeyAddress])
	assert.Equal(t, ProtocolVersion, txt[TXTKeyVersion])

	strs := TXTRecordsToStrings(txt)
	assert.Equal(t, []string{"FR=utf", "MA=0016531B594D", "VN=1"}, strs)

	peer, err := DecodePeerTXT(StringsToTXTRecords(strs))
	require.NoError(t, err)
	assert.Equal(t, "0016531B594D", peer.Address)
	assert.Equal(t, "utf", peer.Framing)
}

func TestDecodePeerTXTErrors(t *testing.T) {
	_, err := DecodePeerTXT(TXTRecordMap{TXTKeyVersion: "1"})
	assert.ErrorIs(t, err, ErrMissingRequired)

	_, err = DecodePeerTXT(TXTRecordMap{TXTKeyAddress: "xyz"})
	assert.ErrorIs(t, err, ErrInvalidTXTRecord)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = EncodePeerTXT(&AdvertiseInfo{Name: "x", Address: "bad"})
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"MA=0016531B594D", "flag", "", "eq=a=b"})
	assert.Equal(t, TXTRecordMap{"MA": "0016531B594D", "flag": "", "eq": "a=b"}, txt)
}

func TestValidateInstanceName(t *testing.T) {
	assert.NoError(t, ValidateInstanceName("Ultron"))
	assert.ErrorIs(t, ValidateInstanceName(""), ErrMissingRequired)

	long := make([]byte, MaxInstanceNameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.ErrorIs(t, ValidateInstanceName(string(long)), ErrInstanceNameTooLong)
}
