package hostconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConf = `[General]
version=2

[settings]
psn_account_id=AAECAwQFBgc=

[registered_hosts]
1\ap_bssid=
1\ap_key=
1\ap_name=
1\ap_ssid=PS4-Network
1\rp_key=@ByteArray(\x89\f.\xdaG\x7f\xd0\xcf\xfb\x98h\xc9\xf9\xb1\x9b\xe5)
1\rp_key_type=2
1\rp_regist_key=@ByteArray(d77687f8\0\0\0\0\0\0\0\0)
1\server_mac=@ByteArray(\xbc`+"`"+`\xa7\x92JF)
1\server_nickname=PS4-910
1\target=1000
2\rp_key=@ByteArray(\x1\x2\x3\x4\x5\x6\a\b\t\n\v\f\r\xe\xf\x10)
2\rp_regist_key=@ByteArray(abc\xff\0)
2\server_mac=@ByteArray(\0\x11\x22\x33\x44U)
2\server_nickname=PS5-Living
2\target=1000100
size=2

[manual_hosts]
1\host=192.168.1.20
1\id=7
2\host=ps5.local
2\id=nope
size=2
`

func writeConf(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Chiaki.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestReadHostsParsesRegisteredAndManualHosts(t *testing.T) {
	hosts := ReadHosts(writeConf(t, sampleConf))
	require.Len(t, hosts, 2)

	ps4 := hosts[0]
	assert.Equal(t, "PS4-910", ps4.Name)
	assert.Equal(t, "BC:60:A7:92:4A:46", ps4.MAC)
	assert.Equal(t, "890c2eda477fd0cffb9868c9f9b19be5", ps4.RPKeyHex())
	assert.Len(t, ps4.RPKey, 16)
	assert.Equal(t, "d77687f8", ps4.RegistKey)
	assert.Equal(t, 1000, ps4.Target)
	assert.False(t, ps4.IsPS5())
	assert.Equal(t, "PS4-Network", ps4.APSSID)
	assert.Equal(t, "", ps4.APBSSID)
	assert.Equal(t, "192.168.1.20", ps4.Address)
	assert.True(t, ps4.HasID)
	assert.Equal(t, 7, ps4.ID)

	ps5 := hosts[1]
	assert.Equal(t, "PS5-Living", ps5.Name)
	assert.True(t, ps5.IsPS5())
	assert.Equal(t, "abc", ps5.RegistKey, "non-ASCII bytes are dropped, NULs trimmed")
	assert.Equal(t, "ps5.local", ps5.Address)
	assert.False(t, ps5.HasID, "unparseable id is skipped")
	assert.Len(t, ps5.RPKey, 16)
}

func TestReadHostsSingleRecordTarget(t *testing.T) {
	path := writeConf(t, "[registered_hosts]\nsize=1\n1\\server_nickname=PS4-Test\n1\\target=1000100\n")
	hosts := ReadHosts(path)
	require.Len(t, hosts, 1)
	assert.Equal(t, "PS4-Test", hosts[0].Name)
	assert.True(t, hosts[0].IsPS5())
}

func TestReadHostsMissingFileOrSection(t *testing.T) {
	assert.Empty(t, ReadHosts(filepath.Join(t.TempDir(), "absent.conf")))
	assert.Empty(t, ReadHosts(writeConf(t, "[General]\nfoo=bar\n")))
}

func TestReadHostsSkipsEmptyIndices(t *testing.T) {
	path := writeConf(t, "[registered_hosts]\nsize=3\n1\\server_nickname=a\n3\\server_nickname=c\n")
	hosts := ReadHosts(path)
	require.Len(t, hosts, 2)
	assert.Equal(t, "a", hosts[0].Name)
	assert.Equal(t, "c", hosts[1].Name)
}

func TestReadHostsBadTargetIsSkipped(t *testing.T) {
	path := writeConf(t, "[registered_hosts]\nsize=1\n1\\server_nickname=a\n1\\target=abc\n")
	hosts := ReadHosts(path)
	require.Len(t, hosts, 1)
	assert.Equal(t, 0, hosts[0].Target)
}

func TestReadHostsKeysAreCaseInsensitive(t *testing.T) {
	path := writeConf(t, "[registered_hosts]\nSize=1\n1\\Server_Nickname=Upper\n")
	hosts := ReadHosts(path)
	require.Len(t, hosts, 1)
	assert.Equal(t, "Upper", hosts[0].Name)
}

func TestFindByMACIgnoresCaseAndSeparators(t *testing.T) {
	hosts := ReadHosts(writeConf(t, sampleConf))

	for _, q := range []string{"bc:60:a7:92:4a:46", "BC60A7924A46", "bc-60-a7-92-4a-46"} {
		h, ok := FindByMAC(hosts, q)
		require.True(t, ok, q)
		assert.Equal(t, "PS4-910", h.Name)
	}
	_, ok := FindByMAC(hosts, "00:00:00:00:00:01")
	assert.False(t, ok)
}

func TestFindByName(t *testing.T) {
	hosts := ReadHosts(writeConf(t, sampleConf))
	h, ok := FindByName(hosts, "PS5-Living")
	require.True(t, ok)
	assert.Equal(t, "00:11:22:33:44:55", h.MAC)

	_, ok = FindByName(hosts, "ps5-living")
	assert.False(t, ok)
}

func TestStoreRereadsOnEveryQuery(t *testing.T) {
	path := writeConf(t, "[registered_hosts]\nsize=1\n1\\server_nickname=first\n")
	s := NewStore(path)
	require.Len(t, s.Hosts(), 1)

	require.NoError(t, os.WriteFile(path, []byte("[registered_hosts]\nsize=2\n1\\server_nickname=first\n2\\server_nickname=second\n"), 0o600))
	assert.Len(t, s.Hosts(), 2)

	h, ok := s.Lookup("second")
	require.True(t, ok)
	assert.Equal(t, "second", h.Name)
}

func TestStoreLookupFallsBackToMAC(t *testing.T) {
	s := NewStore(writeConf(t, sampleConf))
	h, ok := s.Lookup("bc60a7924a46")
	require.True(t, ok)
	assert.Equal(t, "PS4-910", h.Name)

	_, ok = s.Lookup("nobody")
	assert.False(t, ok)
}

func TestStoreAccountID(t *testing.T) {
	id, ok := NewStore(writeConf(t, sampleConf)).AccountID()
	require.True(t, ok)
	assert.Equal(t, "AAECAwQFBgc=", id)

	_, ok = NewStore(writeConf(t, "[registered_hosts]\nsize=0\n")).AccountID()
	assert.False(t, ok)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConf(t, "[registered_hosts]\nsize=1\n1\\server_nickname=first\n")
	changed := make(chan []Host, 4)
	w, err := NewWatcher(NewStore(path), func(h []Host) { changed <- h })
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.Len(t, w.Hosts(), 1)
	require.NoError(t, os.WriteFile(path, []byte("[registered_hosts]\nsize=2\n1\\server_nickname=a\n2\\server_nickname=b\n"), 0o600))

	select {
	case hosts := <-changed:
		assert.Len(t, hosts, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}
	assert.Len(t, w.Hosts(), 2)
}
