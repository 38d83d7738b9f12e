package accounts

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nardis556/ikon-loadGenerator/pkg/crypto"
)

func entry(t *testing.T) (addr, key string) {
	t.Helper()
	s, err := crypto.GenerateKey()
	require.NoError(t, err)
	return s.Address().Hex(), "0x" + s.PrivateKeyHex()
}

func TestLoad(t *testing.T) {
	a1, k1 := entry(t)
	a2, k2 := entry(t)
	a3, _ := entry(t)
	_, k4 := entry(t)

	content := strings.Join([]string{
		fmt.Sprintf("ACCOUNT10=%s,%s,api-10,secret-10", strings.ToLower(a2), k2),
		fmt.Sprintf("account2=%s, %s ,api-2,secret-2", a1, k1),
		fmt.Sprintf("ACCOUNT3=%s,%s,api-3,secret-3", a3, k4), // mismatched key
		"ACCOUNT4=only,three,fields",
		"WALLET=0xabc",
		"",
	}, "\n")

	path := filepath.Join(t.TempDir(), ".env.ACCOUNTS")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	accts, err := Load(path, nil)
	require.NoError(t, err)
	require.Len(t, accts, 2)

	assert.Equal(t, "account2", accts[0].Key)
	assert.Equal(t, a1, accts[0].WalletAddress)
	assert.Equal(t, k1, accts[0].PrivateKey)
	assert.Equal(t, "api-2", accts[0].APIKey)
	assert.Equal(t, "secret-2", accts[0].APISecret)

	assert.Equal(t, "ACCOUNT10", accts[1].Key)
	assert.Equal(t, a2, accts[1].WalletAddress, "address is normalised to checksum form")

	assert.NotContains(t, accts[0].String(), k1)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)

	_, err = Parse(map[string]string{"FOO": "bar"}, nil)
	assert.ErrorIs(t, err, ErrNoAccounts)
}

func TestRenumber(t *testing.T) {
	in := "ACCOUNT7=a,b,c,d\n# comment=kept\n\nacct=e,f,g,h\nACCOUNT1=i,j,k,l"
	var out bytes.Buffer

	n, err := Renumber(strings.NewReader(in), &out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "ACCOUNT0001=a,b,c,d\n# comment=kept\n\nACCOUNT0002=e,f,g,h\nACCOUNT0003=i,j,k,l\n", out.String())
}
