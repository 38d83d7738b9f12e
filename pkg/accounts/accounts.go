// Package accounts loads trading account credentials from an env-style
// file of ACCOUNT<N>=walletAddress,privateKey,apiKey,apiSecret lines.
package accounts

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nardis556/ikon-loadGenerator/pkg/crypto"
)

var (
	accountKeyRe = regexp.MustCompile(`(?i)^ACCOUNT(\d+)$`)

	ErrNoAccounts = errors.New("accounts: no valid accounts found")
)

type Account struct {
	Key           string
	WalletAddress string
	PrivateKey    string
	APIKey        string
	APISecret     string

	index int
}

// String never includes secrets.
func (a Account) String() string {
	return a.Key + "(" + a.WalletAddress + ")"
}

// Load reads path and returns its valid accounts ordered by account
// number. Malformed entries and entries whose wallet address does not
// match the private key are logged and skipped.
func Load(path string, log *zap.SugaredLogger) ([]Account, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("accounts: read %s: %w", path, err)
	}
	return Parse(env, log)
}

// Parse validates already-read key/value pairs.
func Parse(env map[string]string, log *zap.SugaredLogger) ([]Account, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	out := make([]Account, 0, len(env))
	for key, value := range env {
		acct, err := parseEntry(key, value)
		if err != nil {
			log.Errorw("account_skipped", "key", key, "error", err)
			continue
		}
		out = append(out, acct)
	}
	if len(out) == 0 {
		return nil, ErrNoAccounts
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].index != out[j].index {
			return out[i].index < out[j].index
		}
		return out[i].Key < out[j].Key
	})
	for _, a := range out {
		log.Infow("account_loaded", "key", a.Key, "wallet", a.WalletAddress)
	}
	return out, nil
}

func parseEntry(key, value string) (Account, error) {
	m := accountKeyRe.FindStringSubmatch(strings.TrimSpace(key))
	if m == nil {
		return Account{}, fmt.Errorf("invalid account key format")
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return Account{}, fmt.Errorf("invalid account number: %w", err)
	}

	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return Account{}, fmt.Errorf("want 4 comma separated fields, got %d", len(parts))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return Account{}, fmt.Errorf("field %d is empty", i+1)
		}
	}

	signer, err := crypto.FromPrivateKeyHex(parts[1])
	if err != nil {
		return Account{}, err
	}
	if !signer.MatchesAddress(parts[0]) {
		return Account{}, fmt.Errorf("wallet %s does not match private key (derived %s)", parts[0], signer.Address().Hex())
	}

	return Account{
		Key:           strings.TrimSpace(key),
		WalletAddress: signer.Address().Hex(),
		PrivateKey:    parts[1],
		APIKey:        parts[2],
		APISecret:     parts[3],
		index:         idx,
	}, nil
}

// Renumber copies an account file, rewriting every KEY= prefix to
// ACCOUNT0001, ACCOUNT0002, ... in file order. Blank lines and comments
// pass through. It returns the number of entries rewritten.
func Renumber(r io.Reader, w io.Writer) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	bw := bufio.NewWriter(w)

	n := 0
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if eq := strings.IndexByte(line, '='); eq > 0 && !strings.HasPrefix(trimmed, "#") {
			n++
			line = fmt.Sprintf("ACCOUNT%04d%s", n, line[eq:])
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return n, err
		}
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("accounts: renumber: %w", err)
	}
	return n, bw.Flush()
}
