package storage

import "fmt"

// Journal key schema:
//
//	ord:<wallet>:<unixNano>:<orderID> → OrderRecord
//	err:<unixNano>:<seq>              → ErrorRecord
//
// Timestamps are zero padded to 20 digits so keys sort chronologically.
const (
	prefixOrder = "ord:"
	prefixError = "err:"
)

func orderKey(wallet string, ts int64, orderID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixOrder, wallet, ts, orderID))
}

// orderPrefix returns the prefix for all orders of a wallet.
func orderPrefix(wallet string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOrder, wallet))
}

func errorKey(ts int64, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d", prefixError, ts, seq))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
