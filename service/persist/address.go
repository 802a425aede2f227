package persist

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ZeroAddress is the all-zero Ethereum address
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// Address represents an EVM account or contract address, stored in EIP-55
// checksum form. The empty string persists as SQL NULL.
type Address string

// TxHash represents an EVM transaction hash
type TxHash string

// Uint256 represents an arbitrary-precision unsigned integer persisted as a
// base 10 NUMERIC(78,0). The empty string persists as SQL NULL.
type Uint256 string

// BlockNumber represents an EVM block number
type BlockNumber uint64

func (a Address) String() string {
	return checksumAddress(string(a))
}

// Address returns the ethereum address byte array
func (a Address) Address() common.Address {
	return common.HexToAddress(a.String())
}

// Equals compares two addresses ignoring checksum case
func (a Address) Equals(other Address) bool {
	return strings.EqualFold(string(a), string(other))
}

// Value implements the driver.Valuer interface for the Address type
func (a Address) Value() (driver.Value, error) {
	if a == "" {
		return nil, nil
	}
	return a.String(), nil
}

// Scan implements the sql.Scanner interface for the Address type
func (a *Address) Scan(src interface{}) error {
	if src == nil {
		*a = Address("")
		return nil
	}
	switch it := src.(type) {
	case string:
		*a = Address(it)
	case []uint8:
		*a = Address(it)
	default:
		return fmt.Errorf("unsupported Address source type %T", src)
	}
	return nil
}

// MarshalJSON implements the json.Marshaler interface for the Address type
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for the Address type
func (a *Address) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*a = Address(checksumAddress(s))
	return nil
}

func (t TxHash) String() string {
	return strings.ToLower(string(t))
}

// Hash returns the transaction hash byte array
func (t TxHash) Hash() common.Hash {
	return common.HexToHash(t.String())
}

// Value implements the driver.Valuer interface for the TxHash type
func (t TxHash) Value() (driver.Value, error) {
	return t.String(), nil
}

// Scan implements the sql.Scanner interface for the TxHash type
func (t *TxHash) Scan(src interface{}) error {
	if src == nil {
		*t = TxHash("")
		return nil
	}
	switch it := src.(type) {
	case string:
		*t = TxHash(it)
	case []uint8:
		*t = TxHash(it)
	default:
		return fmt.Errorf("unsupported TxHash source type %T", src)
	}
	return nil
}

// Uint256FromBig converts a big.Int to its decimal persisted form
func Uint256FromBig(i *big.Int) Uint256 {
	if i == nil {
		return Uint256("")
	}
	return Uint256(i.String())
}

// Uint256FromUint64 converts a uint64 to its decimal persisted form
func Uint256FromUint64(i uint64) Uint256 {
	return Uint256(new(big.Int).SetUint64(i).String())
}

func (u Uint256) String() string {
	return string(u)
}

// IsNull returns true when no value is set
func (u Uint256) IsNull() bool {
	return u == ""
}

// BigInt returns the number as a big.Int, or nil when no value is set
func (u Uint256) BigInt() *big.Int {
	if u == "" {
		return nil
	}
	it, ok := new(big.Int).SetString(string(u), 10)
	if !ok {
		it, _ = new(big.Int).SetString(strings.TrimPrefix(strings.ToLower(string(u)), "0x"), 16)
	}
	return it
}

// Value implements the driver.Valuer interface for the Uint256 type
func (u Uint256) Value() (driver.Value, error) {
	if u == "" {
		return nil, nil
	}
	return u.String(), nil
}

// Scan implements the sql.Scanner interface for the Uint256 type
func (u *Uint256) Scan(src interface{}) error {
	if src == nil {
		*u = Uint256("")
		return nil
	}
	switch it := src.(type) {
	case string:
		*u = Uint256(it)
	case []uint8:
		*u = Uint256(it)
	case int64:
		*u = Uint256(big.NewInt(it).String())
	default:
		return fmt.Errorf("unsupported Uint256 source type %T", src)
	}
	return nil
}

// Uint64 returns the ethereum block number as a uint64
func (b BlockNumber) Uint64() uint64 {
	return uint64(b)
}

// BigInt returns the ethereum block number as a big.Int
func (b BlockNumber) BigInt() *big.Int {
	return new(big.Int).SetUint64(b.Uint64())
}

func (b BlockNumber) String() string {
	return b.BigInt().String()
}

// Hex returns the ethereum block number as a hex string
func (b BlockNumber) Hex() string {
	return strings.ToLower(b.BigInt().Text(16))
}

// Value implements the driver.Valuer interface for the BlockNumber type
func (b BlockNumber) Value() (driver.Value, error) {
	return b.BigInt().Int64(), nil
}

// Scan implements the sql.Scanner interface for the BlockNumber type
func (b *BlockNumber) Scan(src interface{}) error {
	if src == nil {
		*b = BlockNumber(0)
		return nil
	}
	*b = BlockNumber(src.(int64))
	return nil
}

// checksumAddress normalizes an address to its EIP-55 checksum form, keeping
// the low 20 bytes. Returns "" for anything too short to be an address.
func checksumAddress(address string) string {
	withoutPrefix := strings.TrimPrefix(strings.ToLower(address), "0x")
	if len(withoutPrefix) < 40 {
		return ""
	}
	return common.HexToAddress("0x" + withoutPrefix[len(withoutPrefix)-40:]).Hex()
}
