package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"golang.org/x/crypto/sha3"
)

// BuiltinKind describes a contract interface whose ABI is embedded in the
// binary. Each lives in its own <name>_abi.go and registers from init().
type BuiltinKind struct {
	ID          string     // machine key, e.g. "erc20permit"
	Name        string     // human label
	Description string     // one-line summary shown by `abi list`
	ABI         []ABIEntry // full ABI
}

var builtinRegistry = map[string]BuiltinKind{}

// RegisterBuiltin adds a built-in ABI to the global registry.
func RegisterBuiltin(b BuiltinKind) {
	builtinRegistry[b.ID] = b
}

// GetBuiltin returns a built-in by ID. ok is false if not found.
func GetBuiltin(id string) (BuiltinKind, bool) {
	b, ok := builtinRegistry[id]
	return b, ok
}

// AllBuiltins returns all registered built-ins sorted by ID.
func AllBuiltins() []BuiltinKind {
	out := make([]BuiltinKind, 0, len(builtinRegistry))
	for _, b := range builtinRegistry {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Parse converts the entries into a go-ethereum ABI.
func (b BuiltinKind) Parse() (abi.ABI, error) {
	raw, err := json.Marshal(b.ABI)
	if err != nil {
		return abi.ABI{}, err
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parsing builtin %s: %w", b.ID, err)
	}
	return parsed, nil
}

// ABIEntry is one ABI entry (function, event, etc.).
type ABIEntry struct {
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	Inputs          []ABIParam `json:"inputs"`
	Outputs         []ABIParam `json:"outputs"`
	StateMutability string     `json:"stateMutability"`
}

// ABIParam is a parameter in an ABI entry.
type ABIParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// IsReadFunction returns true if the function is read-only (view/pure).
func (e ABIEntry) IsReadFunction() bool {
	return e.Type == "function" &&
		(e.StateMutability == "view" || e.StateMutability == "pure")
}

// IsWriteFunction returns true if the function modifies state.
func (e ABIEntry) IsWriteFunction() bool {
	return e.Type == "function" &&
		(e.StateMutability == "nonpayable" || e.StateMutability == "payable")
}

// Signature is the canonical form, e.g. "balanceOf(address,uint256)".
func (e ABIEntry) Signature() string {
	types := make([]string, len(e.Inputs))
	for i, p := range e.Inputs {
		types[i] = p.Type
	}
	return e.Name + "(" + strings.Join(types, ",") + ")"
}

// Selector returns the 4-byte function selector as 0x-prefixed hex.
func (e ABIEntry) Selector() string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(e.Signature()))
	return fmt.Sprintf("0x%x", h.Sum(nil)[:4])
}
