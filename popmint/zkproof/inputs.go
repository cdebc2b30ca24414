package zkproof

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// DeriveInputs computes the public circuit inputs binding a claim to its
// session, device and wallet: [nonce, deviceHash, sessionIdHash, wallet],
// each byte string interpreted as a big-endian integer and reduced into the
// bn254 scalar field. The session id is hashed first so the raw identifier
// never appears among the signals. An absent wallet contributes zero.
//
// Generating the proof itself is CPU-bound (seconds) and runs off the
// request path; the server only derives inputs to check that submitted
// public signals carry the expected binding.
func DeriveInputs(sessionID, nonce, deviceHash, wallet string) []*big.Int {
	sessionHash := sha256.Sum256([]byte(sessionID))

	inputs := []*big.Int{
		bytesToField([]byte(nonce)),
		bytesToField([]byte(deviceHash)),
		bytesToField([]byte(hex.EncodeToString(sessionHash[:]))),
		big.NewInt(0),
	}
	if wallet != "" {
		inputs[3] = bytesToField([]byte(wallet))
	}
	return inputs
}

// BindsTo reports whether the submitted public signals equal the inputs
// derived for this claim attempt.
func BindsTo(signals, derived []*big.Int) bool {
	if len(signals) != len(derived) {
		return false
	}
	for i := range signals {
		if signals[i].Cmp(derived[i]) != 0 {
			return false
		}
	}
	return true
}

func bytesToField(b []byte) *big.Int {
	v := new(big.Int).SetBytes(b)
	return v.Mod(v, fr.Modulus())
}
