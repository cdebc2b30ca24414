package zkproof

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

var (
	// ErrInvalidProof marks a proof that failed validation or
	// verification. Not retryable without regenerating the proof.
	ErrInvalidProof = errors.New("invalid proof")

	// ErrProofGenerationFailed marks a circuit or witness error during
	// proof generation. Generation runs off the request path (client side
	// or a dedicated worker); the sentinel is surfaced as retryable.
	ErrProofGenerationFailed = errors.New("proof generation failed")
)

const (
	ProtocolGroth16 = "groth16"
	CurveBN128      = "bn128"
)

// RawProof is the wire shape of a claim eligibility proof. All numeric
// elements are arbitrary-precision decimal strings. Slices are used so that
// the shape of the incoming JSON can be checked explicitly; ParseProof is
// the only way to obtain a Proof.
type RawProof struct {
	PiA      []string   `json:"pi_a"`
	PiB      [][]string `json:"pi_b"`
	PiC      []string   `json:"pi_c"`
	Protocol string     `json:"protocol"`
	Curve    string     `json:"curve"`
}

// Proof is a shape- and range-validated groth16 proof over bn128. PiA and
// PiC hold projective G1 coordinates; PiB holds the G2 element laid out
// column-major, two rows (c0 and c1 parts) of three columns (X, Y, Z).
type Proof struct {
	PiA [3]*big.Int
	PiB [2][3]*big.Int
	PiC [3]*big.Int
}

// ParseProof validates the wire shape of a proof and the field range of
// every element. Any violation is ErrInvalidProof; no curve arithmetic is
// attempted on malformed input.
func ParseProof(raw *RawProof) (*Proof, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: missing proof", ErrInvalidProof)
	}
	if raw.Protocol != ProtocolGroth16 {
		return nil, fmt.Errorf("%w: unsupported protocol %q", ErrInvalidProof, raw.Protocol)
	}
	if raw.Curve != CurveBN128 {
		return nil, fmt.Errorf("%w: unsupported curve %q", ErrInvalidProof, raw.Curve)
	}
	if len(raw.PiA) != 3 {
		return nil, fmt.Errorf("%w: pi_a must have 3 elements, got %d", ErrInvalidProof, len(raw.PiA))
	}
	if len(raw.PiC) != 3 {
		return nil, fmt.Errorf("%w: pi_c must have 3 elements, got %d", ErrInvalidProof, len(raw.PiC))
	}
	if len(raw.PiB) != 2 {
		return nil, fmt.Errorf("%w: pi_b must have 2 rows, got %d", ErrInvalidProof, len(raw.PiB))
	}
	for i, row := range raw.PiB {
		if len(row) != 3 {
			return nil, fmt.Errorf("%w: pi_b row %d must have 3 elements, got %d", ErrInvalidProof, i, len(row))
		}
	}

	var p Proof
	var err error
	for i := 0; i < 3; i++ {
		if p.PiA[i], err = parseFieldElement(raw.PiA[i], fp.Modulus()); err != nil {
			return nil, fmt.Errorf("%w: pi_a[%d]: %v", ErrInvalidProof, i, err)
		}
		if p.PiC[i], err = parseFieldElement(raw.PiC[i], fp.Modulus()); err != nil {
			return nil, fmt.Errorf("%w: pi_c[%d]: %v", ErrInvalidProof, i, err)
		}
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			if p.PiB[i][j], err = parseFieldElement(raw.PiB[i][j], fp.Modulus()); err != nil {
				return nil, fmt.Errorf("%w: pi_b[%d][%d]: %v", ErrInvalidProof, i, j, err)
			}
		}
	}

	// Affine points arrive in projective form with a trivial Z; reject
	// anything else before the coordinates are trusted.
	if p.PiA[2].Cmp(big.NewInt(1)) != 0 {
		return nil, fmt.Errorf("%w: pi_a is not normalized", ErrInvalidProof)
	}
	if p.PiC[2].Cmp(big.NewInt(1)) != 0 {
		return nil, fmt.Errorf("%w: pi_c is not normalized", ErrInvalidProof)
	}
	if p.PiB[0][2].Cmp(big.NewInt(1)) != 0 || p.PiB[1][2].Sign() != 0 {
		return nil, fmt.Errorf("%w: pi_b is not normalized", ErrInvalidProof)
	}

	return &p, nil
}

// ParseSignals validates public signals as decimal scalars within the bn254
// scalar field.
func ParseSignals(signals []string) ([]*big.Int, error) {
	if len(signals) == 0 {
		return nil, fmt.Errorf("%w: missing public signals", ErrInvalidProof)
	}

	out := make([]*big.Int, len(signals))
	for i, s := range signals {
		v, err := parseFieldElement(s, fr.Modulus())
		if err != nil {
			return nil, fmt.Errorf("%w: public signal %d: %v", ErrInvalidProof, i, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseFieldElement(s string, modulus *big.Int) (*big.Int, error) {
	if s == "" {
		return nil, errors.New("empty element")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not a decimal integer: %q", s)
	}
	if v.Sign() < 0 {
		return nil, errors.New("negative element")
	}
	if v.Cmp(modulus) >= 0 {
		return nil, errors.New("element exceeds field modulus")
	}
	return v, nil
}
