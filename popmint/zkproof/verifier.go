package zkproof

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
)

// VerifyingKey is the fixed groth16 verification key the gate checks every
// proof against.
type VerifyingKey struct {
	Alpha bn254.G1Affine
	Beta  bn254.G2Affine
	Gamma bn254.G2Affine
	Delta bn254.G2Affine
	IC    []bn254.G1Affine
}

// Verifier performs pairing-based verification of eligibility proofs. It
// fails closed: any malformed element, wrong subgroup, or signal count
// mismatch is rejected before the pairing is computed.
type Verifier struct {
	vk *VerifyingKey
}

func NewVerifier(vk *VerifyingKey) (*Verifier, error) {
	if vk == nil || len(vk.IC) == 0 {
		return nil, fmt.Errorf("verifying key has no IC points")
	}
	return &Verifier{vk: vk}, nil
}

// Verify checks the groth16 pairing equation
//
//	e(-A, B) * e(alpha, beta) * e(vk_x, gamma) * e(C, delta) == 1
//
// for a shape-validated proof and its public signals. A nil return means the
// proof is valid; every failure path is ErrInvalidProof.
func (v *Verifier) Verify(proof *Proof, signals []*big.Int) error {
	if proof == nil {
		return fmt.Errorf("%w: missing proof", ErrInvalidProof)
	}
	if len(signals) != len(v.vk.IC)-1 {
		return fmt.Errorf("%w: expected %d public signals, got %d", ErrInvalidProof, len(v.vk.IC)-1, len(signals))
	}

	a, err := g1FromCoords(proof.PiA[0], proof.PiA[1])
	if err != nil {
		return fmt.Errorf("%w: pi_a: %v", ErrInvalidProof, err)
	}
	c, err := g1FromCoords(proof.PiC[0], proof.PiC[1])
	if err != nil {
		return fmt.Errorf("%w: pi_c: %v", ErrInvalidProof, err)
	}
	// pi_b is column-major: row 0 carries the c0 parts of (X, Y), row 1
	// the c1 parts.
	b, err := g2FromCoords(proof.PiB[0][0], proof.PiB[1][0], proof.PiB[0][1], proof.PiB[1][1])
	if err != nil {
		return fmt.Errorf("%w: pi_b: %v", ErrInvalidProof, err)
	}

	var acc bn254.G1Jac
	acc.FromAffine(&v.vk.IC[0])
	for i, s := range signals {
		var term bn254.G1Affine
		term.ScalarMultiplication(&v.vk.IC[i+1], s)

		var termJac bn254.G1Jac
		termJac.FromAffine(&term)
		acc.AddAssign(&termJac)
	}
	var vkx bn254.G1Affine
	vkx.FromJacobian(&acc)

	var negA bn254.G1Affine
	negA.Neg(&a)

	ok, err := bn254.PairingCheck(
		[]bn254.G1Affine{negA, v.vk.Alpha, vkx, c},
		[]bn254.G2Affine{b, v.vk.Beta, v.vk.Gamma, v.vk.Delta},
	)
	if err != nil {
		return fmt.Errorf("%w: pairing check: %v", ErrInvalidProof, err)
	}
	if !ok {
		return fmt.Errorf("%w: pairing equation does not hold", ErrInvalidProof)
	}
	return nil
}

func g1FromCoords(x, y *big.Int) (bn254.G1Affine, error) {
	var p bn254.G1Affine
	p.X.SetBigInt(x)
	p.Y.SetBigInt(y)

	if p.IsInfinity() {
		return p, fmt.Errorf("point at infinity")
	}
	if !p.IsOnCurve() {
		return p, fmt.Errorf("point not on curve")
	}
	if !p.IsInSubGroup() {
		return p, fmt.Errorf("point not in subgroup")
	}
	return p, nil
}

func g2FromCoords(x0, x1, y0, y1 *big.Int) (bn254.G2Affine, error) {
	var p bn254.G2Affine
	p.X.A0.SetBigInt(x0)
	p.X.A1.SetBigInt(x1)
	p.Y.A0.SetBigInt(y0)
	p.Y.A1.SetBigInt(y1)

	if p.IsInfinity() {
		return p, fmt.Errorf("point at infinity")
	}
	if !p.IsOnCurve() {
		return p, fmt.Errorf("point not on curve")
	}
	if !p.IsInSubGroup() {
		return p, fmt.Errorf("point not in subgroup")
	}
	return p, nil
}

// verifyingKeyFile mirrors the snarkjs verification_key.json layout.
type verifyingKeyFile struct {
	Protocol string       `json:"protocol"`
	Curve    string       `json:"curve"`
	NPublic  int          `json:"nPublic"`
	Alpha1   []string     `json:"vk_alpha_1"`
	Beta2    [][]string   `json:"vk_beta_2"`
	Gamma2   [][]string   `json:"vk_gamma_2"`
	Delta2   [][]string   `json:"vk_delta_2"`
	IC       [][]string   `json:"IC"`
}

// LoadVerifyingKey reads a snarkjs-format verification key from disk. The
// key is loaded once at startup and treated as fixed afterwards.
func LoadVerifyingKey(path string) (*VerifyingKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read verifying key: %w", err)
	}

	var file verifyingKeyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse verifying key: %w", err)
	}
	if file.Protocol != ProtocolGroth16 {
		return nil, fmt.Errorf("unsupported verifying key protocol %q", file.Protocol)
	}
	if file.Curve != CurveBN128 {
		return nil, fmt.Errorf("unsupported verifying key curve %q", file.Curve)
	}
	if len(file.IC) != file.NPublic+1 {
		return nil, fmt.Errorf("verifying key has %d IC points, expected %d", len(file.IC), file.NPublic+1)
	}

	vk := &VerifyingKey{IC: make([]bn254.G1Affine, len(file.IC))}

	if vk.Alpha, err = g1FromFile(file.Alpha1); err != nil {
		return nil, fmt.Errorf("vk_alpha_1: %w", err)
	}
	if vk.Beta, err = g2FromFile(file.Beta2); err != nil {
		return nil, fmt.Errorf("vk_beta_2: %w", err)
	}
	if vk.Gamma, err = g2FromFile(file.Gamma2); err != nil {
		return nil, fmt.Errorf("vk_gamma_2: %w", err)
	}
	if vk.Delta, err = g2FromFile(file.Delta2); err != nil {
		return nil, fmt.Errorf("vk_delta_2: %w", err)
	}
	for i, ic := range file.IC {
		if vk.IC[i], err = g1FromFile(ic); err != nil {
			return nil, fmt.Errorf("IC[%d]: %w", i, err)
		}
	}

	return vk, nil
}

// g1FromFile parses a snarkjs projective G1 point ([x, y, z] with z == 1).
func g1FromFile(coords []string) (bn254.G1Affine, error) {
	var p bn254.G1Affine
	if len(coords) != 3 {
		return p, fmt.Errorf("expected 3 coordinates, got %d", len(coords))
	}
	if coords[2] != "1" {
		return p, fmt.Errorf("point is not normalized")
	}

	x, err := parseFieldElement(coords[0], fp.Modulus())
	if err != nil {
		return p, err
	}
	y, err := parseFieldElement(coords[1], fp.Modulus())
	if err != nil {
		return p, err
	}
	return g1FromCoords(x, y)
}

// g2FromFile parses a snarkjs projective G2 point, three rows of (c0, c1)
// pairs with a trivial Z row.
func g2FromFile(rows [][]string) (bn254.G2Affine, error) {
	var p bn254.G2Affine
	if len(rows) != 3 {
		return p, fmt.Errorf("expected 3 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if len(row) != 2 {
			return p, fmt.Errorf("row %d: expected 2 elements, got %d", i, len(row))
		}
	}
	if rows[2][0] != "1" || rows[2][1] != "0" {
		return p, fmt.Errorf("point is not normalized")
	}

	parts := make([]*big.Int, 4)
	for i, s := range []string{rows[0][0], rows[0][1], rows[1][0], rows[1][1]} {
		v, err := parseFieldElement(s, fp.Modulus())
		if err != nil {
			return p, err
		}
		parts[i] = v
	}
	return g2FromCoords(parts[0], parts[1], parts[2], parts[3])
}
