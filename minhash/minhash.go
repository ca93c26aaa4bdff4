// Package minhash computes fixed-length MinHash signatures over word
// shingles and estimates Jaccard similarity between them.
package minhash

import (
	"hash/crc32"
	"math"
	"math/rand"
	"strings"
)

const (
	// NumHashes is the signature length.
	NumHashes = 100

	// nextPrime is the first prime larger than 2^32.
	nextPrime = 4294967311

	// coeffSeed makes signatures reproducible across processes.
	coeffSeed = 42

	shingleSize = 3
)

// Signature is an ordered vector of per-hash minima. Signatures of the
// same length can be compared with Similarity.
type Signature []uint32

var coeffA, coeffB []uint64

func init() {
	rng := rand.New(rand.NewSource(coeffSeed))
	coeffA = pickCoefficients(rng, NumHashes)
	coeffB = pickCoefficients(rng, NumHashes)
}

// pickCoefficients draws k distinct values in [0, 2^32).
func pickCoefficients(rng *rand.Rand, k int) []uint64 {
	seen := make(map[uint64]bool, k)
	coeffs := make([]uint64, 0, k)
	for len(coeffs) < k {
		c := uint64(rng.Uint32())
		if !seen[c] {
			seen[c] = true
			coeffs = append(coeffs, c)
		}
	}
	return coeffs
}

// TextSignature computes the MinHash signature of a text. An empty text
// (no tokens after cleanup) yields an all-MaxUint32 signature.
func TextSignature(text string) Signature {
	shingles := Shingles(text)

	sig := make(Signature, NumHashes)
	if len(shingles) == 0 {
		for i := range sig {
			sig[i] = math.MaxUint32
		}
		return sig
	}

	hashes := make([]uint64, 0, len(shingles))
	for _, s := range shingles {
		hashes = append(hashes, uint64(crc32.ChecksumIEEE([]byte(s))))
	}

	for i := 0; i < NumHashes; i++ {
		min := uint64(math.MaxUint64)
		for _, h := range hashes {
			v := (coeffA[i]*h + coeffB[i]) % nextPrime
			if v < min {
				min = v
			}
		}
		sig[i] = uint32(min)
	}

	return sig
}

// Shingles extracts the k=3 word shingles of a text. Texts with fewer
// than three tokens use the tokens themselves as shingles.
func Shingles(text string) []string {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) < shingleSize {
		return dedupe(tokens)
	}

	shingles := make([]string, 0, len(tokens)-shingleSize+1)
	for i := 0; i+shingleSize <= len(tokens); i++ {
		shingles = append(shingles, strings.Join(tokens[i:i+shingleSize], " "))
	}
	return dedupe(shingles)
}

// tokenize lowercases, strips non-alphanumeric runes (keeping spaces)
// and splits on whitespace.
func tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			return ' '
		default:
			// Non-ASCII letters (umlauts etc.) are kept, everything
			// else is dropped
			if r > 127 {
				return r
			}
			return -1
		}
	}, strings.ToLower(text))

	return strings.Fields(cleaned)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Similarity returns the Jaccard estimate between two signatures: the
// fraction of positions at which they agree. Signatures of different
// lengths compare as 0.
func Similarity(a, b Signature) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	equal := 0
	for i := range a {
		if a[i] == b[i] {
			equal++
		}
	}
	return float64(equal) / float64(len(a))
}
