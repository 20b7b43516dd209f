// Package securerandom provides crypto/rand-backed helpers for the random
// decisions the engine makes (region sampling, chain region shuffling).
// math/rand is deliberately not used anywhere in this module.
package securerandom

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Int returns a cryptographically secure random integer in the range [min, max].
func Int(min, max int) (int, error) {
	if max <= min {
		return 0, fmt.Errorf("max must be greater than min (got min=%d, max=%d)", min, max)
	}

	rangeSize := int64(max-min) + 1
	nBig, err := rand.Int(rand.Reader, big.NewInt(rangeSize))
	if err != nil {
		return 0, err
	}
	return int(nBig.Int64()) + min, nil
}

// Perm returns a random permutation of the integers [0,n).
func Perm(n int) ([]int, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid argument to Perm: %d", n)
	}

	result := make([]int, n)
	for i := range result {
		result[i] = i
	}
	if err := Shuffle(result, func(i, j int) {
		result[i], result[j] = result[j], result[i]
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// Shuffle performs a Fisher-Yates shuffle over a slice via the swap
// function.
func Shuffle[T any](slice []T, swap func(i, j int)) error {
	for i := len(slice) - 1; i > 0; i-- {
		j, err := Int(0, i)
		if err != nil {
			return err
		}
		swap(i, j)
	}
	return nil
}
