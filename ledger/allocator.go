/*
allocator.go - Gap-filling external code allocation

Customer codes are sequential ("CL001", "CL002", ...) but deletions free
their code for reuse: deleting CL003 makes CL003 the next code handed
out, rather than the counter marching on forever. The allocator scans
existing customer codes and returns the smallest unused positive number.
*/
package ledger

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	DefaultCodePrefix = "CL"
	DefaultCodeWidth  = 3
)

// NextCode returns the lowest-numbered unused external code among the
// given accounts. Only customer accounts participate; codes that do not
// parse as prefix+integer are ignored.
//
// The result is only as fresh as the account list: two racing creations
// can compute the same gap. CreateAccount resolves that by retrying on
// the store's uniqueness conflict with a recomputed gap.
func NextCode(accounts []Account, prefix string, width int) string {
	var taken []int
	for _, a := range accounts {
		if a.Role != RoleCustomer || !strings.HasPrefix(a.Code, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(a.Code, prefix))
		if err != nil || n <= 0 {
			continue
		}
		taken = append(taken, n)
	}
	sort.Ints(taken)

	// Walk past the contiguous run starting at 1; the first gap wins.
	next := 1
	for _, n := range taken {
		if n == next {
			next++
		} else if n > next {
			break
		}
	}
	return FormatCode(next, prefix, width)
}

// FormatCode renders a code number with the given prefix, zero-padded to
// width digits. Numbers wider than width keep all their digits.
func FormatCode(n int, prefix string, width int) string {
	return fmt.Sprintf("%s%0*d", prefix, width, n)
}
