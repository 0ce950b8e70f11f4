package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fidelity/loyalty-engine/ledger"
)

func customer(code string) ledger.Account {
	return ledger.Account{ID: ledger.NewID(), Code: code, Role: ledger.RoleCustomer}
}

func TestNextCode_EmptyLedger(t *testing.T) {
	got := ledger.NextCode(nil, "CL", 3)
	assert.Equal(t, "CL001", got)
}

func TestNextCode_FillsLowestGap(t *testing.T) {
	// GIVEN: CL001, CL002, CL004 (CL003 was deleted)
	// WHEN: Allocating the next code
	// THEN: The gap at 3 is filled before the sequence continues

	accounts := []ledger.Account{customer("CL001"), customer("CL002"), customer("CL004")}
	assert.Equal(t, "CL003", ledger.NextCode(accounts, "CL", 3))
}

func TestNextCode_ContinuesSequenceWhenDense(t *testing.T) {
	accounts := []ledger.Account{customer("CL001"), customer("CL002"), customer("CL003")}
	assert.Equal(t, "CL004", ledger.NextCode(accounts, "CL", 3))
}

func TestNextCode_OrderIndependent(t *testing.T) {
	accounts := []ledger.Account{customer("CL004"), customer("CL001"), customer("CL002")}
	assert.Equal(t, "CL003", ledger.NextCode(accounts, "CL", 3))
}

func TestNextCode_IgnoresForeignCodes(t *testing.T) {
	// Admin codes, other prefixes, and malformed suffixes never block a slot.
	accounts := []ledger.Account{
		{ID: "1", Code: "admin", Role: ledger.RoleAdmin},
		{ID: "2", Code: "CL001", Role: ledger.RoleAdmin}, // customer-looking code on an admin
		customer("XX001"),
		customer("CLabc"),
		customer("CL-5"),
	}
	assert.Equal(t, "CL001", ledger.NextCode(accounts, "CL", 3))
}

func TestNextCode_BeyondPaddingWidth(t *testing.T) {
	var accounts []ledger.Account
	for i := 1; i <= 999; i++ {
		accounts = append(accounts, customer(ledger.FormatCode(i, "CL", 3)))
	}
	assert.Equal(t, "CL1000", ledger.NextCode(accounts, "CL", 3))
}

func TestFormatCode(t *testing.T) {
	assert.Equal(t, "CL001", ledger.FormatCode(1, "CL", 3))
	assert.Equal(t, "CL042", ledger.FormatCode(42, "CL", 3))
	assert.Equal(t, "CL1234", ledger.FormatCode(1234, "CL", 3))
	assert.Equal(t, "M00007", ledger.FormatCode(7, "M", 5))
}
