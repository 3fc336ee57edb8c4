package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvoiceTransitions(t *testing.T) {
	legal := []struct{ from, to InvoiceStatus }{
		{InvoicePending, InvoiceProcessing},
		{InvoiceProcessing, InvoiceCompleted},
		{InvoiceProcessing, InvoiceFailed},
		{InvoiceCompleted, InvoiceVerified},
	}
	for _, tr := range legal {
		assert.True(t, tr.from.CanTransition(tr.to), "%s -> %s", tr.from, tr.to)
	}

	illegal := []struct{ from, to InvoiceStatus }{
		{InvoicePending, InvoiceCompleted},
		{InvoicePending, InvoiceVerified},
		{InvoiceCompleted, InvoiceProcessing},
		{InvoiceVerified, InvoicePending},
		{InvoiceFailed, InvoiceProcessing},
	}
	for _, tr := range illegal {
		assert.False(t, tr.from.CanTransition(tr.to), "%s -> %s", tr.from, tr.to)
	}
}

func TestInvoiceTerminalStates(t *testing.T) {
	assert.True(t, InvoiceVerified.Terminal())
	assert.True(t, InvoiceFailed.Terminal())
	assert.False(t, InvoicePending.Terminal())
	assert.False(t, InvoiceProcessing.Terminal())
	assert.False(t, InvoiceCompleted.Terminal())
}
