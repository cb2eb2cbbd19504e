package movements

import (
	"fmt"
	"strings"

	"github.com/warp/stock-engine/inventory"
)

// PartyRole labels the counterparty named in a reference annotation.
type PartyRole string

const (
	PartySupplier PartyRole = "Supplier"
	PartyCustomer PartyRole = "Customer"
)

// Annotate appends a human-readable counterparty note to a reference.
// The result is display text only; it is not parsed back into a link.
//
//	Annotate("PO-7", PartySupplier, &Party{ID: 4, Name: "Acme"}) == "PO-7 (Supplier: Acme #4)"
//	Annotate("", PartySupplier, &Party{ID: 4, Name: "Acme"})     == "Supplier: Acme #4"
//	Annotate("PO-7", PartySupplier, nil)                          == "PO-7"
func Annotate(reference string, role PartyRole, party *inventory.Party) string {
	reference = strings.TrimSpace(reference)
	if party == nil {
		return reference
	}
	note := fmt.Sprintf("%s: %s #%d", role, party.Name, party.ID)
	if reference == "" {
		return note
	}
	return fmt.Sprintf("%s (%s)", reference, note)
}

// ProductionReference is the reference carried by consumption movements.
func ProductionReference(itemName, reference string) string {
	base := "Production of " + itemName
	if reference = strings.TrimSpace(reference); reference != "" {
		return base + " - " + reference
	}
	return base
}
