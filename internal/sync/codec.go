package sync

import (
	"encoding/json"
	"fmt"

	"github.com/mzlad1/BenchPOS-sub001/internal/model"
)

// Payloads travel as the model structs serialized to JSON. Both ends of the
// pipe run this same codebase, so the Go field names are the wire contract.

func EncodeProduct(p *model.Product) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode product %s: %w", p.ID, err)
	}
	return string(b), nil
}

func DecodeProduct(data string) (*model.Product, error) {
	var p model.Product
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	return &p, nil
}

func EncodeInvoice(inv *model.Invoice) (string, error) {
	b, err := json.Marshal(inv)
	if err != nil {
		return "", fmt.Errorf("encode invoice %s: %w", inv.ID, err)
	}
	return string(b), nil
}

func DecodeInvoice(data string) (*model.Invoice, error) {
	var inv model.Invoice
	if err := json.Unmarshal([]byte(data), &inv); err != nil {
		return nil, fmt.Errorf("decode invoice: %w", err)
	}
	return &inv, nil
}

func EncodeCustomer(c *model.Customer) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode customer %s: %w", c.ID, err)
	}
	return string(b), nil
}

func DecodeCustomer(data string) (*model.Customer, error) {
	var c model.Customer
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("decode customer: %w", err)
	}
	return &c, nil
}
