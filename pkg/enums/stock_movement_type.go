package enums

import "fmt"

// StockMovementType distinguishes explicit stock-in from stock-out movements.
type StockMovementType string

const (
	StockMovementIn  StockMovementType = "in"
	StockMovementOut StockMovementType = "out"
)

func (t StockMovementType) String() string {
	return string(t)
}

func (t StockMovementType) IsValid() bool {
	return t == StockMovementIn || t == StockMovementOut
}

// ParseStockMovementType converts raw input into a StockMovementType.
func ParseStockMovementType(value string) (StockMovementType, error) {
	switch StockMovementType(value) {
	case StockMovementIn, StockMovementOut:
		return StockMovementType(value), nil
	}
	return "", fmt.Errorf("invalid stock movement type %q", value)
}
