package engine

import (
	"fmt"
)

// InvalidInputError сообщает о нечисловом значении во входном ряду
type InvalidInputError struct {
	Index int
	Field string
	Value float64
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("некорректное значение %s=%v в свече %d", e.Field, e.Value, e.Index)
}
