package store

import "fmt"

func itoa(value int) string {
	return fmt.Sprintf("%d", value)
}

func derefStringPtr(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
