package usecase

import "fmt"

// ErrPersistence indicates an infrastructure/repository failure inside a use
// case, as opposed to a validation or authorization rejection.
var ErrPersistence = fmt.Errorf("chat use case persistence error")
