package repo

import "errors"

// Общие ошибки хранилищ.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrCorrupted — запись найдена, но не проходит декодирование или валидацию.
	ErrCorrupted = errors.New("corrupted record")
)
