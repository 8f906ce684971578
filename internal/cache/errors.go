package cache

import "errors"

var (
	ErrLoad = errors.New("could not recover build status")
	ErrSave = errors.New("could not save build status")
)
