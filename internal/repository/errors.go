package repository

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrSaveFailed = errors.New("save failed")
	ErrBadRequest = errors.New("bad request")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
)

func IsErrNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsErrSaveFailed(err error) bool { return errors.Is(err, ErrSaveFailed) }
func IsErrBadRequest(err error) bool { return errors.Is(err, ErrBadRequest) }
func IsErrForbidden(err error) bool  { return errors.Is(err, ErrForbidden) }
func IsErrConflict(err error) bool   { return errors.Is(err, ErrConflict) }
