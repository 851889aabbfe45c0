package transfer

import (
	"errors"
	"fmt"

	"github.com/BioHazard786/warpmesh/internal/ui"
)

var (
	ErrTransferUnavailable = errors.New("no open file channels")
	ErrInvalidFile         = errors.New("invalid file")
	ErrTransferCancelled   = errors.New("transfer cancelled")
)

// TransferError describes a failed caller-facing operation.
type TransferError struct {
	Op      string
	File    string
	Err     error
	Details string
}

func (e *TransferError) Error() string {
	switch {
	case e.File != "" && e.Details != "":
		return fmt.Sprintf("%s %s: %v (%s)", e.Op, e.File, e.Err, e.Details)
	case e.File != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
	case e.Details != "":
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func (e *TransferError) Print() {
	ui.PrintError(e.Error())
}

func NewError(op string, err error) *TransferError {
	return &TransferError{Op: op, Err: err}
}

func NewFileError(op, file string, err error) *TransferError {
	return &TransferError{Op: op, File: file, Err: err}
}

func WrapError(op string, err error, details string) *TransferError {
	return &TransferError{Op: op, Err: err, Details: details}
}

// PrintErr renders err on stderr in the error style.
func PrintErr(err error) {
	var te *TransferError
	if errors.As(err, &te) {
		te.Print()
		return
	}
	ui.PrintError(err.Error())
}
