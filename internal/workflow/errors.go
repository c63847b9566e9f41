package workflow

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/fpang/hair-diagnosis-helper/internal/gemini"
)

var (
	// ErrBusy is returned while another AI call or upload is in flight.
	ErrBusy = errors.New("an operation is already in progress")
	// ErrSlotsIncomplete is returned when diagnosis is requested before all
	// required slots are attached. The session is left unchanged.
	ErrSlotsIncomplete = errors.New("not all required photos and videos are attached")
	// ErrSelectionIncomplete is returned when generation is requested before
	// a hairstyle and a haircolor are both selected.
	ErrSelectionIncomplete = errors.New("select a hairstyle and a haircolor first")
	// ErrEmptyInstruction is returned for a blank refinement request.
	ErrEmptyInstruction = errors.New("refinement instruction is empty")
	// ErrAlreadySaved is returned when the current image was already saved.
	ErrAlreadySaved = errors.New("image already saved to gallery")
)

// TransitionError reports an action that is not valid in the current phase.
type TransitionError struct {
	Action string
	Phase  Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s during %s", e.Action, e.Phase)
}

// UploadError reports the slots whose uploads failed.
type UploadError struct {
	Failed map[string]error
}

// Slots returns the failed slot names in sorted order.
func (e *UploadError) Slots() []string {
	return slices.Sorted(maps.Keys(e.Failed))
}

func (e *UploadError) Error() string {
	slots := e.Slots()
	if len(slots) == 0 {
		return "upload failed"
	}
	first := slots[0]
	return fmt.Sprintf("upload failed for %d slot(s), e.g. %s: %v", len(slots), first, e.Failed[first])
}

// ErrorCategory groups failures by what the user can do about them.
type ErrorCategory string

const (
	// CategoryNetwork covers transport failures and provider unavailability; retrying later may help.
	CategoryNetwork ErrorCategory = "network"
	// CategoryInvalidResult covers AI output that did not match the expected shape.
	CategoryInvalidResult ErrorCategory = "invalid_result"
	// CategoryMisconfigured covers missing server credentials.
	CategoryMisconfigured ErrorCategory = "misconfigured"
	// CategoryInput covers requests the user must correct.
	CategoryInput ErrorCategory = "input"
)

// UserError is a failure ready to show to the user.
type UserError struct {
	Category ErrorCategory
	Message  string
	Err      error
}

func (e *UserError) Error() string { return e.Message }

func (e *UserError) Unwrap() error { return e.Err }

// Classify maps an error from any collaborator to a UserError.
func Classify(err error) *UserError {
	if err == nil {
		return nil
	}
	var ue *UserError
	if errors.As(err, &ue) {
		return ue
	}

	switch {
	case errors.Is(err, ErrEmptyInstruction), errors.Is(err, ErrSlotsIncomplete), errors.Is(err, ErrSelectionIncomplete):
		return &UserError{Category: CategoryInput, Message: err.Error(), Err: err}
	}

	var upload *UploadError
	if errors.As(err, &upload) {
		return &UserError{Category: CategoryNetwork, Message: "Some files could not be uploaded. Please capture them again.", Err: err}
	}

	switch gemini.CodeOf(err) {
	case gemini.CodeConfiguration:
		return &UserError{Category: CategoryMisconfigured, Message: "The service is not configured correctly. Please contact the salon.", Err: err}
	case gemini.CodeMalformed, gemini.CodeMissingImageData:
		return &UserError{Category: CategoryInvalidResult, Message: "The AI returned an unexpected result. Please try again.", Err: err}
	case gemini.CodeInvalidInput:
		return &UserError{Category: CategoryInput, Message: "Some required information is missing. Please check your input.", Err: err}
	case gemini.CodeImageFetch:
		return &UserError{Category: CategoryNetwork, Message: "Your photo could not be loaded. Please try again.", Err: err}
	default:
		return &UserError{Category: CategoryNetwork, Message: "Could not reach the service. Please check your connection and try again.", Err: err}
	}
}

// ErrGender is returned for a gender category other than female or male.
var ErrGender = errors.New("gender must be female or male")

// UnknownSlotError reports a slot name outside the required set.
type UnknownSlotError struct {
	Slot string
}

func (e *UnknownSlotError) Error() string { return "unknown slot " + e.Slot }

// UnknownProposalError reports a proposal key the diagnosis does not contain.
type UnknownProposalError struct {
	Category Category
	Key      string
}

func (e *UnknownProposalError) Error() string {
	return fmt.Sprintf("unknown %s proposal %q", e.Category, e.Key)
}
