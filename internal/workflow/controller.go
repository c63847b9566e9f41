package workflow

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/hair-diagnosis-helper/internal/diagnosis"
	"github.com/fpang/hair-diagnosis-helper/internal/synthesis"
)

// GeneratedItemName is the gallery item name for saved generated images.
const GeneratedItemName = "generated-image"

// File is a captured photo or video waiting to be uploaded.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Slot is a required capture. URL is set once the file has been uploaded.
type Slot struct {
	File *File
	URL  string
}

// Uploader stores a file in the subject's gallery and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, subjectID, itemName string, f File) (url string, err error)
}

// Diagnoser runs a diagnosis.
type Diagnoser interface {
	Diagnose(ctx context.Context, req diagnosis.Request) (*diagnosis.Result, error)
}

// Synthesizer renders and refines hairstyle images.
type Synthesizer interface {
	Synthesize(ctx context.Context, baseImage string, style, color diagnosis.Suggestion, subjectID string) (*synthesis.GeneratedImage, error)
	Refine(ctx context.Context, baseImage, instruction, subjectID string) (*synthesis.GeneratedImage, error)
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Uploader    Uploader
	Diagnoser   Diagnoser
	Synthesizer Synthesizer
	// OnProgress, if set, is called after each upload resolves.
	OnProgress func(done, total int)
}

// Session is a copy of the workflow state.
type Session struct {
	Phase       Phase
	Profile     diagnosis.SubjectProfile
	Gender      diagnosis.Gender
	Slots       map[string]Slot
	Diagnosis   *diagnosis.Result
	Selection   Selection
	Image       *synthesis.GeneratedImage
	Instruction string
	ImageSaved  bool
	LastError   *UserError
}

// Controller owns one session. Every state change goes through its
// transition methods, which serialize on a mutex; while an upload or AI call
// is in flight, other triggering transitions return ErrBusy.
type Controller struct {
	deps Deps

	mu   sync.Mutex
	busy bool
	s    Session
}

// New creates a Controller in the landing phase.
func New(profile diagnosis.SubjectProfile, deps Deps) *Controller {
	slots := make(map[string]Slot, len(diagnosis.RequiredSlots))
	for _, name := range diagnosis.RequiredSlots {
		slots[name] = Slot{}
	}
	return &Controller{
		deps: deps,
		s:    Session{Phase: PhaseLanding, Profile: profile, Slots: slots},
	}
}

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.s
	out.Slots = make(map[string]Slot, len(c.s.Slots))
	for k, v := range c.s.Slots {
		out.Slots[k] = v
	}
	return out
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s.Phase
}

// Busy reports whether an operation is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// transition runs fn under the lock if the session is idle and in phase from.
func (c *Controller) transition(action string, from Phase, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	if c.s.Phase != from {
		return &TransitionError{Action: action, Phase: c.s.Phase}
	}
	return fn()
}

// begin marks the session busy and moves it to phase, returning a release
// function that must be called on every exit path.
func (c *Controller) begin(action string, from, to Phase, check func() error) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return nil, ErrBusy
	}
	if c.s.Phase != from {
		return nil, &TransitionError{Action: action, Phase: c.s.Phase}
	}
	if check != nil {
		if err := check(); err != nil {
			return nil, err
		}
	}
	c.busy = true
	c.s.Phase = to
	c.s.LastError = nil
	return func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}, nil
}

// fail records err as the session's last error and returns it.
func (c *Controller) fail(phase Phase, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Phase = phase
	c.s.LastError = Classify(err)
	return err
}

// Start leaves the landing page.
func (c *Controller) Start() error {
	return c.transition("start", PhaseLanding, func() error {
		c.s.Phase = PhaseGenderSelect
		return nil
	})
}

// ChooseGender records the gender category and moves to photo capture.
func (c *Controller) ChooseGender(g diagnosis.Gender) error {
	return c.transition("choose gender", PhaseGenderSelect, func() error {
		if !g.Valid() {
			return ErrGender
		}
		c.s.Gender = g
		c.s.Phase = PhaseUpload
		return nil
	})
}

// AttachSlot sets the captured file for a slot. Re-capturing a slot drops
// its previous upload.
func (c *Controller) AttachSlot(slot string, f File) error {
	return c.transition("attach "+slot, PhaseUpload, func() error {
		if _, ok := c.s.Slots[slot]; !ok {
			return &UnknownSlotError{Slot: slot}
		}
		file := f
		c.s.Slots[slot] = Slot{File: &file}
		return nil
	})
}

// DetachSlot clears a slot.
func (c *Controller) DetachSlot(slot string) error {
	return c.transition("detach "+slot, PhaseUpload, func() error {
		if _, ok := c.s.Slots[slot]; !ok {
			return &UnknownSlotError{Slot: slot}
		}
		c.s.Slots[slot] = Slot{}
		return nil
	})
}

// CanRequestDiagnosis reports whether every required slot is attached.
func (c *Controller) CanRequestDiagnosis() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s.Phase == PhaseUpload && !c.busy && c.slotsComplete()
}

func (c *Controller) slotsComplete() bool {
	for _, name := range diagnosis.RequiredSlots {
		slot := c.s.Slots[name]
		if slot.File == nil && slot.URL == "" {
			return false
		}
	}
	return true
}

// RequestDiagnosis uploads every slot that has no URL yet, concurrently, and
// once all uploads have resolved requests exactly one diagnosis with every
// URL. On failure the session returns to Upload: slots whose upload failed
// are cleared for re-capture and uploaded slots keep their URLs.
func (c *Controller) RequestDiagnosis(ctx context.Context) error {
	release, err := c.begin("request diagnosis", PhaseUpload, PhaseDiagnosing, func() error {
		if !c.slotsComplete() {
			return ErrSlotsIncomplete
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	pending := make(map[string]File)
	for name, slot := range c.s.Slots {
		if slot.URL == "" && slot.File != nil {
			pending[name] = *slot.File
		}
	}
	subject := c.s.Profile.Identifier
	c.mu.Unlock()

	urls, failed := c.uploadAll(ctx, subject, pending)

	c.mu.Lock()
	for name, url := range urls {
		c.s.Slots[name] = Slot{File: c.s.Slots[name].File, URL: url}
	}
	for name := range failed {
		c.s.Slots[name] = Slot{}
	}
	c.mu.Unlock()

	if len(failed) > 0 {
		log.Warn().Int("failed", len(failed)).Msg("Uploads failed; returning to capture")
		return c.fail(PhaseUpload, &UploadError{Failed: failed})
	}

	c.mu.Lock()
	req := diagnosis.Request{
		ImageReferences: make(map[string]string, len(c.s.Slots)),
		SubjectProfile:  c.s.Profile,
		GenderCategory:  c.s.Gender,
	}
	for name, slot := range c.s.Slots {
		req.ImageReferences[name] = slot.URL
	}
	c.mu.Unlock()

	result, err := c.deps.Diagnoser.Diagnose(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("Diagnosis failed; returning to capture")
		return c.fail(PhaseUpload, err)
	}

	c.mu.Lock()
	c.s.Diagnosis = result
	c.s.Phase = PhaseDiagnosisShown
	c.mu.Unlock()
	return nil
}

// uploadAll uploads files concurrently and waits for every upload to resolve.
func (c *Controller) uploadAll(ctx context.Context, subject string, files map[string]File) (map[string]string, map[string]error) {
	var (
		mu     sync.Mutex
		urls   = make(map[string]string, len(files))
		failed = make(map[string]error)
		done   int
		g      errgroup.Group
	)
	total := len(files)
	for name, f := range files {
		g.Go(func() error {
			url, err := c.deps.Uploader.Upload(ctx, subject, name, f)
			mu.Lock()
			if err != nil {
				failed[name] = err
			} else {
				urls[name] = url
			}
			done++
			n := done
			mu.Unlock()
			if c.deps.OnProgress != nil {
				c.deps.OnProgress(n, total)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		log.Debug().Err(err).Int("total", total).Msg("Upload barrier released with failures")
	}
	return urls, failed
}

// ProceedToProposals moves from the diagnosis to proposal selection with
// nothing selected.
func (c *Controller) ProceedToProposals() error {
	return c.transition("view proposals", PhaseDiagnosisShown, func() error {
		c.s.Selection = Selection{}
		c.s.Phase = PhaseProposalSelect
		return nil
	})
}

// BackToDiagnosis returns from proposal selection to the diagnosis.
func (c *Controller) BackToDiagnosis() error {
	return c.transition("go back to diagnosis", PhaseProposalSelect, func() error {
		c.s.Phase = PhaseDiagnosisShown
		return nil
	})
}

// SelectProposal selects key within category, replacing any earlier choice
// in the same category.
func (c *Controller) SelectProposal(category Category, key string) error {
	return c.transition("select proposal", PhaseProposalSelect, func() error {
		switch category {
		case CategoryHairstyle:
			if _, ok := c.s.Diagnosis.Hairstyle(key); !ok {
				return &UnknownProposalError{Category: category, Key: key}
			}
			c.s.Selection.HairstyleKey = key
		case CategoryHaircolor:
			if _, ok := c.s.Diagnosis.Haircolor(key); !ok {
				return &UnknownProposalError{Category: category, Key: key}
			}
			c.s.Selection.HaircolorKey = key
		default:
			return &UnknownProposalError{Category: category, Key: key}
		}
		return nil
	})
}

// CanGenerate reports whether a hairstyle and a haircolor are both selected.
func (c *Controller) CanGenerate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s.Phase == PhaseProposalSelect && !c.busy && c.s.Selection.Complete()
}

// RequestSynthesis renders the selected proposals onto the front photo.
// Failure returns to proposal selection.
func (c *Controller) RequestSynthesis(ctx context.Context) error {
	release, err := c.begin("generate image", PhaseProposalSelect, PhaseSynthesizing, func() error {
		if !c.s.Selection.Complete() {
			return ErrSelectionIncomplete
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	style, _ := c.s.Diagnosis.Hairstyle(c.s.Selection.HairstyleKey)
	color, _ := c.s.Diagnosis.Haircolor(c.s.Selection.HaircolorKey)
	base := c.s.Slots[diagnosis.SlotFrontPhoto].URL
	subject := c.s.Profile.Identifier
	c.mu.Unlock()

	img, err := c.deps.Synthesizer.Synthesize(ctx, base, style, color, subject)
	if err != nil {
		return c.fail(PhaseProposalSelect, err)
	}

	c.mu.Lock()
	c.s.Image = img
	c.s.Instruction = ""
	c.s.ImageSaved = false
	c.s.Phase = PhaseResultShown
	c.mu.Unlock()
	return nil
}

// SetInstruction updates the refinement text field.
func (c *Controller) SetInstruction(text string) error {
	return c.transition("edit instruction", PhaseResultShown, func() error {
		c.s.Instruction = text
		return nil
	})
}

// RequestRefinement refines the current image with text. On success the
// image is replaced and the instruction cleared; on failure both the image
// and the typed instruction are kept.
func (c *Controller) RequestRefinement(ctx context.Context, text string) error {
	release, err := c.begin("refine image", PhaseResultShown, PhaseRefining, func() error {
		if strings.TrimSpace(text) == "" {
			return ErrEmptyInstruction
		}
		c.s.Instruction = text
		return nil
	})
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	base := c.s.Image.DataURL()
	subject := c.s.Profile.Identifier
	c.mu.Unlock()

	img, err := c.deps.Synthesizer.Refine(ctx, base, text, subject)
	if err != nil {
		return c.fail(PhaseResultShown, err)
	}

	c.mu.Lock()
	c.s.Image = img
	c.s.Instruction = ""
	c.s.ImageSaved = false
	c.s.Phase = PhaseResultShown
	c.mu.Unlock()
	return nil
}

// BackToProposals returns from the result to proposal selection and clears
// the refinement text.
func (c *Controller) BackToProposals() error {
	return c.transition("go back to proposals", PhaseResultShown, func() error {
		c.s.Instruction = ""
		c.s.Phase = PhaseProposalSelect
		return nil
	})
}

// SaveGeneratedImage stores the current image in the subject's gallery. Each
// image is saved at most once.
func (c *Controller) SaveGeneratedImage(ctx context.Context) (string, error) {
	release, err := c.begin("save image", PhaseResultShown, PhaseResultShown, func() error {
		if c.s.ImageSaved {
			return ErrAlreadySaved
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	defer release()

	c.mu.Lock()
	img := *c.s.Image
	subject := c.s.Profile.Identifier
	c.mu.Unlock()

	data, err := img.Decode()
	if err != nil {
		return "", c.fail(PhaseResultShown, err)
	}
	url, err := c.deps.Uploader.Upload(ctx, subject, GeneratedItemName, File{ContentType: img.MIMEType, Data: data})
	if err != nil {
		return "", c.fail(PhaseResultShown, err)
	}

	c.mu.Lock()
	// Refinements were blocked while busy, so the current image is the one saved.
	c.s.ImageSaved = true
	c.mu.Unlock()
	return url, nil
}
