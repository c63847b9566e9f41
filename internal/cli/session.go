package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/hair-diagnosis-helper/internal/diagnosis"
	"github.com/fpang/hair-diagnosis-helper/internal/workflow"
)

// Session drives a workflow.Controller from terminal input.
type Session struct {
	ctl    *workflow.Controller
	prompt *Prompter
	out    io.Writer
	pick   FilePicker
	outDir string
	saved  int
}

// NewSession creates a terminal session. pick may be nil, in which case
// every capture is entered as a path. Generated images are written to outDir.
func NewSession(ctl *workflow.Controller, prompt *Prompter, out io.Writer, pick FilePicker, outDir string) *Session {
	return &Session{ctl: ctl, prompt: prompt, out: out, pick: pick, outDir: outDir}
}

// Run walks the workflow until the user finishes or input ends.
func (s *Session) Run(ctx context.Context) error {
	if err := s.ctl.Start(); err != nil {
		return err
	}
	if err := s.chooseGender(); err != nil {
		return err
	}
	if err := s.capture(diagnosis.RequiredSlots); err != nil {
		return err
	}
	if err := s.diagnose(ctx); err != nil {
		return err
	}
	if err := s.ctl.ProceedToProposals(); err != nil {
		return err
	}

	for {
		if err := s.generate(ctx); err != nil {
			return err
		}
		again, err := s.resultLoop(ctx)
		if err != nil || !again {
			return err
		}
	}
}

func (s *Session) chooseGender() error {
	genders := []diagnosis.Gender{diagnosis.GenderFemale, diagnosis.GenderMale}
	i, err := s.prompt.Choose("Which style catalogue should be used?", []string{"female", "male"})
	if err != nil {
		return err
	}
	return s.ctl.ChooseGender(genders[i])
}

// capture asks for a file for each slot until one is attached.
func (s *Session) capture(slots []string) error {
	for _, slot := range slots {
		for {
			path, err := s.prompt.Ask("File for "+slot+emptyHint(s.pick), "")
			if err != nil {
				return err
			}
			if path == "" && s.pick != nil {
				if path, err = s.pick(slot); err != nil {
					fmt.Fprintf(s.out, "File dialog failed: %v\n", err)
					continue
				}
			}
			if path == "" {
				continue
			}
			f, err := LoadFile(path)
			if err != nil {
				fmt.Fprintf(s.out, "Cannot use %s: %v\n", path, err)
				continue
			}
			if err := s.ctl.AttachSlot(slot, f); err != nil {
				return err
			}
			break
		}
	}
	return nil
}

func emptyHint(pick FilePicker) string {
	if pick != nil {
		return " (empty to browse)"
	}
	return ""
}

func (s *Session) diagnose(ctx context.Context) error {
	for {
		fmt.Fprintln(s.out, "Uploading photos and videos...")
		start := time.Now()
		err := s.ctl.RequestDiagnosis(ctx)
		if err == nil {
			snap := s.ctl.Snapshot()
			fmt.Fprintf(s.out, "Diagnosis ready in %s\n", FormatDurationShort(time.Since(start)))
			PrintDiagnosis(s.out, snap.Profile.EffectiveDisplayName(), snap.Diagnosis)
			return nil
		}
		if err := s.report(err); err != nil {
			return err
		}

		var missing []string
		for _, slot := range diagnosis.RequiredSlots {
			if s.ctl.Snapshot().Slots[slot].File == nil {
				missing = append(missing, slot)
			}
		}
		if len(missing) > 0 {
			fmt.Fprintf(s.out, "Please capture again: %v\n", missing)
			if err := s.capture(missing); err != nil {
				return err
			}
			continue
		}
		retry, err := s.prompt.Confirm("Try the diagnosis again?")
		if err != nil {
			return err
		}
		if !retry {
			return errors.New("diagnosis abandoned")
		}
	}
}

// generate selects proposals and renders them, retrying on failure.
func (s *Session) generate(ctx context.Context) error {
	for {
		d := s.ctl.Snapshot().Diagnosis
		hs := d.Proposal.Hairstyles
		i, err := s.prompt.Choose("Hairstyle", []string{describe(hs.Style1), describe(hs.Style2)})
		if err != nil {
			return err
		}
		if err := s.ctl.SelectProposal(workflow.CategoryHairstyle, []string{"style1", "style2"}[i]); err != nil {
			return err
		}
		hc := d.Proposal.Haircolors
		i, err = s.prompt.Choose("Hair color", []string{describe(hc.Color1), describe(hc.Color2)})
		if err != nil {
			return err
		}
		if err := s.ctl.SelectProposal(workflow.CategoryHaircolor, []string{"color1", "color2"}[i]); err != nil {
			return err
		}

		fmt.Fprintln(s.out, "Generating your new look...")
		start := time.Now()
		if err := s.ctl.RequestSynthesis(ctx); err != nil {
			if err := s.report(err); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(s.out, "Image ready in %s\n", FormatDurationShort(time.Since(start)))
		return s.writeImage()
	}
}

func describe(sg diagnosis.Suggestion) string {
	if sg.Description == "" {
		return sg.Name
	}
	return sg.Name + ": " + sg.Description
}

// resultLoop offers refinement and saving. It returns true when the user
// wants to try other proposals.
func (s *Session) resultLoop(ctx context.Context) (bool, error) {
	options := []string{"Refine with an instruction", "Save to gallery", "Try other proposals", "Finish"}
	for {
		choice, err := s.prompt.Choose("What next?", options)
		if err != nil {
			return false, err
		}
		switch choice {
		case 0:
			text, err := s.prompt.Ask("Instruction", s.ctl.Snapshot().Instruction)
			if err != nil {
				return false, err
			}
			if err := s.ctl.RequestRefinement(ctx, text); err != nil {
				if err := s.report(err); err != nil {
					return false, err
				}
				continue
			}
			if err := s.writeImage(); err != nil {
				return false, err
			}
		case 1:
			url, err := s.ctl.SaveGeneratedImage(ctx)
			if errors.Is(err, workflow.ErrAlreadySaved) {
				fmt.Fprintln(s.out, "This image is already in your gallery.")
				continue
			}
			if err != nil {
				if err := s.report(err); err != nil {
					return false, err
				}
				continue
			}
			fmt.Fprintf(s.out, "Saved to gallery: %s\n", url)
		case 2:
			return true, s.ctl.BackToProposals()
		default:
			return false, nil
		}
	}
}

// report prints the user-facing message for a failed step. Errors that are
// not workflow failures, such as ErrBusy or a TransitionError, are returned.
func (s *Session) report(err error) error {
	var ue *workflow.UserError
	if !errors.As(err, &ue) {
		var te *workflow.TransitionError
		if errors.As(err, &te) || errors.Is(err, workflow.ErrBusy) {
			return err
		}
		ue = workflow.Classify(err)
	}
	log.Debug().Err(err).Str("category", string(ue.Category)).Msg("Step failed")
	fmt.Fprintf(s.out, "%s\n", ue.Message)
	return nil
}

func (s *Session) writeImage() error {
	img := s.ctl.Snapshot().Image
	data, err := img.Decode()
	if err != nil {
		return fmt.Errorf("decode generated image: %w", err)
	}
	s.saved++
	path := filepath.Join(s.outDir, fmt.Sprintf("hairstyle-%d%s", s.saved, extensionFor(img.MIMEType)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write generated image: %w", err)
	}
	fmt.Fprintf(s.out, "Image written to %s\n", path)
	return nil
}
