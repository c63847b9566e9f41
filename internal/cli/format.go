package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fpang/hair-diagnosis-helper/internal/diagnosis"
	"github.com/fpang/hair-diagnosis-helper/internal/gallery"
)

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// FormatProgress renders an upload progress bar such as [###--] 3/5.
func FormatProgress(done, total int) string {
	if total <= 0 {
		return "[] 0/0"
	}
	return fmt.Sprintf("[%s%s] %d/%d", strings.Repeat("#", done), strings.Repeat("-", total-done), done, total)
}

// PrintDiagnosis writes a readable summary of a diagnosis.
func PrintDiagnosis(w io.Writer, name string, r *diagnosis.Result) {
	a, p := r.Result, r.Proposal
	if name != "" {
		fmt.Fprintf(w, "\nDiagnosis for %s\n", name)
	} else {
		fmt.Fprintln(w, "\nDiagnosis")
	}
	fmt.Fprintln(w, "Face")
	fmt.Fprintf(w, "  nose: %s / mouth: %s / eyes: %s\n", a.Face.Nose, a.Face.Mouth, a.Face.Eyes)
	fmt.Fprintf(w, "  eyebrows: %s / forehead: %s\n", a.Face.Eyebrows, a.Face.Forehead)
	fmt.Fprintln(w, "Skeleton")
	fmt.Fprintf(w, "  face shape: %s / neck: %s\n", a.Skeleton.FaceShape, a.Skeleton.NeckLength)
	fmt.Fprintf(w, "  body line: %s / shoulders: %s\n", a.Skeleton.BodyLine, a.Skeleton.ShoulderLine)
	fmt.Fprintln(w, "Personal color")
	fmt.Fprintf(w, "  %s, %s (brightness %s, saturation %s, eyes %s)\n",
		a.PersonalColor.Season, a.PersonalColor.BaseColor, a.PersonalColor.Brightness,
		a.PersonalColor.Saturation, a.PersonalColor.EyeColor)

	fmt.Fprintln(w, "Best colors")
	for _, s := range []diagnosis.Swatch{p.BestColors.C1, p.BestColors.C2, p.BestColors.C3, p.BestColors.C4} {
		if s.Name != "" {
			fmt.Fprintf(w, "  %s %s\n", s.Name, s.Hex)
		}
	}
	if p.Makeup.Lip != "" {
		fmt.Fprintf(w, "Makeup: eyeshadow %s, cheek %s, lip %s\n", p.Makeup.Eyeshadow, p.Makeup.Cheek, p.Makeup.Lip)
	}
	if p.Comment != "" {
		fmt.Fprintf(w, "\n%s\n", p.Comment)
	}
}

// PrintGallery lists gallery records, newest first.
func PrintGallery(w io.Writer, records []gallery.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "Gallery is empty.")
		return
	}
	for _, rec := range records {
		fmt.Fprintf(w, "%s  %-18s %s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04"), rec.ItemName, rec.URL)
	}
}
