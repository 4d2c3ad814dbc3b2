// Package pipeline turns configuration into the episode task graph: shooting
// blocks, the per-episode stage template and the cross-episode links.
package pipeline

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/aristath/postsched/internal/calendar"
	"github.com/aristath/postsched/internal/config"
	"github.com/aristath/postsched/internal/scheduler"
)

// Stage names.
const (
	StageEditorsCut         = "Editor's Cut"
	StageDirectorsCut       = "Director's Cut"
	StageProducerNotes      = "Producer Notes"
	StageDirectorsCutV2     = "Director's Cut v2"
	StageProducersCut       = "Producer's Cut"
	StagePictureLock        = "Picture Lock"
	StageTurnoverDelay      = "Turnover Delay"
	StageTurnovers          = "Turnovers"
	StageFinishingDelay     = "Finishing Period Delay"
	StageVFXDue             = "VFX Due"
	StageOnlineDelay        = "Online Conform Delay"
	StageOnlineConform      = "Online Conform"
	StageColorGrade         = "Color Grade"
	StageColorReview        = "Color Review"
	StageFinalColorGrade    = "Final Color Grade"
	StageColorGradeAnchor   = "Color Grade Anchor"
	StagePreMix             = "Pre-Mix"
	StageFinalMix           = "Final Mix"
	StageMixReview          = "Mix Review"
	StageFinalMixFix        = "Final Mix Fix"
	StageME                 = "M&E"
	StageMEDelivery         = "M&E Delivery"
	StageQCDelivery         = "Deliver to QC v1"
	StageFinalDeliveryDelay = "Final Delivery Delay"
	StageFinalDelivery      = "Final Delivery"

	StageShootWrap = "Shoot Wrap"
)

// ShootWrapID is the milestone anchored at the last day of principal photography.
const ShootWrapID = "shoot-wrap"

// Shared crew resources.
const (
	ResourceColorist = "Colorist"
	ResourceMixer    = "Mixer"
	ResourceMEMixer  = "M&E Mixer"
)

const (
	turnoverDelayDays      = 4
	onlineDelayDays        = 2
	colorAnchorDays        = 2
	finalDeliveryDelayDays = 14
)

// NotesStage names the j-th round of studio notes (1-based).
func NotesStage(j int) string { return fmt.Sprintf("Notes #%d", j) }

// StudioCutStage names the j-th studio/network cut (1-based).
func StudioCutStage(j int) string { return fmt.Sprintf("Studio/Network Cut #%d", j) }

// IsStudioCutStage reports whether name is a studio cut or its notes round.
func IsStudioCutStage(name string) bool {
	return strings.HasPrefix(name, "Notes #") || strings.HasPrefix(name, "Studio/Network Cut #")
}

// FinishingStages are the stages a finishing-period change lands on directly.
var FinishingStages = []string{
	StageVFXDue, StageOnlineConform, StageColorGrade, StageFinalMix, StageMEDelivery,
}

// TaskID returns the stable ID of an episode stage.
func TaskID(episode int, stage string) string {
	return fmt.Sprintf("ep%d-%s", episode, slug(stage))
}

// slug lowercases a stage name and joins its words with dashes.
func slug(name string) string {
	name = strings.ReplaceAll(name, "'", "")
	name = strings.ReplaceAll(name, "&", " and ")

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// stageDef is one template entry; preds name stages of the same episode.
type stageDef struct {
	stage scheduler.Stage
	preds []string
}

// episodeTemplate returns the stage pipeline of one episode in insertion order.
func episodeTemplate(cfg *config.Config, episode int) []stageDef {
	d := cfg.Durations
	var defs []stageDef
	add := func(name string, duration int, dept calendar.Department, priority float64, preds ...string) string {
		defs = append(defs, stageDef{
			stage: scheduler.Stage{
				Name:       name,
				Duration:   duration,
				Department: dept,
				Visible:    dept != calendar.DeptDelay,
				Priority:   priority,
			},
			preds: preds,
		})
		return name
	}

	directorsCut := d.DirectorsCut
	if episode == 1 {
		directorsCut++
	}

	ec := add(StageEditorsCut, d.EditorsCut, calendar.DeptEdit, 2)
	dc := add(StageDirectorsCut, directorsCut, calendar.DeptEdit, 1, ec)
	pn := add(StageProducerNotes, 1, calendar.DeptEdit, 1.1, dc)
	dc2 := add(StageDirectorsCutV2, 1, calendar.DeptEdit, 1.2, pn)
	last := add(StageProducersCut, d.ProducersCut, calendar.DeptEdit, 3, dc2)

	for j := 1; j <= cfg.StudioCutCount(episode); j++ {
		notes := add(NotesStage(j), d.StudioNotes, calendar.DeptEdit, 4+float64(j), last)
		last = add(StudioCutStage(j), d.NetworkCut, calendar.DeptEdit, 4.1+float64(j), notes)
	}

	pl := add(StagePictureLock, d.PictureLock, calendar.DeptEdit, 99, last)
	td := add(StageTurnoverDelay, turnoverDelayDays, calendar.DeptDelay, 50, pl)
	add(StageTurnovers, 1, calendar.DeptVFX, 50, td)

	fd := add(StageFinishingDelay, d.FinishingWeeks*5-1, calendar.DeptDelay, 50, pl)
	vfx := add(StageVFXDue, 1, calendar.DeptVFX, 50, fd)
	od := add(StageOnlineDelay, onlineDelayDays, calendar.DeptDelay, 50, vfx)
	online := add(StageOnlineConform, d.Online, calendar.DeptPicture, 50, od)
	cg := add(StageColorGrade, d.ColorGrade, calendar.DeptPicture, 50, online)
	cr := add(StageColorReview, 1, calendar.DeptPicture, 50, cg)
	add(StageFinalColorGrade, 1, calendar.DeptPicture, 50, cr)

	ca := add(StageColorGradeAnchor, colorAnchorDays, calendar.DeptDelay, 50, online)
	pm := add(StagePreMix, d.PreMix, calendar.DeptSound, 50, ca)
	fm := add(StageFinalMix, d.FinalMix, calendar.DeptSound, 50, pm, cr)
	mr := add(StageMixReview, d.MixReview, calendar.DeptSound, 50, fm)
	fix := add(StageFinalMixFix, d.FinalMixFixes, calendar.DeptSound, 50, mr)
	me := add(StageME, 1, calendar.DeptSound, 50, fix)
	med := add(StageMEDelivery, 1, calendar.DeptSound, 50, me)
	qc := add(StageQCDelivery, 1, calendar.DeptDelivery, 50, med)
	fdd := add(StageFinalDeliveryDelay, finalDeliveryDelayDays, calendar.DeptDelay, 50, qc)
	add(StageFinalDelivery, 1, calendar.DeptDelivery, 50, fdd)

	return defs
}

// stageResources assigns crew to a stage.
func stageResources(stage scheduler.Stage, editors []string, director string) []string {
	var out []string
	switch stage.Department {
	case calendar.DeptPicture:
		out = append(out, ResourceColorist)
	case calendar.DeptSound:
		if stage.Name == StageME || stage.Name == StageMEDelivery {
			out = append(out, ResourceMEMixer)
		} else {
			out = append(out, ResourceMixer)
		}
	case calendar.DeptEdit:
		out = append(out, editors...)
	}

	switch stage.Name {
	case StageDirectorsCut, StageProducerNotes, StageDirectorsCutV2:
		if director != "" {
			out = append(out, director)
		}
	}
	return out
}
