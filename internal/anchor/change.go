package anchor

import (
	"maps"
	"slices"
	"strings"

	"github.com/aristath/postsched/internal/calendar"
	"github.com/aristath/postsched/internal/config"
	"github.com/aristath/postsched/internal/pipeline"
	"github.com/aristath/postsched/internal/scheduler"
)

// Change names one configuration field that differs between two configurations.
// Episode is set for per-episode fields.
type Change struct {
	Field   string
	Episode int
}

// Configuration fields that reshape the whole graph.
var structuralFields = []string{
	"schedule_type", "episodes", "start_of_photography", "shoot_days_per_episode",
	"shoot_day_overrides", "shoot_blocks", "block_episodes",
	"toggles.sequential_lock", "toggles.producers_cut_overlap", "toggles.producers_cut_pre_wrap",
}

// durationStages maps duration fields to the stages they size.
var durationStages = map[string][]string{
	"durations.editors_cut":     {pipeline.StageEditorsCut},
	"durations.directors_cut":   {pipeline.StageDirectorsCut, pipeline.StageDirectorsCutV2},
	"durations.producers_cut":   {pipeline.StageProducersCut},
	"durations.studio_notes":    {"Notes #"},
	"durations.network_cut":     {"Studio/Network Cut #"},
	"durations.picture_lock":    {pipeline.StagePictureLock},
	"durations.finishing_weeks": pipeline.FinishingStages,
	"durations.online":          {pipeline.StageOnlineConform},
	"durations.color_grade":     {pipeline.StageColorGrade},
	"durations.pre_mix":         {pipeline.StagePreMix},
	"durations.final_mix":       {pipeline.StageFinalMix},
	"durations.mix_review":      {pipeline.StageMixReview},
	"durations.final_mix_fixes": {pipeline.StageFinalMixFix},
}

// Changes lists the fields that differ from old to cur.
func Changes(old, cur *config.Config) []Change {
	var out []Change
	add := func(field string, changed bool) {
		if changed {
			out = append(out, Change{Field: field})
		}
	}

	add("schedule_type", old.ScheduleType != cur.ScheduleType)
	add("episodes", old.Episodes != cur.Episodes)
	add("start_of_photography", old.StartOfPhotography != cur.StartOfPhotography)
	add("shoot_days_per_episode", old.ShootDaysPerEpisode != cur.ShootDaysPerEpisode)
	add("shoot_day_overrides", !maps.Equal(old.ShootDayOverrides, cur.ShootDayOverrides))
	add("shoot_blocks", old.ShootBlocks != cur.ShootBlocks)
	add("block_episodes", !slices.Equal(old.BlockEpisodes, cur.BlockEpisodes))
	add("toggles.sequential_lock", old.Toggles.SequentialLock != cur.Toggles.SequentialLock)
	add("toggles.producers_cut_overlap", old.Toggles.ProducersCutOverlap != cur.Toggles.ProducersCutOverlap)
	add("toggles.producers_cut_pre_wrap", old.Toggles.ProducersCutPreWrap != cur.Toggles.ProducersCutPreWrap)
	add("toggles.unlink_on_manual_move", old.Toggles.UnlinkOnManualMove != cur.Toggles.UnlinkOnManualMove)

	od, cd := old.Durations, cur.Durations
	add("durations.editors_cut", od.EditorsCut != cd.EditorsCut)
	add("durations.directors_cut", od.DirectorsCut != cd.DirectorsCut)
	add("durations.producers_cut", od.ProducersCut != cd.ProducersCut)
	add("durations.studio_notes", od.StudioNotes != cd.StudioNotes)
	add("durations.network_cut", od.NetworkCut != cd.NetworkCut)
	add("durations.picture_lock", od.PictureLock != cd.PictureLock)
	add("durations.finishing_weeks", od.FinishingWeeks != cd.FinishingWeeks)
	add("durations.online", od.Online != cd.Online)
	add("durations.color_grade", od.ColorGrade != cd.ColorGrade)
	add("durations.pre_mix", od.PreMix != cd.PreMix)
	add("durations.final_mix", od.FinalMix != cd.FinalMix)
	add("durations.mix_review", od.MixReview != cd.MixReview)
	add("durations.final_mix_fixes", od.FinalMixFixes != cd.FinalMixFixes)

	// Studio cut counts are compared per episode.
	for ep := 1; ep <= max(old.Episodes, cur.Episodes); ep++ {
		if old.StudioCutCount(ep) != cur.StudioCutCount(ep) {
			out = append(out, Change{Field: "studio_cuts", Episode: ep})
		}
	}

	add("editors", !slices.EqualFunc(old.Editors, cur.Editors, samePerson))
	add("directors", !slices.EqualFunc(old.Directors, cur.Directors, samePerson))

	add("holiday_regions", !sameRegions(old.HolidayRegions, cur.HolidayRegions))
	add("hiatuses", !slices.Equal(old.Hiatuses, cur.Hiatuses) || (old.Hiatuses == nil) != (cur.Hiatuses == nil))
	add("work_days", !slices.Equal(old.WorkDays, cur.WorkDays))
	add("days_to_air", old.DaysToAir != cur.DaysToAir || old.AirUnit != cur.AirUnit)

	return out
}

func samePerson(a, b config.Person) bool {
	return a.Name == b.Name && slices.Equal(a.Episodes, b.Episodes)
}

func sameRegions(a, b map[calendar.Department][]calendar.Region) bool {
	return maps.EqualFunc(a, b, func(x, y []calendar.Region) bool { return slices.Equal(x, y) })
}

// Affects reports whether the change lands directly on task: a duration
// field on the stages it sizes, a studio cut count on that episode's studio
// rounds, personnel on editing stages and structural fields on everything.
func (c Change) Affects(task *scheduler.Task) bool {
	if slices.Contains(structuralFields, c.Field) {
		return true
	}

	name := task.Stage.Name
	switch c.Field {
	case "studio_cuts":
		return task.Episode == c.Episode && pipeline.IsStudioCutStage(name)
	case "editors", "directors":
		return task.Stage.Department == calendar.DeptEdit
	}

	for _, stage := range durationStages[c.Field] {
		if strings.HasSuffix(stage, "#") {
			if strings.HasPrefix(name, stage) {
				return true
			}
		} else if name == stage {
			return true
		}
	}
	return false
}
