package pipeline

import (
	"fmt"
	"strings"
)

// Stage names as they appear in logs, metrics and progress events.
const (
	StageGenerate      = "generate"
	StageLoadDraft     = "load_draft"
	StagePersistDraft  = "persist_draft"
	StageSelectAsset   = "select_asset"
	StageRender        = "render"
	StageFetch         = "fetch"
	StageArchive       = "archive"
	StagePublish       = "publish"
	StagePersist       = "persist"
	StageMarkPublished = "mark_published"
)

// Stage categories
const (
	CategoryContent = "content"
	CategoryMedia   = "media"
	CategoryPublish = "publish"
	CategoryStore   = "store"
)

// Values passed between stages. A stage may only run once every value it
// needs has been provided by an earlier stage in the same plan.
const (
	valueContent    = "content"
	valueDraft      = "draft"
	valueImage      = "image_url"
	valueMediaURL   = "media_url"
	valueMedia      = "media"
	valueArchiveURL = "archive_url"
	valuePostID     = "external_post_id"
	valuePost       = "post"
)

// StageDefinition defines metadata for a pipeline stage
type StageDefinition struct {
	Name     string
	Category string
	Needs    []string
	Provides []string
}

// StageRegistry holds all stage definitions
var StageRegistry = map[string]StageDefinition{
	StageGenerate: {
		Name:     StageGenerate,
		Category: CategoryContent,
		Provides: []string{valueContent},
	},
	StageLoadDraft: {
		Name:     StageLoadDraft,
		Category: CategoryStore,
		Provides: []string{valueContent, valueDraft},
	},
	StagePersistDraft: {
		Name:     StagePersistDraft,
		Category: CategoryStore,
		Needs:    []string{valueContent},
		Provides: []string{valueDraft},
	},
	StageSelectAsset: {
		Name:     StageSelectAsset,
		Category: CategoryMedia,
		Provides: []string{valueImage},
	},
	StageRender: {
		Name:     StageRender,
		Category: CategoryMedia,
		Needs:    []string{valueContent, valueImage},
		Provides: []string{valueMediaURL},
	},
	StageFetch: {
		Name:     StageFetch,
		Category: CategoryMedia,
		Needs:    []string{valueMediaURL},
		Provides: []string{valueMedia},
	},
	StageArchive: {
		Name:     StageArchive,
		Category: CategoryMedia,
		Needs:    []string{valueMedia},
		Provides: []string{valueArchiveURL},
	},
	StagePublish: {
		Name:     StagePublish,
		Category: CategoryPublish,
		Needs:    []string{valueContent, valueMedia},
		Provides: []string{valuePostID},
	},
	StagePersist: {
		Name:     StagePersist,
		Category: CategoryStore,
		Needs:    []string{valueContent, valueImage, valueMediaURL, valuePostID},
		Provides: []string{valuePost},
	},
	StageMarkPublished: {
		Name:     StageMarkPublished,
		Category: CategoryStore,
		Needs:    []string{valueDraft, valueImage, valueMediaURL, valuePostID},
		Provides: []string{valuePost},
	},
}

// DependencyError reports a stage placed before the stages it depends on.
type DependencyError struct {
	Stage               string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("stage %s: missing dependencies: %s", e.Stage, strings.Join(e.MissingDependencies, ", "))
}

// Plan returns the ordered stages of a run. The archive stage is only
// included when an archiver is configured.
func Plan(mode PersistenceMode, archive bool) []string {
	var plan []string
	plan = append(plan, StageGenerate)
	if mode == PersistDraftThenMark {
		plan = append(plan, StagePersistDraft)
	}
	plan = append(plan, mediaStages(archive)...)
	if mode == PersistDraftThenMark {
		return append(plan, StageMarkPublished)
	}
	return append(plan, StagePersist)
}

// ResumePlan returns the stages that take an existing draft to published.
func ResumePlan(archive bool) []string {
	plan := []string{StageLoadDraft}
	plan = append(plan, mediaStages(archive)...)
	return append(plan, StageMarkPublished)
}

func mediaStages(archive bool) []string {
	stages := []string{StageSelectAsset, StageRender, StageFetch}
	if archive {
		stages = append(stages, StageArchive)
	}
	return append(stages, StagePublish)
}

// ValidatePlan checks that every stage is known and that each of its inputs
// is produced by an earlier stage.
func ValidatePlan(plan []string) error {
	provided := make(map[string]bool)
	for _, name := range plan {
		def, ok := StageRegistry[name]
		if !ok {
			return fmt.Errorf("unknown stage: %s", name)
		}

		var missing []string
		for _, need := range def.Needs {
			if !provided[need] {
				missing = append(missing, need)
			}
		}
		if len(missing) > 0 {
			return &DependencyError{Stage: name, MissingDependencies: missing}
		}

		for _, p := range def.Provides {
			provided[p] = true
		}
	}
	return nil
}
