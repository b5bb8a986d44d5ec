// Package flow defines the selling workflow itself: the concrete steps of
// the research, sourcing, listing, and price-adjustment stages, and the
// runners that bind the decision engines and the ledger to the pipeline.
//
// Step definitions reference coordinate elements by logical name. The
// calibration tool must provide every element a stage touches; the pipeline
// validates the full list before the first action.
package flow

import (
	"fmt"
	"time"

	"sellflow/internal/config"
	"sellflow/internal/input"
	"sellflow/internal/pipeline"
)

// Verification patterns are matched fuzzily against OCR output, so they use
// the short stable text the marketplace renders in each landmark region.
const (
	patternHome       = "ホーム"
	patternSearch     = "検索"
	patternCategory   = "カテゴリー"
	patternFilters    = "絞り込み"
	patternResults    = "検索結果"
	patternItemDetail = "商品の説明"
	patternSoldBadge  = "売り切れ"
	patternImgSearch  = "画像で検索"
	patternUploaded   = "アップロード完了"
	patternCandidate  = "販売価格"
	patternListForm   = "商品の情報を入力"
	patternPhotoSet   = "枚の画像"
	patternListed     = "出品しました"
	patternEditForm   = "商品の編集"
	patternPriceSaved = "変更しました"
)

// policies derives the shared per-step retry policy and timeout from config.
func policies(cfg *config.Settings) (pipeline.RetryPolicy, time.Duration) {
	return pipeline.RetryPolicy{
		MaxAttempts: cfg.Engine.MaxAttempts,
		Backoff:     cfg.Engine.BackoffSchedule(),
	}, cfg.Engine.StepTimeoutDuration()
}

func step(cfg *config.Settings, id string, stage pipeline.Stage, actions []input.Action, verifyElement, pattern string) pipeline.StepSpec {
	retry, timeout := policies(cfg)
	return pipeline.StepSpec{
		ID:      id,
		Stage:   stage,
		Actions: actions,
		Verify:  pipeline.VerifySpec{Element: verifyElement, Pattern: pattern, Threshold: cfg.Engine.ConfidenceThreshold},
		Retry:   retry,
		Timeout: timeout,
	}
}

// ResearchSteps is the research stage prologue: reach the filtered,
// sold-items-included result list for a keyword. Item collection steps are
// appended per result slot by the runner.
func ResearchSteps(cfg *config.Settings, keyword string) []pipeline.StepSpec {
	return []pipeline.StepSpec{
		step(cfg, "navigate_home", pipeline.StageResearch, []input.Action{
			input.Click{Element: "home_button"},
		}, "home_banner", patternHome),

		step(cfg, "open_search", pipeline.StageResearch, []input.Action{
			input.Click{Element: "search_box"},
		}, "search_banner", patternSearch),

		step(cfg, "select_category", pipeline.StageResearch, []input.Action{
			input.Click{Element: "category_menu"},
			input.Click{Element: "category_target"},
		}, "category_banner", patternCategory),

		step(cfg, "apply_filters", pipeline.StageResearch, []input.Action{
			input.Click{Element: "filter_button"},
			input.Click{Element: "filter_include_sold"},
			input.Click{Element: "filter_apply"},
		}, "filter_banner", patternFilters),

		step(cfg, "execute_search", pipeline.StageResearch, []input.Action{
			input.Click{Element: "search_box"},
			input.TypeText{Text: keyword},
			input.KeyCombo{Keys: []string{"enter"}},
		}, "results_banner", patternResults),
	}
}

// CollectItemStep opens result slot n and leaves the item detail page on
// screen. Its OnSuccess hook is attached by the runner.
func CollectItemStep(cfg *config.Settings, slot int) pipeline.StepSpec {
	return step(cfg, fmt.Sprintf("collect_item_%d", slot), pipeline.StageResearch, []input.Action{
		input.Click{Element: fmt.Sprintf("result_item_%d", slot)},
	}, "item_detail_banner", patternItemDetail)
}

// CountSalesStep scrolls the item's sold history into view.
func CountSalesStep(cfg *config.Settings, slot int) pipeline.StepSpec {
	return step(cfg, fmt.Sprintf("count_sales_%d", slot), pipeline.StageResearch, []input.Action{
		input.Scroll{Dy: -400, Times: 2},
	}, "sold_history_region", patternSoldBadge)
}

// backToResults returns from an item detail page to the result list.
func backToResultsStep(cfg *config.Settings, slot int) pipeline.StepSpec {
	return step(cfg, fmt.Sprintf("back_to_results_%d", slot), pipeline.StageResearch, []input.Action{
		input.Click{Element: "back_button"},
	}, "results_banner", patternResults)
}

// SourcingSteps drives one candidate through the external image-search
// service UI: upload the product photo, open the best match, and leave the
// source price on screen. imagePath is typed into the upload dialog's file
// field.
func SourcingSteps(cfg *config.Settings, imagePath string) []pipeline.StepSpec {
	return []pipeline.StepSpec{
		step(cfg, "open_image_search", pipeline.StageSourcing, []input.Action{
			input.Click{Element: "image_search_tab"},
		}, "image_search_banner", patternImgSearch),

		step(cfg, "upload_query_image", pipeline.StageSourcing, []input.Action{
			input.Click{Element: "image_upload_button"},
			input.TypeText{Text: imagePath},
			input.KeyCombo{Keys: []string{"enter"}},
		}, "upload_status_region", patternUploaded),

		step(cfg, "open_candidate", pipeline.StageSourcing, []input.Action{
			input.Click{Element: "first_match_result"},
		}, "candidate_price_region", patternCandidate),
	}
}

// CapturePriceStep reads the candidate's price region; the runner's hook
// extracts the number.
func CapturePriceStep(cfg *config.Settings) pipeline.StepSpec {
	return step(cfg, "capture_candidate_price", pipeline.StageSourcing, []input.Action{
		input.Scroll{Dy: -200, Times: 1},
	}, "candidate_price_region", patternCandidate)
}

// RecordDecisionStep has no UI effect of its own beyond refocusing the
// marketplace tab; the decision lands in the ledger through the runner.
func RecordDecisionStep(cfg *config.Settings) pipeline.StepSpec {
	return step(cfg, "record_decision", pipeline.StageSourcing, []input.Action{
		input.Click{Element: "marketplace_tab"},
	}, "home_banner", patternHome)
}

// ListingDetails is the content of one new listing.
type ListingDetails struct {
	Title       string
	Description string
	Price       int
	ImagePaths  []string
}

// ListingSteps fills and submits the marketplace listing form.
func ListingSteps(cfg *config.Settings, d ListingDetails) []pipeline.StepSpec {
	fill := []input.Action{
		input.Click{Element: "listing_title_field"},
		input.KeyCombo{Keys: []string{input.PrimaryModifier, "a"}},
		input.TypeText{Text: d.Title},
		input.Click{Element: "listing_description_field"},
		input.KeyCombo{Keys: []string{input.PrimaryModifier, "a"}},
		input.TypeText{Text: d.Description},
		input.Click{Element: "listing_price_field"},
		input.KeyCombo{Keys: []string{input.PrimaryModifier, "a"}},
		input.TypeText{Text: fmt.Sprintf("%d", d.Price)},
	}

	var attach []input.Action
	for _, p := range d.ImagePaths {
		attach = append(attach,
			input.Click{Element: "listing_add_photo"},
			input.TypeText{Text: p},
			input.KeyCombo{Keys: []string{"enter"}},
		)
	}

	return []pipeline.StepSpec{
		step(cfg, "open_listing_form", pipeline.StageListing, []input.Action{
			input.Click{Element: "sell_button"},
		}, "listing_form_banner", patternListForm),

		step(cfg, "fill_listing_details", pipeline.StageListing, fill,
			"listing_form_banner", patternListForm),

		step(cfg, "attach_images", pipeline.StageListing, attach,
			"photo_count_region", patternPhotoSet),

		step(cfg, "submit_listing", pipeline.StageListing, []input.Action{
			input.Click{Element: "listing_submit"},
		}, "listing_result_banner", patternListed),
	}
}

// PriceAdjustmentSteps opens one active listing's edit form and applies the
// new price.
func PriceAdjustmentSteps(cfg *config.Settings, listingID string, newPrice int) []pipeline.StepSpec {
	return []pipeline.StepSpec{
		step(cfg, "open_active_listing", pipeline.StagePriceAdjustment, []input.Action{
			input.Click{Element: "my_listings_button"},
			input.Click{Element: "listing_search_box"},
			input.TypeText{Text: listingID},
			input.KeyCombo{Keys: []string{"enter"}},
			input.Click{Element: "first_listing_row"},
			input.Click{Element: "edit_listing_button"},
		}, "edit_form_banner", patternEditForm),

		step(cfg, "apply_price_change", pipeline.StagePriceAdjustment, []input.Action{
			input.Click{Element: "edit_price_field"},
			input.KeyCombo{Keys: []string{input.PrimaryModifier, "a"}},
			input.TypeText{Text: fmt.Sprintf("%d", newPrice)},
			input.Click{Element: "edit_save_button"},
		}, "edit_result_banner", patternPriceSaved),
	}
}
