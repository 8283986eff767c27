// Package comparator reconciles extracted offers against the stored
// inventory and emits the change set a reviewer approves or rejects.
package comparator

import (
	"math"
	"sort"

	"github.com/agext/levenshtein"

	"github.com/Hennedk/leasingborsen-sub012/internal/config"
	"github.com/Hennedk/leasingborsen-sub012/internal/model"
)

// Field weights for the match score. Renormalized over the fields actually
// present on both sides, so a missing year never drags a strong variant
// match below the threshold.
const (
	weightMake    = 0.30
	weightModel   = 0.30
	weightVariant = 0.25
	weightYear    = 0.15
)

// Comparator holds the matching configuration.
type Comparator struct {
	cfg config.MatchConfig
}

// New creates a comparator.
func New(cfg config.MatchConfig) *Comparator {
	return &Comparator{cfg: cfg}
}

// Summary is the outcome of one comparison run.
type Summary struct {
	Changes   []model.ChangeRecord
	Matched   int
	Unchanged int
}

// Creates, Updates and Deletes count the change records by type.
func (s Summary) Creates() int { return s.count(model.ChangeCreate) }
func (s Summary) Updates() int { return s.count(model.ChangeUpdate) }
func (s Summary) Deletes() int { return s.count(model.ChangeDelete) }

func (s Summary) count(t model.ChangeType) int {
	n := 0
	for _, c := range s.Changes {
		if c.Type == t {
			n++
		}
	}
	return n
}

// candidate is one extracted/listing pair above the match threshold.
type candidate struct {
	ei, li int
	score  float64
}

// Compare matches extracted offers against the dealer's existing listings.
// Unmatched extracted offers become CREATEs, matched pairs with differences
// become UPDATEs, and listings no longer present become DELETEs. Inputs are
// never mutated; iteration order is deterministic for identical inputs.
func (c *Comparator) Compare(extracted []model.ExtractedVehicle, existing []model.Listing, dealer model.DealerConfig) Summary {
	candidates := c.candidates(extracted, existing, dealer)

	// Greedy assignment, best score first. Ties resolve by input order on
	// both sides so reruns over the same inputs produce the same pairs.
	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].score != candidates[b].score {
			return candidates[a].score > candidates[b].score
		}
		if candidates[a].ei != candidates[b].ei {
			return candidates[a].ei < candidates[b].ei
		}
		return candidates[a].li < candidates[b].li
	})

	matchedExtracted := make(map[int]int, len(extracted)) // extracted idx -> listing idx
	usedListing := make(map[int]bool, len(existing))
	for _, cand := range candidates {
		if _, ok := matchedExtracted[cand.ei]; ok || usedListing[cand.li] {
			continue
		}
		matchedExtracted[cand.ei] = cand.li
		usedListing[cand.li] = true
	}

	var sum Summary
	for i := range extracted {
		ev := extracted[i]
		li, ok := matchedExtracted[i]
		if !ok {
			sum.Changes = append(sum.Changes, model.ChangeRecord{
				Type:      model.ChangeCreate,
				Extracted: &ev,
				Status:    model.ChangePending,
			})
			continue
		}
		sum.Matched++
		changes := c.diff(ev, existing[li])
		if len(changes) == 0 {
			sum.Unchanged++
			continue
		}
		sum.Changes = append(sum.Changes, model.ChangeRecord{
			Type:      model.ChangeUpdate,
			ListingID: existing[li].ID,
			Extracted: &ev,
			Changes:   changes,
			Status:    model.ChangePending,
		})
	}

	for i := range existing {
		if !usedListing[i] {
			sum.Changes = append(sum.Changes, model.ChangeRecord{
				Type:      model.ChangeDelete,
				ListingID: existing[i].ID,
				Status:    model.ChangePending,
			})
		}
	}
	return sum
}

func (c *Comparator) candidates(extracted []model.ExtractedVehicle, existing []model.Listing, dealer model.DealerConfig) []candidate {
	var out []candidate
	for ei, ev := range extracted {
		for li, listing := range existing {
			score := c.score(ev, listing, dealer)
			if score >= c.cfg.Threshold {
				out = append(out, candidate{ei: ei, li: li, score: score})
			}
		}
	}
	return out
}

// score rates one pair in [0, 1]. Make and model are hard gates: a pair
// that disagrees on either never matches no matter how close the rest is.
func (c *Comparator) score(ev model.ExtractedVehicle, listing model.Listing, dealer model.DealerConfig) float64 {
	if canon(ev.Make) != canon(listing.Make) || canon(ev.Model) != canon(listing.Model) {
		return 0
	}

	evVariant, evTr := effectiveVariant(ev.Variant, ev.Transmission)
	liVariant, liTr := effectiveVariant(listing.Variant, listing.Transmission)

	// With transmission in the identity key, "Pulse" and "Pulse Automatik"
	// are distinct offers; without it they collapse into one.
	if dealer.TransmissionInKey && evTr != model.TransmissionUnknown && liTr != model.TransmissionUnknown && evTr != liTr {
		return 0
	}

	total := weightMake + weightModel
	score := weightMake + weightModel

	if evVariant != "" || liVariant != "" {
		total += weightVariant
		score += weightVariant * levenshtein.Similarity(canon(evVariant), canon(liVariant), nil)
	}
	if ev.Year > 0 && listing.Year > 0 {
		total += weightYear
		switch d := ev.Year - listing.Year; {
		case d == 0:
			score += weightYear
		case d == 1 || d == -1:
			score += weightYear * 0.5
		}
	}
	return score / total
}

// effectiveVariant resolves the variant text and transmission, preferring an
// explicitly extracted transmission over a suffix-derived one.
func effectiveVariant(variant string, tr model.Transmission) (string, model.Transmission) {
	name, suffixTr := NormalizeVariant(variant)
	if tr != model.TransmissionUnknown {
		return name, tr
	}
	return name, suffixTr
}

// diff collects the field-level differences of a matched pair.
func (c *Comparator) diff(ev model.ExtractedVehicle, listing model.Listing) map[string]model.FieldChange {
	changes := make(map[string]model.FieldChange)

	newPrice := ev.MonthlyPaymentCents()
	if priceChanged(listing.MonthlyPriceCents, newPrice, c.cfg.PriceChangePct) {
		changes["monthly_price_cents"] = model.FieldChange{Old: listing.MonthlyPriceCents, New: newPrice}
	}

	evVariant, evTr := effectiveVariant(ev.Variant, ev.Transmission)
	liVariant, liTr := effectiveVariant(listing.Variant, listing.Transmission)
	if canon(evVariant) != canon(liVariant) {
		changes["variant"] = model.FieldChange{Old: listing.Variant, New: evVariant}
	}
	if evTr != model.TransmissionUnknown && liTr != model.TransmissionUnknown && evTr != liTr {
		changes["transmission"] = model.FieldChange{Old: liTr, New: evTr}
	}
	if ev.Year > 0 && listing.Year > 0 && ev.Year != listing.Year {
		changes["year"] = model.FieldChange{Old: listing.Year, New: ev.Year}
	}
	if ev.Colour != "" && listing.Colour != "" && ev.Colour != listing.Colour {
		changes["colour"] = model.FieldChange{Old: listing.Colour, New: ev.Colour}
	}
	if tiersChanged(listing.PricingTiers, ev.Pricing, c.cfg.PriceChangePct) {
		changes["pricing_tiers"] = model.FieldChange{Old: listing.PricingTiers, New: ev.Pricing}
	}
	return changes
}

// priceChanged applies the relative threshold. The threshold is exclusive:
// a change of exactly the configured percentage is still noise.
func priceChanged(oldCents, newCents int64, thresholdPct float64) bool {
	if newCents == 0 {
		return false
	}
	if oldCents == 0 {
		return true
	}
	pct := math.Abs(float64(newCents-oldCents)) / float64(oldCents) * 100
	return pct > thresholdPct
}

// tiersChanged reports whether the extracted pricing options differ from the
// stored tiers beyond the price threshold.
func tiersChanged(tiers []model.PricingTier, pricing []model.PricingOption, thresholdPct float64) bool {
	if len(pricing) == 0 {
		return false
	}
	if len(tiers) != len(pricing) {
		return true
	}

	byKm := make(map[int]model.PricingTier, len(tiers))
	for _, t := range tiers {
		byKm[t.AnnualKilometers] = t
	}
	for _, p := range pricing {
		t, ok := byKm[p.AnnualKilometers]
		if !ok {
			return true
		}
		if priceChanged(t.MonthlyPaymentCents, p.MonthlyPaymentCents, thresholdPct) {
			return true
		}
		if p.FirstPaymentCents != 0 && t.FirstPaymentCents != 0 && p.FirstPaymentCents != t.FirstPaymentCents {
			return true
		}
	}
	return false
}
