// Package reconcile matches classified documents to checklist items and
// decides engagement readiness. It is pure: callers load state, call Run,
// and persist the returned outcome.
package reconcile

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/issues"
)

const (
	weightHigh    = 0.50
	weightMedium  = 0.35
	weightLow     = 0.15
	weightUnknown = weightMedium
)

func Weight(p domain.Priority) float64 {
	switch domain.Priority(strings.ToLower(string(p))) {
	case domain.PriorityHigh:
		return weightHigh
	case domain.PriorityMedium:
		return weightMedium
	case domain.PriorityLow:
		return weightLow
	default:
		return weightUnknown
	}
}

func Credit(s domain.ItemStatus) float64 {
	switch s {
	case domain.ItemComplete:
		return 1.0
	case domain.ItemReceived:
		return 0.5
	default:
		return 0
	}
}

// Completion is the priority-weighted completion percentage, 0 for an empty
// checklist.
func Completion(items []domain.ChecklistItem) int {
	var weighted, total float64
	for _, item := range items {
		w := Weight(item.Priority)
		weighted += w * Credit(item.Status)
		total += w
	}
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * weighted / total))
}

// Matches reports whether a document satisfies an item by type.
func Matches(item domain.ChecklistItem, doc *domain.Document) bool {
	expected := strings.TrimSpace(item.ExpectedDocumentType)
	if expected == "" || doc == nil {
		return false
	}
	return strings.EqualFold(expected, strings.TrimSpace(doc.DocumentType))
}

// IsReady applies the readiness predicate. The second branch considers every
// non-archived document, linked to the checklist or not.
func IsReady(items []domain.ChecklistItem, docs []*domain.Document, completion int) bool {
	if len(items) == 0 {
		return false
	}
	if completion == 100 {
		return true
	}
	for _, item := range items {
		if Weight(item.Priority) == weightHigh && item.Status != domain.ItemComplete {
			return false
		}
	}
	for _, doc := range docs {
		if doc.IsArchived() {
			continue
		}
		if doc.HasUnresolvedIssues() {
			return false
		}
	}
	return true
}

type Outcome struct {
	Checklist      []domain.ChecklistItem
	Reconciliation domain.Reconciliation
	IsReady        bool
	Skipped        bool
}

// Run recomputes the checklist for a trigger. A full scan rebuilds every
// item's links from the active documents that currently match it. A
// single-document trigger links that document where it matches and unlinks
// it everywhere else. An item that loses its last link drops back to
// pending; items that never had links keep their status.
func Run(checklist []domain.ChecklistItem, docs []*domain.Document, trigger domain.ReconcileTrigger, now time.Time) Outcome {
	if len(checklist) == 0 {
		return Outcome{Skipped: true, Reconciliation: domain.Reconciliation{RanAt: now, ItemStatuses: []domain.ItemState{}, Issues: []string{}}}
	}

	active := make([]*domain.Document, 0, len(docs))
	byID := make(map[string]*domain.Document, len(docs))
	for _, doc := range docs {
		if doc == nil || doc.IsArchived() {
			continue
		}
		active = append(active, doc)
		byID[doc.ID] = doc
	}

	items := cloneChecklist(checklist)
	if trigger.IsFullScan() {
		for i := range items {
			hadLinks := len(items[i].DocumentIDs) > 0
			linked := []string{}
			for _, doc := range active {
				if Matches(items[i], doc) {
					linked = append(linked, doc.ID)
				}
			}
			items[i].DocumentIDs = linked
			if len(linked) > 0 || hadLinks {
				items[i].Status = evaluateLinked(items[i], byID)
			}
		}
	} else {
		doc, present := byID[trigger.DocumentID]
		for i := range items {
			if present && Matches(items[i], doc) {
				items[i].DocumentIDs = appendUnique(items[i].DocumentIDs, doc.ID)
				items[i].Status = evaluateLinked(items[i], byID)
				continue
			}
			if !slices.Contains(items[i].DocumentIDs, trigger.DocumentID) {
				continue
			}
			items[i].DocumentIDs = slices.DeleteFunc(items[i].DocumentIDs, func(id string) bool {
				return id == trigger.DocumentID
			})
			items[i].Status = evaluateLinked(items[i], byID)
		}
	}

	completion := Completion(items)
	ready := IsReady(items, active, completion)
	states := make([]domain.ItemState, 0, len(items))
	for _, item := range items {
		states = append(states, domain.ItemState{
			ItemID:      item.ID,
			Status:      item.Status,
			DocumentIDs: append([]string{}, item.DocumentIDs...),
		})
	}

	return Outcome{
		Checklist: items,
		IsReady:   ready,
		Reconciliation: domain.Reconciliation{
			CompletionPercentage: completion,
			ItemStatuses:         states,
			Issues:               auditIssues(items, active),
			IsReady:              ready,
			RanAt:                now,
		},
	}
}

// evaluateLinked derives an item's status from its linked active documents:
// received while any has unresolved issues, complete otherwise, pending when
// none of the links resolve to an active document.
func evaluateLinked(item domain.ChecklistItem, byID map[string]*domain.Document) domain.ItemStatus {
	seen := false
	received := false
	for _, id := range item.DocumentIDs {
		doc, ok := byID[id]
		if !ok {
			continue
		}
		seen = true
		if doc.HasUnresolvedIssues() {
			received = true
		}
	}
	switch {
	case !seen:
		return domain.ItemPending
	case received:
		return domain.ItemReceived
	default:
		return domain.ItemComplete
	}
}

func auditIssues(items []domain.ChecklistItem, docs []*domain.Document) []string {
	out := []string{}
	for _, item := range items {
		if Weight(item.Priority) != weightHigh || item.Status == domain.ItemComplete {
			continue
		}
		out = append(out, issues.Warning(issues.TypeIncomplete, item.ID, string(item.Status),
			fmt.Sprintf("High-priority item %q is %s", item.Title, item.Status)))
	}
	unresolved := 0
	for _, doc := range docs {
		if doc.HasUnresolvedIssues() {
			unresolved++
		}
	}
	if unresolved > 0 {
		out = append(out, issues.Warning("unresolved_issues", "0", strconv.Itoa(unresolved),
			fmt.Sprintf("%d document(s) have unresolved issues", unresolved)))
	}
	return out
}

func cloneChecklist(items []domain.ChecklistItem) []domain.ChecklistItem {
	out := make([]domain.ChecklistItem, len(items))
	for i, item := range items {
		item.DocumentIDs = slices.Clone(item.DocumentIDs)
		if item.Status == "" {
			item.Status = domain.ItemPending
		}
		out[i] = item
	}
	return out
}

func appendUnique(ids []string, id string) []string {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}
