// Package digest summarizes the vocabulary learned in recent conversations
// and delivers the summary to chat webhooks on a cron schedule.
package digest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/zulandar/quickvocab/internal/models"
	"github.com/zulandar/quickvocab/internal/store"
)

// maxTerms caps the number of terms listed in a formatted digest.
const maxTerms = 25

// HistoryLister lists history records, newest first.
type HistoryLister interface {
	List(ctx context.Context, opts store.ListOpts) ([]models.HistoryRecord, error)
}

// Term is one vocabulary term and how often it was taught in the period.
type Term struct {
	Term  string
	Count int
}

// Report holds the vocabulary collected for a period.
type Report struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Sessions    int
	Terms       []Term
}

// Formatted is a rendered digest ready for delivery.
type Formatted struct {
	Title string
	Body  string
}

// Build collects vocabulary from assistant messages of records whose
// timestamp falls in [since, until]. Terms are de-duplicated
// case-insensitively, keeping the first spelling seen, and sorted by count
// descending then alphabetically. Returns nil when the period has no terms.
func Build(ctx context.Context, lister HistoryLister, since, until time.Time) (*Report, error) {
	recs, err := lister.List(ctx, store.ListOpts{})
	if err != nil {
		return nil, fmt.Errorf("digest: list history: %w", err)
	}

	report := &Report{PeriodStart: since, PeriodEnd: until}
	index := make(map[string]int)
	for _, rec := range recs {
		ts, err := time.Parse(models.TimestampLayout, rec.Timestamp)
		if err != nil || ts.Before(since) || ts.After(until) {
			continue
		}
		report.Sessions++
		for _, m := range rec.Messages {
			if m.Role != models.RoleAssistant {
				continue
			}
			for _, raw := range m.Vocabularies {
				term := strings.TrimSpace(raw)
				if term == "" {
					continue
				}
				key := strings.ToLower(term)
				if i, ok := index[key]; ok {
					report.Terms[i].Count++
					continue
				}
				index[key] = len(report.Terms)
				report.Terms = append(report.Terms, Term{Term: term, Count: 1})
			}
		}
	}

	if len(report.Terms) == 0 {
		return nil, nil
	}
	slices.SortStableFunc(report.Terms, func(a, b Term) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(strings.ToLower(a.Term), strings.ToLower(b.Term))
	})
	return report, nil
}

// Format renders a report as a title and a bulleted body.
func Format(r *Report) Formatted {
	title := fmt.Sprintf("Vocabulary digest: %d %s", len(r.Terms), plural(len(r.Terms), "term", "terms"))

	var b strings.Builder
	fmt.Fprintf(&b, "%s to %s, %d %s\n",
		r.PeriodStart.UTC().Format("Jan 2 15:04"),
		r.PeriodEnd.UTC().Format("Jan 2 15:04 MST"),
		r.Sessions, plural(r.Sessions, "conversation", "conversations"))
	for i, t := range r.Terms {
		if i == maxTerms {
			fmt.Fprintf(&b, "...and %d more\n", len(r.Terms)-maxTerms)
			break
		}
		if t.Count > 1 {
			fmt.Fprintf(&b, "• %s (x%d)\n", t.Term, t.Count)
		} else {
			fmt.Fprintf(&b, "• %s\n", t.Term)
		}
	}
	return Formatted{Title: title, Body: strings.TrimRight(b.String(), "\n")}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
