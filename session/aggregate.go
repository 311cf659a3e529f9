package session

import (
	"slices"

	"potluck"
)

// Aggregate flattens contributions into one attributed pool: participants in
// session order, each participant's ingredients in the order they were added.
func Aggregate(participants []potluck.Participant) []potluck.ContributedIngredient {
	out := make([]potluck.ContributedIngredient, 0, contributionCount(participants))
	for _, p := range participants {
		for _, name := range p.ContributedIngredients {
			out = append(out, potluck.ContributedIngredient{Name: name, ContributorName: p.DisplayName})
		}
	}
	return out
}

// IngredientNames drops attribution from an aggregate.
func IngredientNames(agg []potluck.ContributedIngredient) []string {
	out := make([]string, 0, len(agg))
	for _, ci := range agg {
		out = append(out, ci.Name)
	}
	return out
}

func contributionCount(participants []potluck.Participant) int {
	n := 0
	for _, p := range participants {
		n += len(p.ContributedIngredients)
	}
	return n
}

// offsetOf is the aggregate index of the first entry of participant idx.
func offsetOf(participants []potluck.Participant, idx int) int {
	return contributionCount(participants[:idx])
}

// ensureAggregate rebuilds the stored projection when it no longer lines up
// with the participants, as with documents written before it was maintained.
func ensureAggregate(s *potluck.Session) {
	if s.AggregatedIngredients != nil && len(s.AggregatedIngredients) == contributionCount(s.Participants) {
		return
	}
	s.AggregatedIngredients = Aggregate(s.Participants)
}

// appendContributions adds names to participant idx and splices the matching
// entries in after that participant's existing ones.
func appendContributions(s *potluck.Session, idx int, names []string) {
	p := &s.Participants[idx]
	at := offsetOf(s.Participants, idx) + len(p.ContributedIngredients)

	entries := make([]potluck.ContributedIngredient, 0, len(names))
	for _, n := range names {
		entries = append(entries, potluck.ContributedIngredient{Name: n, ContributorName: p.DisplayName})
	}

	s.AggregatedIngredients = slices.Insert(s.AggregatedIngredients, at, entries...)
	p.ContributedIngredients = append(p.ContributedIngredients, names...)
}

// removeContribution drops ingredient pos of participant idx.
func removeContribution(s *potluck.Session, idx, pos int) {
	at := offsetOf(s.Participants, idx) + pos
	s.AggregatedIngredients = slices.Delete(s.AggregatedIngredients, at, at+1)

	p := &s.Participants[idx]
	p.ContributedIngredients = slices.Delete(p.ContributedIngredients, pos, pos+1)
}

// removeParticipantAt drops participant idx together with their aggregate entries.
func removeParticipantAt(s *potluck.Session, idx int) {
	at := offsetOf(s.Participants, idx)
	n := len(s.Participants[idx].ContributedIngredients)
	s.AggregatedIngredients = slices.Delete(s.AggregatedIngredients, at, at+n)
	s.Participants = slices.Delete(s.Participants, idx, idx+1)
}
