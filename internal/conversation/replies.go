package conversation

import (
	"fmt"
	"strings"

	"github.com/requestline/intake-bot/internal/approval"
	"github.com/requestline/intake-bot/internal/catalog"
)

// descriptionBudget caps the rendered length of a candidate description in
// a selection listing.
const descriptionBudget = 60

const (
	replyUsage = "Tell me what you would like to watch, e.g. \"I want to watch Inception\" " +
		"or \"add the series Severance\". Say \"cancel\" at any point to start over."
	replyPleaseWaitSearch     = "Still searching, one moment please."
	replyPleaseWaitProcessing = "Your request is being submitted, one moment please."
	replyCancelled            = "Okay, cancelled. Tell me whenever you want to request something else."
	replyCannotCancel         = "Your request is already being submitted and cannot be cancelled now."
	replyRetry                = "Sorry, I did not understand that. Please try again or say \"cancel\"."
	replySearchFailed         = "Something went wrong while searching. Please try again later."
	replySubmitFailedGeneric  = "Something went wrong while submitting your request. Please try again later."
)

func replySearching(query string) string {
	return fmt.Sprintf("Searching for %q, one moment please.", query)
}

func replyNoMatches(query string) string {
	return fmt.Sprintf("I could not find any matches for %q. Try a different title.", query)
}

func replySelectionPrompt(candidates []catalog.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I found %d result(s). Reply with a number to pick one, or say \"cancel\":\n", len(candidates))
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, describeCandidate(c))
	}

	return strings.TrimRight(b.String(), "\n")
}

func replySelectionOutOfRange(max int) string {
	return fmt.Sprintf("Please reply with a number between 1 and %d, or say \"cancel\".", max)
}

func replySubunitPrompt(title string, subunits []catalog.Subunit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s has %d season(s). Reply with season numbers (e.g. \"1, 3\") or \"all\":\n", title, len(subunits))
	for _, u := range subunits {
		line := fmt.Sprintf("Season %d", u.Number)
		if u.Title != "" {
			line += " - " + u.Title
		}
		if u.EpisodeCount > 0 {
			line += fmt.Sprintf(" (%d episodes)", u.EpisodeCount)
		}
		b.WriteString(line + "\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func replySubunitInvalid(subunits []catalog.Subunit) string {
	numbers := make([]string, 0, len(subunits))
	for _, u := range subunits {
		numbers = append(numbers, fmt.Sprintf("%d", u.Number))
	}

	return fmt.Sprintf("Please pick from the available seasons (%s) or say \"all\".", strings.Join(numbers, ", "))
}

func replyConfirmationPrompt(c catalog.Candidate, subunits []int, all bool) string {
	what := describeCandidate(c)
	switch {
	case all:
		what += ", all seasons"
	case len(subunits) > 0:
		numbers := make([]string, 0, len(subunits))
		for _, n := range subunits {
			numbers = append(numbers, fmt.Sprintf("%d", n))
		}
		what += ", season(s) " + strings.Join(numbers, ", ")
	}

	return fmt.Sprintf("You picked: %s. Shall I request it? (yes/no)", what)
}

func replySubmitting(title string) string {
	return fmt.Sprintf("Submitting your request for %s, one moment please.", title)
}

func replyPolicyDeclines(title string) string {
	return fmt.Sprintf("Recording your request for %s. New requests are currently declined automatically, so expect a rejection.", title)
}

func replyOutcome(title string, outcome approval.Outcome) string {
	switch outcome.Status {
	case approval.StatusSubmitted:
		return fmt.Sprintf("Done! Your request for %s has been submitted.", title)
	case approval.StatusPending:
		return fmt.Sprintf("Your request for %s is waiting for approval. You will hear back once it has been reviewed.", title)
	case approval.StatusRejected:
		return fmt.Sprintf("Sorry, your request for %s was declined by the current policy.", title)
	case approval.StatusFailed:
		if outcome.Message != "" {
			return fmt.Sprintf("Your request for %s could not be submitted: %s", title, outcome.Message)
		}

		return replySubmitFailedGeneric
	default:
		return replySubmitFailedGeneric
	}
}

// describeCandidate renders one candidate with its kind marker and a
// truncated description. Ordinals are added by the listing renderer.
func describeCandidate(c catalog.Candidate) string {
	s := fmt.Sprintf("[%s] %s", c.Kind, c.Title)
	if c.Year > 0 {
		s += fmt.Sprintf(" (%d)", c.Year)
	}
	if c.Overview != "" {
		s += " " + truncate(c.Overview, descriptionBudget)
	}

	return s
}

func truncate(s string, budget int) string {
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}

	return string(runes[:budget]) + "..."
}
